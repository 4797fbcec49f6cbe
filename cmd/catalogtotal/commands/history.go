package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var finalTotalRe = regexp.MustCompile(`^Final total:\s*([0-9]+(?:\.[0-9]+)?)`)

// lastFinalTotal returns the most recent "Final total:" recorded in path.
func lastFinalTotal(path string) (float64, bool, error) {
	totals, err := finalTotals(path)
	if err != nil || len(totals) == 0 {
		return 0, false, err
	}
	return totals[len(totals)-1], true, nil
}

func finalTotals(path string) ([]float64, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var totals []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := finalTotalRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			totals = append(totals, v)
		}
	}
	return totals, sc.Err()
}

// diffText compares total with the previous run.
func diffText(total, prev float64, ok bool) string {
	if !ok {
		return "No previous run found."
	}
	d := total - prev
	sign := "+"
	if d < 0 {
		sign = "-"
		d = -d
	}
	return fmt.Sprintf("Difference from last run: %s%s fv (previous: %s fv)", sign, fv(d), fv(prev))
}

// appendHistory writes the breakdown of rep to path and returns the
// difference line that was recorded with it.
func appendHistory(path string, rep report, now time.Time) (string, error) {
	prev, ok, err := lastFinalTotal(path)
	if err != nil {
		return "", fmt.Errorf("read history: %w", err)
	}
	diff := diffText(rep.summary.Total, prev, ok)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("Run at: " + now.Format("2006-01-02 15:04:05") + "\n")
	for _, ln := range rep.breakdown() {
		b.WriteString(ln + "\n")
	}
	b.WriteString(diff + "\n\n")
	if _, err := f.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("write history: %w", err)
	}
	return diff, nil
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the final totals recorded in the history file",
		RunE: func(cmd *cobra.Command, args []string) error {
			totals, err := finalTotals(historyPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(totals) == 0 {
				fmt.Fprintln(out, "No previous run found.")
				return nil
			}
			for i, t := range totals {
				line := fmt.Sprintf("#%d  %s fv (%s hv)", i+1, fv(t), hv(t, 2))
				if i > 0 {
					line += "  " + strings.TrimPrefix(diffText(t, totals[i-1], true), "Difference from last run: ")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	return cmd
}
