package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ftfvalues/tradecalc/game/item"
	"github.com/ftfvalues/tradecalc/game/valuation"
)

var rule = strings.Repeat("-", 60)

// report is the printed output of one run. The breakdown section runs from
// "Breakdown by rarity:" through the "Final total:" line.
type report struct {
	lines          []string
	breakdownStart int
	summary        item.Summary
}

func (r report) breakdown() []string { return r.lines[r.breakdownStart:] }

func buildReport(cat *item.Catalog) report {
	var r report
	add := func(format string, args ...interface{}) {
		r.lines = append(r.lines, fmt.Sprintf(format, args...))
	}

	add("Calculating total value:")
	add("%s", rule)
	running := 0.0
	for _, d := range cat.All() {
		running += d.Value
		add("%-30s %4s fv (%-9s) (Total: %s fv)", d.Name, fv(d.Value), bucketOf(d.Rarity), fv(running))
	}

	s := cat.Summarize()
	r.summary = s
	add("")
	add("%s", rule)
	r.breakdownStart = len(r.lines)
	add("Breakdown by rarity:")
	for _, t := range s.Rarities {
		add("%s items (%d): %s fv (%s hv)", title(string(t.Rarity)), t.Count, fv(t.Value), hv(t.Value, 1))
	}
	add("Seasonals (%d): %s fv (%s hv)", s.Seasonals.Count, fv(s.Seasonals.Value), hv(s.Seasonals.Value, 1))
	add("%s", rule)
	add("Total number of items: %d", s.ItemCount)
	add("Final total: %s fv (%s hv)", fv(s.Total), hv(s.Total, 2))
	return r
}

// bucketOf folds rarities outside the four summary buckets into common.
func bucketOf(r item.Rarity) item.Rarity {
	switch r {
	case item.RarityLegendary, item.RarityEpic, item.RarityRare, item.RarityCommon:
		return r
	}
	return item.RarityCommon
}

func fv(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func hv(v float64, digits int) string {
	return strconv.FormatFloat(valuation.Convert(v, valuation.UnitCompressed), 'f', digits, 64)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
