package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftfvalues/tradecalc/config"
	"github.com/ftfvalues/tradecalc/game/item"
	"github.com/ftfvalues/tradecalc/resource"
)

var (
	cfgPath     string
	itemsPath   string
	historyPath string
	noHistory   bool
	quiet       bool
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "catalogtotal",
		Short:        "Total the FTF item catalog by rarity",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if itemsPath != "" {
				return nil
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			itemsPath = cfg.Catalog.ItemsPath
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := resource.LoadItems(itemsPath)
			if err != nil {
				return err
			}
			rep := buildReport(item.NewCatalog(defs))
			out := cmd.OutOrStdout()
			lines := rep.lines
			if quiet {
				lines = rep.breakdown()
			}
			for _, ln := range lines {
				fmt.Fprintln(out, ln)
			}
			if noHistory {
				return nil
			}
			diff, err := appendHistory(historyPath, rep, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, diff)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "server config file used to locate the item dataset")
	root.PersistentFlags().StringVar(&itemsPath, "items", "", "item dataset (default catalog.items_path from config)")
	root.PersistentFlags().StringVar(&historyPath, "history", defaultHistoryPath(), "history file runs are appended to")
	root.Flags().BoolVar(&noHistory, "no-history", false, "do not append this run to the history file")
	root.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the breakdown, not every item")

	root.AddCommand(historyCmd())
	return root
}

func defaultHistoryPath() string {
	if v := os.Getenv(config.EnvPrefix + "_CATALOG_HISTORY"); v != "" {
		return v
	}
	return "./data/catalog_history.txt"
}
