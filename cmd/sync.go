package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/theapemachine/engram/pkg/sync"
)

var (
	syncAgentsFlag   []string
	syncStrategyFlag string
	syncDryRunFlag   bool

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Reconcile entities written by multiple agents",
		Long:  longSync,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			storage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			strategy, err := cfg.Strategy()
			if syncStrategyFlag != "" {
				strategy, err = sync.ParseStrategy(syncStrategyFlag)
			}
			if err != nil {
				return err
			}

			result, err := sync.NewEngine(storage).Sync(
				cmd.Context(), syncAgentsFlag, strategy, syncDryRunFlag,
			)
			if err != nil {
				return err
			}

			buf, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(buf))
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringSliceVar(&syncAgentsFlag, "agents", nil, "Agents to reconcile (repeat or comma-separate)")
	syncCmd.Flags().StringVar(&syncStrategyFlag, "strategy", "", "Merge strategy (defaults to the configured one)")
	syncCmd.Flags().BoolVar(&syncDryRunFlag, "dry-run", false, "Compute the merge without writing anything back")
}

var longSync = `
Reconcile entities written independently by multiple agents into one
record per id, using the configured merge strategy unless one is given.

Examples:
  # Latest write wins across two agents
  engram sync --agents alice,bob --strategy latest_wins

  # Preview the configured strategy without writing
  engram sync --agents alice,bob,carol --dry-run

  # A designated agent wins every conflict
  engram sync --agents alice,bob --strategy priority_wins:alice
`
