package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dennisdiepolder/monti/agentkpi/internal/aggregator"
	"github.com/dennisdiepolder/monti/agentkpi/internal/config"
	"github.com/dennisdiepolder/monti/agentkpi/internal/dataset"
	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/storage"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type cli struct {
	logger   zerolog.Logger
	dataDir  string
	synonyms string
	verbose  bool
}

func newRootCmd(logger zerolog.Logger) *cobra.Command {
	c := &cli{logger: logger}

	root := &cobra.Command{
		Use:           "kpictl",
		Short:         "Inspect agent KPI tables built from CSV exports",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.logger = c.logger.Level(zerolog.DebugLevel)
			}
			if c.dataDir != "" {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.dataDir = cfg.DataDir
			if c.synonyms == "" {
				c.synonyms = cfg.HeaderSynonymsFile
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "data directory (default $DATA_DIR)")
	root.PersistentFlags().StringVar(&c.synonyms, "synonyms", "", "YAML file with extra header synonyms")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log skipped files")

	root.AddCommand(c.monthsCmd(), c.loadCmd(), c.kpisCmd(), c.usersCmd())
	return root
}

func (c *cli) service() (*dataset.Service, error) {
	canon := normalize.NewCanonicalizer()
	if c.synonyms != "" {
		extra, err := normalize.LoadSynonyms(c.synonyms)
		if err != nil {
			return nil, err
		}
		canon = canon.WithSynonyms(extra)
	}
	return dataset.NewService(dataset.NewLoader(c.dataDir, canon, c.logger), c.logger), nil
}

func (c *cli) monthsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "months",
		Short: "List months with a monthly export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.service()
			if err != nil {
				return err
			}
			for _, m := range data.Months() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", m.Index, m.Label)
			}
			return nil
		},
	}
}

func (c *cli) loadCmd() *cobra.Command {
	var agent string
	var year int

	cmd := &cobra.Command{
		Use:   "load <monthly|history|daily|evaluations|ranking> [selector]",
		Short: "Print a normalized table as JSON",
		Long: `Print a normalized table as JSON.

The selector is the month name for monthly, daily and evaluations, and the
snapshot (current or previous) for ranking. history takes no selector.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.service()
			if err != nil {
				return err
			}
			selector := ""
			if len(args) == 2 {
				selector = args[1]
			}

			var t types.Table
			switch args[0] {
			case "monthly":
				t = data.Monthly(selector)
			case "history":
				t = data.History()
			case "daily":
				t = data.Daily(dataset.DailyQuery{Month: selector, Year: year, Agent: agent})
			case "evaluations":
				t = data.Evaluations(selector, agent)
			case "ranking":
				t = data.Ranking(selector)
			default:
				return fmt.Errorf("unknown table kind %q", args[0])
			}
			if agent != "" {
				t = aggregator.FilterAgent(t, agent)
			}
			return writeJSON(cmd.OutOrStdout(), t)
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "keep only this agent's rows")
	cmd.Flags().IntVar(&year, "year", 0, "calendar year of daily files")
	return cmd
}

func (c *cli) kpisCmd() *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "kpis <month>",
		Short: "Print the headline KPIs of a month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.service()
			if err != nil {
				return err
			}
			t := aggregator.FilterAgent(data.Monthly(args[0]), agent)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, kpi := range aggregator.Formatted(aggregator.Reduce(t, aggregator.DefaultKPIs)) {
				fmt.Fprintf(w, "%s\t%s\n", kpi.Field, kpi.Value)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "restrict to one agent")
	return cmd
}

func (c *cli) usersCmd() *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage dashboard accounts",
	}

	var month string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Create accounts for agents found in the exports",
		Long: `Create an agent account for every agent name found in the history
(or in one month with --month) that has no account yet. New accounts get the
default password and must change it on first login.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.service()
			if err != nil {
				return err
			}
			storeCfg := storage.LoadConfig()
			store, err := storage.NewStore(cmd.Context(), storeCfg, c.logger)
			if err != nil {
				return err
			}

			t := data.History()
			if month != "" {
				t = data.Monthly(month)
			}
			res, err := storage.SyncAgents(cmd.Context(), store, t.Agents(), storeCfg.DefaultPassword)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	sync.Flags().StringVar(&month, "month", "", "take agents from this month instead of the history")

	users.AddCommand(sync)
	return users
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
