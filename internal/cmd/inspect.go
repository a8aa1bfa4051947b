package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"avro_etl/internal/config"
	"avro_etl/internal/jobctl"
	"avro_etl/internal/storage"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print every issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			issues := cfg.Validate()
			out := cmd.OutOrStdout()
			for _, iss := range issues {
				fmt.Fprintln(out, iss.Error())
			}
			if config.HasErrors(issues) {
				return &exitError{code: 2, err: fmt.Errorf("validate: configuration has errors")}
			}
			fmt.Fprintf(out, "ok (%d warning(s))\n", len(issues))
			return nil
		},
	}
}

func newRunsCmd(v *viper.Viper) *cobra.Command {
	var (
		jobName string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString("ledger.path")
			if path == "" {
				return fmt.Errorf("runs: ledger.path is not set")
			}
			l, err := jobctl.OpenLedger(path)
			if err != nil {
				return err
			}
			defer l.Close()

			runs, err := l.Runs(cmd.Context(), jobName, limit)
			if err != nil {
				return err
			}
			return printRuns(cmd, runs)
		},
	}
	cmd.Flags().StringVar(&jobName, "job-name", "", "only runs of this job")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}

func printRuns(cmd *cobra.Command, runs []jobctl.Run) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tJOB\tSTATE\tSTARTED\tCOMMITTED\tWINDOW")
	for _, r := range runs {
		committed := "-"
		if r.CommittedAt != nil {
			committed = r.CommittedAt.Format(time.RFC3339)
		}
		window := strings.TrimSpace(r.Params["begin_date"] + " .. " + r.Params["end_date"])
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.JobName, r.State, r.StartedAt.Format(time.RFC3339), committed, window)
	}
	return tw.Flush()
}

func newCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the source and output buckets can be listed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			store, err := openStorage(cfg.Storage)
			if err != nil {
				return err
			}
			return check(cmd, cfg, store)
		},
	}
}

func check(cmd *cobra.Command, cfg config.Config, store storage.Service) error {
	out := cmd.OutOrStdout()
	n, err := storage.Probe(cmd.Context(), store, cfg.Storage.Bucket, cfg.Source.Prefix)
	if err != nil {
		return fmt.Errorf("check: source: %w", err)
	}
	fmt.Fprintf(out, "source %s/%s: %d object(s)\n", cfg.Storage.Bucket, cfg.Source.Prefix, n)

	if cfg.Output.Bucket != cfg.Storage.Bucket {
		n, err := storage.Probe(cmd.Context(), store, cfg.Output.Bucket, cfg.Output.Prefix)
		if err != nil {
			return fmt.Errorf("check: output: %w", err)
		}
		fmt.Fprintf(out, "output %s/%s: %d object(s)\n", cfg.Output.Bucket, cfg.Output.Prefix, n)
	}
	return nil
}
