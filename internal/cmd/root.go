package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"avro_etl/internal/config"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// NewRootCmd builds the command tree around a fresh viper instance.
func NewRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	root := &cobra.Command{
		Use:   "avroetl",
		Short: "avroetl: Avro object store to CSV batch job",
		Long: `avroetl selects Avro object-container files from a bucket by last-modified
time, lifts nested record fields into prefixed top-level columns and writes
the rows back to the bucket as one CSV (or Parquet) object.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v, cfgFile)
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./avroetl.yaml if present)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log every selected object")
	_ = v.BindPFlag("source.verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		newRunCmd(v),
		newScheduleCmd(v),
		newValidateCmd(v),
		newRunsCmd(v),
		newCheckCmd(v),
	)
	return root
}

func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("avroetl")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// loadConfig decodes and validates; warnings are logged, errors fail.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return cfg, err
	}
	issues := cfg.Validate()
	logIssues(issues)
	if config.HasErrors(issues) {
		return cfg, &exitError{code: 2, err: fmt.Errorf("config: %d issue(s), see log", len(issues))}
	}
	return cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}
