package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newScheduleCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the job on the configured cron schedule",
		Long: `Run the job on schedule.cron (standard five-field syntax) until interrupted.
Each tick covers the Default window, today in the configured location. A tick
that fires while the previous run is still going is skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(cmd, v); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return schedule(ctx, v)
		},
	}
	cmd.Flags().String("job-name", "", "job name recorded by job control and metrics")
	cmd.Flags().Bool("streaming", false, "overlap decode and flatten")
	return cmd
}

func schedule(ctx context.Context, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if cfg.Schedule.Cron == "" {
		return fmt.Errorf("schedule: schedule.cron is empty")
	}
	if err := setupMetrics(cfg.Metrics, v.GetString("params.job_name")); err != nil {
		return err
	}

	p, err := buildPipeline(ctx, cfg, v, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = c.AddFunc(cfg.Schedule.Cron, func() {
		log.Printf("schedule: tick")
		res, err := p.job.Run(ctx)
		if err != nil {
			log.Printf("schedule: run %s failed: %v", res.RunID, err)
		}
		flushMetrics()
	})
	if err != nil {
		return fmt.Errorf("schedule: invalid expression %q: %w", cfg.Schedule.Cron, err)
	}

	c.Start()
	log.Printf("schedule: running %q until interrupted", cfg.Schedule.Cron)
	<-ctx.Done()

	log.Printf("schedule: shutting down")
	<-c.Stop().Done()
	return nil
}
