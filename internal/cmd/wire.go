package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"

	"avro_etl/internal/config"
	"avro_etl/internal/flatten"
	"avro_etl/internal/job"
	"avro_etl/internal/jobctl"
	"avro_etl/internal/metrics"
	"avro_etl/internal/metrics/prompush"
	"avro_etl/internal/output"
	"avro_etl/internal/params"
	"avro_etl/internal/source"
	"avro_etl/internal/storage"
	"avro_etl/internal/storage/memstore"
	"avro_etl/internal/storage/miniostore"
	"avro_etl/internal/storage/s3store"
	"avro_etl/internal/warehouse/postgres"
)

func logIssues(issues []config.Issue) {
	for _, iss := range issues {
		log.Printf("config: %v", iss)
	}
}

func openStorage(cfg config.Storage) (storage.Service, error) {
	switch strings.ToLower(cfg.Kind) {
	case "s3":
		return s3store.New(s3store.Config{
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			PathStyle: cfg.PathStyle,
		})
	case "minio":
		return miniostore.New(miniostore.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
	case "mem":
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("storage: unknown kind %q", cfg.Kind)
}

// setupMetrics installs the configured backend.
func setupMetrics(cfg config.Metrics, jobName string) error {
	if !strings.EqualFold(cfg.Backend, "pushgateway") {
		return nil
	}
	b, err := prompush.NewBackend(jobName, cfg.PushgatewayURL)
	if err != nil {
		return err
	}
	metrics.SetBackend(b)
	return nil
}

func flushMetrics() {
	if err := metrics.Flush(); err != nil {
		log.Printf("metrics: flush: %v", err)
	}
}

// pgLoader adapts the Postgres loader to job.Loader.
type pgLoader struct {
	l *postgres.Loader
}

func (p pgLoader) Begin(ctx context.Context) (job.LoadTx, error) {
	tx, err := p.l.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// pipeline is a job plus the resources it holds open.
type pipeline struct {
	job     *job.Job
	store   storage.Service
	closers []func()
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// buildPipeline wires every component from cfg. Parameters are read from v
// under "params" at run time.
func buildPipeline(ctx context.Context, cfg config.Config, v *viper.Viper, store storage.Service) (*pipeline, error) {
	p := &pipeline{}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	if store == nil {
		var err error
		if store, err = openStorage(cfg.Storage); err != nil {
			return nil, err
		}
	}
	p.store = store

	loc, err := cfg.Source.Loc()
	if err != nil {
		return nil, err
	}
	sel, err := source.New(store, source.Config{
		Bucket:   cfg.Storage.Bucket,
		Prefix:   cfg.Source.Prefix,
		Marker:   cfg.Source.Marker,
		Glob:     cfg.Source.Glob,
		Location: loc,
		Verbose:  cfg.Source.Verbose,
	})
	if err != nil {
		return nil, err
	}

	policy, err := flatten.ParsePolicy(cfg.Flatten.Collision)
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	var ctl jobctl.Controller = jobctl.Nop{}
	if cfg.Ledger.Path != "" {
		ledger, err := jobctl.OpenLedger(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() { ledger.Close() })
		ctl = ledger
	}

	p.job = job.New(job.Config{
		Fields:        cfg.Flatten.Fields,
		Policy:        policy,
		OutputPrefix:  cfg.Output.Prefix,
		Output:        output.Config{Bucket: cfg.Output.Bucket, Format: format},
		UniqueKeys:    cfg.Output.UniqueKeys,
		Streaming:     cfg.Runtime.Streaming,
		ChannelBuffer: cfg.Runtime.ChannelBuffer,
	}, params.ViperResolver{V: v, Prefix: "params"}, ctl, sel, store)

	if cfg.Warehouse.DSN != "" {
		l, closeFn, err := postgres.New(ctx, postgres.Config{DSN: cfg.Warehouse.DSN, Table: cfg.Warehouse.Table})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, closeFn)
		p.job.WithLoader(pgLoader{l: l})
	}

	ok = true
	return p, nil
}
