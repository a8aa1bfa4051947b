// Package job drives one invocation: resolve parameters, select and decode
// source records, flatten, materialize, write, commit.
//
// Any failure moves the run to Failed and returns the error. The object put is
// the last side effect, so a failed run leaves no new output object.
package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"avro_etl/internal/datefmt"
	"avro_etl/internal/flatten"
	"avro_etl/internal/jobctl"
	"avro_etl/internal/metrics"
	"avro_etl/internal/output"
	"avro_etl/internal/params"
	"avro_etl/internal/record"
	"avro_etl/internal/source"
	"avro_etl/internal/storage"
	"avro_etl/internal/table"
)

// State is a step of the run state machine.
type State string

const (
	Initialized        State = "Initialized"
	ParametersResolved State = "ParametersResolved"
	Selecting          State = "Selecting"
	Flattening         State = "Flattening"
	Materializing      State = "Materializing"
	Writing            State = "Writing"
	Committed          State = "Committed"
	Failed             State = "Failed"
)

// Parameter names resolved at the start of every run.
const (
	ParamBeginDate = "begin_date"
	ParamEndDate   = "end_date"
	ParamJobName   = "job_name"
)

// LoadTx is an open warehouse transaction.
type LoadTx interface {
	Load(ctx context.Context, tbl *table.Table) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Loader opens warehouse transactions. The job commits the transaction only
// after the object put succeeds.
type Loader interface {
	Begin(ctx context.Context) (LoadTx, error)
}

// Config is the static part of a job.
type Config struct {
	Fields       []string
	Policy       flatten.Policy
	OutputPrefix string
	Output       output.Config
	// UniqueKeys appends the run id to output keys.
	UniqueKeys bool
	// Streaming overlaps decode with flatten through a channel of
	// ChannelBuffer records.
	Streaming     bool
	ChannelBuffer int
}

// Job wires the stages. A Job runs one invocation at a time.
type Job struct {
	cfg    Config
	params params.Resolver
	ctl    jobctl.Controller
	sel    *source.Selector
	store  storage.Service
	loader Loader
	now    func() time.Time

	state   State
	history []State
}

// New returns a Job. ctl may be nil, in which case run ids are generated and
// nothing is recorded.
func New(cfg Config, p params.Resolver, ctl jobctl.Controller, sel *source.Selector, store storage.Service) *Job {
	if ctl == nil {
		ctl = jobctl.Nop{}
	}
	if cfg.ChannelBuffer < 1 {
		cfg.ChannelBuffer = 1
	}
	return &Job{cfg: cfg, params: p, ctl: ctl, sel: sel, store: store, now: time.Now}
}

// WithLoader enables the warehouse load.
func (j *Job) WithLoader(l Loader) *Job {
	j.loader = l
	return j
}

// WithClock replaces the clock used for output keys and timings.
func (j *Job) WithClock(now func() time.Time) *Job {
	j.now = now
	return j
}

// State returns the current state.
func (j *Job) State() State { return j.state }

// History returns every state entered by the last run, in order.
func (j *Job) History() []State {
	return append([]State(nil), j.history...)
}

func (j *Job) enter(s State) {
	j.state = s
	j.history = append(j.history, s)
}

// Run executes one invocation.
func (j *Job) Run(ctx context.Context) (Result, error) {
	j.state, j.history = "", nil
	j.enter(Initialized)

	start := j.now()
	res := Result{StartedAt: start}

	err := j.run(ctx, &res)

	res.FinishedAt = j.now()
	res.finish()
	if err != nil {
		log.Printf("job: failed in %s: %v", j.state, err)
		res.Error = err.Error()
		j.enter(Failed)
	}
	res.State = j.state
	res.History = j.History()
	metrics.RecordRun(res.JobName, err)
	return res, err
}

func (j *Job) run(ctx context.Context, res *Result) error {
	p, err := j.params.Resolve(ParamBeginDate, ParamEndDate, ParamJobName)
	if err != nil {
		return err
	}
	res.JobName = p[ParamJobName]

	rng, err := j.sel.Resolve(p[ParamBeginDate], p[ParamEndDate])
	if err != nil {
		return err
	}
	res.BeginDate, res.EndDate = rng.Begin, rng.End

	runID, err := j.ctl.Init(ctx, res.JobName, p)
	if err != nil {
		return fmt.Errorf("job: init: %w", err)
	}
	res.RunID = runID
	j.enter(ParametersResolved)
	log.Printf("job: %s run %s range %s", res.JobName, runID, rng)

	var tbl *table.Table
	if j.cfg.Streaming {
		tbl, err = j.streamTable(ctx, rng, res)
	} else {
		tbl, err = j.sequentialTable(ctx, rng, res)
	}
	if err != nil {
		return err
	}
	res.Rows = tbl.Len()
	res.Columns = tbl.Columns()

	j.enter(Writing)
	if tbl.Len() == 0 {
		log.Printf("job: no records in %s; nothing written", rng)
	} else if err := j.write(ctx, tbl, res); err != nil {
		return err
	}

	if err := j.ctl.Commit(ctx, runID); err != nil {
		return fmt.Errorf("job: commit: %w", err)
	}
	j.enter(Committed)
	return nil
}

// stage times fn and records its metrics.
func (j *Job) stage(jobName, name string, fn func() error) error {
	t0 := time.Now()
	err := fn()
	metrics.RecordStage(jobName, name, err, time.Since(t0))
	return err
}

func (j *Job) sequentialTable(ctx context.Context, rng datefmt.Range, res *Result) (*table.Table, error) {
	j.enter(Selecting)
	var decoded []record.Record
	err := j.stage(res.JobName, "select", func() error {
		st, err := j.sel.Run(ctx, rng, func(r record.Record) error {
			decoded = append(decoded, r)
			return nil
		})
		res.setSource(st)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordRows(res.JobName, "decoded", len(decoded))

	j.enter(Flattening)
	var flat []record.Record
	err = j.stage(res.JobName, "flatten", func() error {
		var err error
		flat, err = flatten.Flattener{Policy: j.cfg.Policy}.Flatten(decoded, j.cfg.Fields...)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.RecordsFlattened = len(flat)
	metrics.RecordRows(res.JobName, "flattened", len(flat))

	j.enter(Materializing)
	var tbl *table.Table
	err = j.stage(res.JobName, "materialize", func() error {
		var err error
		tbl, err = table.Materialize(flat)
		return err
	})
	return tbl, err
}

func (j *Job) write(ctx context.Context, tbl *table.Table, res *Result) error {
	ocfg := j.cfg.Output
	if j.cfg.UniqueKeys {
		ocfg.RunID = res.RunID
	}
	w, err := output.New(j.store, ocfg)
	if err != nil {
		return err
	}
	w.WithClock(j.now)

	var tx LoadTx
	if j.loader != nil {
		tx, err = j.beginLoad(ctx, tbl, res)
		if err != nil {
			return err
		}
	}

	var wr output.WriteResult
	err = j.stage(res.JobName, "write", func() error {
		var err error
		wr, err = w.Write(ctx, tbl, j.cfg.OutputPrefix)
		return err
	})
	if err != nil {
		if tx != nil {
			if rerr := tx.Rollback(ctx); rerr != nil {
				log.Printf("job: warehouse rollback: %v", rerr)
			}
		}
		return err
	}
	res.Output = &wr
	metrics.RecordRows(res.JobName, "written", wr.Rows)

	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("job: warehouse commit after writing %s: %w", wr.Key, err)
		}
	}
	return nil
}

func (j *Job) beginLoad(ctx context.Context, tbl *table.Table, res *Result) (LoadTx, error) {
	tx, err := j.loader.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("job: warehouse: %w", err)
	}
	err = j.stage(res.JobName, "load", func() error {
		n, err := tx.Load(ctx, tbl)
		res.WarehouseRows = n
		return err
	})
	if err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			log.Printf("job: warehouse rollback: %v", rerr)
		}
		return nil, fmt.Errorf("job: warehouse: %w", err)
	}
	return tx, nil
}

// IsInputError reports whether err came from bad parameters rather than a
// failing dependency.
func IsInputError(err error) bool {
	return errors.Is(err, params.ErrMissingParameter) || errors.Is(err, datefmt.ErrInvalidInput)
}
