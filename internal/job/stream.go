package job

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"avro_etl/internal/datefmt"
	"avro_etl/internal/flatten"
	"avro_etl/internal/metrics"
	"avro_etl/internal/record"
	"avro_etl/internal/source"
	"avro_etl/internal/table"
)

// streamTable runs decode and flatten concurrently. The producer blocks when
// the channel is full, so at most ChannelBuffer decoded records wait at once.
// Either side failing cancels the other.
func (j *Job) streamTable(ctx context.Context, rng datefmt.Range, res *Result) (*table.Table, error) {
	j.enter(Selecting)

	ch := make(chan record.Record, j.cfg.ChannelBuffer)
	g, gctx := errgroup.WithContext(ctx)

	var (
		st     source.Stats
		selErr error
	)
	g.Go(func() error {
		defer close(ch)
		selErr = j.stage(res.JobName, "select", func() error {
			var err error
			st, err = j.sel.Run(gctx, rng, func(r record.Record) error {
				select {
				case ch <- r:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			return err
		})
		return selErr
	})

	j.enter(Flattening)
	b := table.NewBuilder()
	fl := flatten.Flattener{Policy: j.cfg.Policy}
	g.Go(func() error {
		return j.stage(res.JobName, "flatten", func() error {
			i := 0
			for r := range ch {
				fr, err := fl.One(r, j.cfg.Fields...)
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				if err := b.Add(fr); err != nil {
					return err
				}
				i++
			}
			return nil
		})
	})

	err := g.Wait()
	res.setSource(st)
	if err != nil {
		// The group returns the first error. When that came from the
		// producer, the run failed while selecting, not flattening.
		if selErr != nil && errors.Is(err, selErr) {
			j.history = j.history[:len(j.history)-1]
			j.state = Selecting
		}
		return nil, err
	}
	res.RecordsFlattened = b.Len()
	metrics.RecordRows(res.JobName, "decoded", st.Records)
	metrics.RecordRows(res.JobName, "flattened", b.Len())

	j.enter(Materializing)
	var tbl *table.Table
	_ = j.stage(res.JobName, "materialize", func() error {
		tbl = b.Table()
		return nil
	})
	return tbl, nil
}
