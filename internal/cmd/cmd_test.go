package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"avro_etl/internal/avrodec/avrotest"
	"avro_etl/internal/config"
	"avro_etl/internal/jobctl"
	"avro_etl/internal/storage/memstore"
)

const bucket = "avro-awsglue-job-source"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunOnce_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.db")
	statsPath := filepath.Join(dir, "etl_stats.json")

	store := memstore.New()
	store.Add(bucket, "avro/part-0.avro",
		avrotest.Container(t, avrotest.RateSchema, "snappy", avrotest.Rate(7, 1, 2, "feed")),
		time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC))

	v := config.NewViper()
	v.Set("storage.kind", "mem")
	v.Set("ledger.path", ledgerPath)
	v.Set("params.job_name", "nightly")
	v.Set("params.begin_date", "2024-03-01 00:00:00")
	v.Set("params.end_date", "2024-03-02 00:00:00")

	if err := runOnce(context.Background(), v, store, statsPath); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	var written []string
	for _, k := range store.Keys(bucket) {
		if strings.HasPrefix(k, "test-avro_") && strings.HasSuffix(k, ".csv") {
			written = append(written, k)
		}
	}
	if len(written) != 1 {
		t.Fatalf("keys = %v", store.Keys(bucket))
	}
	body, _ := store.Get(bucket, written[0])
	if want := "decoded_rate_token_a,decoded_rate_token_b,id,source\n1,2,7,feed\n"; string(body) != want {
		t.Fatalf("csv = %q", body)
	}

	b, err := os.ReadFile(statsPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal(b, &stats); err != nil {
		t.Fatalf("stats: %v", err)
	}
	runID, _ := stats["run_id"].(string)
	if runID == "" || !strings.Contains(written[0], runID) {
		t.Fatalf("run id %q not in key %s", runID, written[0])
	}

	l, err := jobctl.OpenLedger(ledgerPath)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer l.Close()
	runs, err := l.Runs(context.Background(), "nightly", 5)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID || runs[0].State != jobctl.StateCommitted {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestRunCmd_FlagsReachParameters(t *testing.T) {
	t.Setenv("AVROETL_STORAGE_KIND", "mem")
	statsPath := filepath.Join(t.TempDir(), "stats.json")

	_, err := execute(t, "run", "--job-name", "flagged",
		"--begin-date", "2024-03-01 00:00:00", "--end-date", "2024-03-02 00:00:00",
		"--stats-file", statsPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := os.ReadFile(statsPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal(b, &stats); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["job_name"] != "flagged" || stats["begin_date"] != "2024-03-01 00:00:00" || stats["state"] != "Committed" {
		t.Fatalf("stats = %v", stats)
	}
}

func TestRunCmd_MissingJobName(t *testing.T) {
	t.Setenv("AVROETL_STORAGE_KIND", "mem")
	_, err := execute(t, "run")
	if err == nil || !strings.Contains(err.Error(), "job_name") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateCmd(t *testing.T) {
	out, err := execute(t, "validate")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok") {
		t.Fatalf("out = %q", out)
	}

	t.Setenv("AVROETL_OUTPUT_FORMAT", "xlsx")
	out, err = execute(t, "validate")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 2 {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, "output.format") {
		t.Fatalf("out = %q", out)
	}
}

func TestRunsCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := jobctl.OpenLedger(path)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	ctx := context.Background()
	id, err := l.Init(ctx, "nightly", map[string]string{"begin_date": "2024-03-01 00:00:00", "end_date": "2024-03-02 00:00:00"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := l.Commit(ctx, id); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	l.Close()

	t.Setenv("AVROETL_LEDGER_PATH", path)
	out, err := execute(t, "runs", "--job-name", "nightly")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, jobctl.StateCommitted) {
		t.Fatalf("out = %q", out)
	}
}

func TestRunsCmd_NoLedger(t *testing.T) {
	if _, err := execute(t, "runs"); err == nil {
		t.Fatal("expected error without ledger.path")
	}
}

func TestCheck(t *testing.T) {
	store := memstore.New()
	store.Add(bucket, "avro/a.avro", []byte("x"), time.Now())
	store.Add("sink", "test-avro_1.csv", []byte("x"), time.Now())

	cfg, err := config.Load(config.NewViper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Output.Bucket = "sink"

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	if err := check(cmd, cfg, store); err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out.String(), "source avro-awsglue-job-source/avro: 1 object(s)") ||
		!strings.Contains(out.String(), "output sink/test-avro: 1 object(s)") {
		t.Fatalf("out = %q", out.String())
	}

	store.ListErr = errors.New("denied")
	if err := check(cmd, cfg, store); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenStorage(t *testing.T) {
	if _, err := openStorage(config.Storage{Kind: "mem"}); err != nil {
		t.Fatalf("mem: %v", err)
	}
	if _, err := openStorage(config.Storage{Kind: "minio"}); err == nil {
		t.Fatal("minio without endpoint should fail")
	}
	if _, err := openStorage(config.Storage{Kind: "gcs"}); err == nil {
		t.Fatal("unknown kind should fail")
	}
}

func TestSetupMetrics(t *testing.T) {
	if err := setupMetrics(config.Metrics{Backend: "none"}, "job"); err != nil {
		t.Fatalf("none: %v", err)
	}
	if err := setupMetrics(config.Metrics{Backend: "pushgateway"}, "job"); err == nil {
		t.Fatal("pushgateway without url should fail")
	}
}
