package params

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestMapResolver(t *testing.T) {
	r := MapResolver{"begin_date": "Default", "end_date": "Default", "job_name": "AVRO-ETL-GlueJob"}
	got, err := r.Resolve("begin_date", "end_date", "job_name")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got["job_name"] != "AVRO-ETL-GlueJob" || len(got) != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestMapResolver_Missing(t *testing.T) {
	r := MapResolver{"begin_date": "Default", "job_name": " "}
	_, err := r.Resolve("begin_date", "end_date", "job_name")
	if !errors.Is(err, ErrMissingParameter) {
		t.Fatalf("err = %v; want ErrMissingParameter", err)
	}
	if !strings.Contains(err.Error(), "end_date, job_name") {
		t.Fatalf("err = %v; want both names listed", err)
	}
}

func TestViperResolver(t *testing.T) {
	v := viper.New()
	v.Set("params.begin_date", "2024-01-01 00:00:00")
	v.Set("params.end_date", "Default")

	r := ViperResolver{V: v, Prefix: "params"}
	if _, err := r.Resolve("begin_date", "end_date", "job_name"); !errors.Is(err, ErrMissingParameter) {
		t.Fatalf("err = %v; want ErrMissingParameter", err)
	}

	v.Set("params.job_name", "nightly")
	got, err := r.Resolve("begin_date", "end_date", "job_name")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got["begin_date"] != "2024-01-01 00:00:00" || got["job_name"] != "nightly" {
		t.Fatalf("got %v", got)
	}
}
