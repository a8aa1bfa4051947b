package job

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"avro_etl/internal/output"
	"avro_etl/internal/source"
)

// Result holds the run statistics. It is written as JSON by --stats-file.
type Result struct {
	JobName   string  `json:"job_name"`
	RunID     string  `json:"run_id,omitempty"`
	State     State   `json:"state"`
	History   []State `json:"history"`
	BeginDate string  `json:"begin_date,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`

	ObjectsListed    int      `json:"objects_listed"`
	ObjectsSelected  int      `json:"objects_selected"`
	BytesRead        int64    `json:"bytes_read"`
	RecordsDecoded   int      `json:"records_decoded"`
	RecordsFlattened int      `json:"records_flattened"`
	Rows             int      `json:"rows"`
	Columns          []string `json:"columns,omitempty"`

	Output        *output.WriteResult `json:"output,omitempty"`
	WarehouseRows int64               `json:"warehouse_rows,omitempty"`

	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	TotalExecutionTime string    `json:"total_execution_time"`
	ThroughputMBps     float64   `json:"processing_throughput_mb_per_sec"`

	Error string `json:"error,omitempty"`
}

func (r *Result) setSource(st source.Stats) {
	r.ObjectsListed = st.ObjectsListed
	r.ObjectsSelected = st.ObjectsSelected
	r.BytesRead = st.BytesRead
	r.RecordsDecoded = st.Records
}

func (r *Result) finish() {
	d := r.FinishedAt.Sub(r.StartedAt)
	r.TotalExecutionTime = d.String()
	if d.Seconds() > 0 {
		r.ThroughputMBps = float64(r.BytesRead) / 1e6 / d.Seconds()
	}
}

// WriteJSON writes the result to path, indented.
func (r Result) WriteJSON(path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("job: encode stats: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("job: write stats: %w", err)
	}
	return nil
}
