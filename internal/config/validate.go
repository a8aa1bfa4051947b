package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"

	"avro_etl/internal/flatten"
	"avro_etl/internal/output"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted config key.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static checks over c. It does not mutate c.
func (c Config) Validate() []Issue {
	var issues []Issue
	issues = append(issues, validateStorage(c.Storage)...)
	issues = append(issues, validateSource(c.Source)...)
	issues = append(issues, validateFlatten(c.Flatten)...)
	issues = append(issues, validateOutput(c.Output)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	issues = append(issues, validateWarehouse(c.Warehouse)...)
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateSchedule(c.Schedule)...)
	return issues
}

func errorAt(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)}
}

func warnAt(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)}
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	switch strings.ToLower(s.Kind) {
	case "s3":
		if s.Region == "" {
			issues = append(issues, errorAt("storage.region", "region is required for s3"))
		}
	case "minio":
		if s.Endpoint == "" {
			issues = append(issues, errorAt("storage.endpoint", "endpoint is required for minio"))
		}
	case "mem":
		issues = append(issues, warnAt("storage.kind", "mem storage starts empty and is lost on exit"))
	default:
		issues = append(issues, errorAt("storage.kind", "unknown kind %q (want s3, minio or mem)", s.Kind))
	}
	if strings.TrimSpace(s.Bucket) == "" {
		issues = append(issues, errorAt("storage.bucket", "bucket must not be empty"))
	}
	if (s.AccessKey == "") != (s.SecretKey == "") {
		issues = append(issues, errorAt("storage.access_key", "access_key and secret_key must be set together"))
	}
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	if s.Marker == "" {
		issues = append(issues, warnAt("source.marker", "empty marker selects every object under the prefix"))
	}
	if s.Glob != "" && !doublestar.ValidatePattern(s.Glob) {
		issues = append(issues, errorAt("source.glob", "invalid glob %q", s.Glob))
	}
	if _, err := s.Loc(); err != nil {
		issues = append(issues, errorAt("source.location", "%v", err))
	}
	return issues
}

// Loc loads the configured time zone. Empty means UTC.
func (s Source) Loc() (*time.Location, error) {
	if s.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Location)
	if err != nil {
		return nil, fmt.Errorf("unknown location %q", s.Location)
	}
	return loc, nil
}

func validateFlatten(f Flatten) []Issue {
	var issues []Issue
	policy, err := flatten.ParsePolicy(f.Collision)
	if err != nil {
		issues = append(issues, errorAt("flatten.collision", "%v", err))
	}
	seen := map[string]bool{}
	for i, name := range f.Fields {
		path := fmt.Sprintf("flatten.fields[%d]", i)
		if strings.TrimSpace(name) == "" {
			issues = append(issues, errorAt(path, "field name must not be empty"))
			continue
		}
		if seen[name] {
			if policy == flatten.Reject {
				issues = append(issues, errorAt(path, "field %q listed twice; its keys are lifted twice and collide under reject", name))
			} else {
				issues = append(issues, warnAt(path, "field %q listed twice; the second lift rewrites the same columns", name))
			}
		}
		seen[name] = true
	}
	return issues
}

func validateOutput(o Output) []Issue {
	var issues []Issue
	if strings.TrimSpace(o.Prefix) == "" {
		issues = append(issues, errorAt("output.prefix", "prefix must not be empty"))
	}
	if _, err := output.ParseFormat(o.Format); err != nil {
		issues = append(issues, errorAt("output.format", "%v", err))
	}
	if !o.UniqueKeys {
		issues = append(issues, warnAt("output.unique_keys", "two runs in the same second will write the same key"))
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch strings.ToLower(m.Backend) {
	case "", "none":
		return nil
	case "pushgateway":
		if m.PushgatewayURL == "" {
			return []Issue{errorAt("metrics.pushgateway_url", "pushgateway backend needs a URL")}
		}
		return nil
	}
	return []Issue{errorAt("metrics.backend", "unknown backend %q (want none or pushgateway)", m.Backend)}
}

func validateWarehouse(w Warehouse) []Issue {
	if w.DSN != "" && strings.TrimSpace(w.Table) == "" {
		return []Issue{errorAt("warehouse.table", "table is required when dsn is set")}
	}
	if w.DSN == "" && w.Table != "" {
		return []Issue{warnAt("warehouse.dsn", "table is set but dsn is empty; the load is skipped")}
	}
	return nil
}

func validateRuntime(r Runtime) []Issue {
	if r.Streaming && r.ChannelBuffer < 1 {
		return []Issue{errorAt("runtime.channel_buffer", "must be at least 1 in streaming mode, got %d", r.ChannelBuffer)}
	}
	return nil
}

func validateSchedule(s Schedule) []Issue {
	if s.Cron == "" {
		return nil
	}
	if _, err := cron.ParseStandard(s.Cron); err != nil {
		return []Issue{errorAt("schedule.cron", "invalid cron expression %q: %v", s.Cron, err)}
	}
	return nil
}
