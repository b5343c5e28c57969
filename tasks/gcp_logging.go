package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/logging"
	"cloud.google.com/go/logging/logadmin"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/types/known/structpb"

	"alphadip-config/types"
)

// LogEntry is a parsed check log line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Pipeline  string    `json:"pipeline,omitempty"`
	Step      string    `json:"step,omitempty"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
}

// CheckRun is one setup check execution reconstructed from logs
type CheckRun struct {
	Pipeline  string              `json:"pipeline"`
	StartTime time.Time           `json:"start_time"`
	EndTime   time.Time           `json:"end_time,omitempty"`
	Success   bool                `json:"success"`
	Checks    []types.CheckResult `json:"checks"`
	Error     string              `json:"error,omitempty"`
	LogsURL   string              `json:"logs_url,omitempty"`
}

// LogQuery filters the history query
type LogQuery struct {
	Pipeline string        // optional
	Severity string        // optional minimum severity (INFO, WARNING, ERROR)
	Since    time.Duration // default 24h
	Limit    int           // default 200
}

// LogClient reads check history from Cloud Logging
type LogClient struct {
	client      *logadmin.Client
	projectID   string
	serviceName string
}

// NewLogClient creates a Cloud Logging admin client
func NewLogClient(ctx context.Context, projectID, serviceName string) (*LogClient, error) {
	client, err := logadmin.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create logadmin client: %w", err)
	}
	return &LogClient{
		client:      client,
		projectID:   projectID,
		serviceName: serviceName,
	}, nil
}

// Close closes the logging client
func (c *LogClient) Close() error {
	return c.client.Close()
}

// History returns recent check runs, newest first
func (c *LogClient) History(ctx context.Context, q LogQuery) ([]CheckRun, error) {
	entries, err := c.QueryLogs(ctx, q)
	if err != nil {
		return nil, err
	}
	return GroupByRun(entries, c.projectID, c.serviceName), nil
}

// QueryLogs returns application log lines carrying a pipeline field
func (c *LogClient) QueryLogs(ctx context.Context, q LogQuery) ([]LogEntry, error) {
	sev, err := NormalizeSeverity(q.Severity)
	if err != nil {
		return nil, err
	}
	q.Severity = sev
	if q.Since == 0 {
		q.Since = 24 * time.Hour
	}
	if q.Limit == 0 {
		q.Limit = 200
	}

	it := c.client.Entries(ctx,
		logadmin.Filter(buildFilter(c.serviceName, q, time.Now())),
		logadmin.NewestFirst(),
	)

	var entries []LogEntry
	for len(entries) < q.Limit {
		entry, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate logs: %w", err)
		}

		le := LogEntry{
			Timestamp: entry.Timestamp,
			Severity:  entry.Severity.String(),
		}
		switch p := entry.Payload.(type) {
		case *structpb.Struct:
			parsePayload(&le, p.AsMap())
		case map[string]interface{}:
			parsePayload(&le, p)
		case string:
			le.Message = p
		}

		if le.Message == "" {
			continue
		}
		entries = append(entries, le)
	}

	return entries, nil
}

// ErrBadSeverity is returned for a severity Cloud Logging does not define
var ErrBadSeverity = errors.New("unknown log severity")

// NormalizeSeverity returns the Cloud Logging name of a severity, for
// example "warning" becomes "WARNING". An empty severity stays empty.
func NormalizeSeverity(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	sev := logging.ParseSeverity(s)
	if sev == logging.Default && !strings.EqualFold(s, "default") {
		return "", fmt.Errorf("%w: %q", ErrBadSeverity, s)
	}
	return strings.ToUpper(sev.String()), nil
}

func buildFilter(serviceName string, q LogQuery, now time.Time) string {
	filter := fmt.Sprintf(
		`resource.type="cloud_run_revision" AND resource.labels.service_name=%s AND timestamp>="%s" AND jsonPayload.pipeline!=""`,
		strconv.Quote(serviceName),
		now.Add(-q.Since).Format(time.RFC3339),
	)
	if sev, err := NormalizeSeverity(q.Severity); err == nil && sev != "" {
		filter += " AND severity>=" + sev
	}
	if q.Pipeline != "" {
		filter += " AND jsonPayload.pipeline=" + strconv.Quote(q.Pipeline)
	}
	return filter
}

func parsePayload(le *LogEntry, fields map[string]interface{}) {
	le.Message, _ = fields["msg"].(string)
	le.Pipeline, _ = fields["pipeline"].(string)
	le.Step, _ = fields["step"].(string)
	le.Error, _ = fields["error"].(string)
	le.Duration, _ = fields["duration"].(float64)
}

// buildLogsURL links to the Cloud Logging console positioned at the run start
func buildLogsURL(projectID, serviceName string, startTime time.Time) string {
	query := fmt.Sprintf(`resource.type="cloud_run_revision"
resource.labels.service_name="%s"`, serviceName)

	return fmt.Sprintf("https://console.cloud.google.com/logs/query;query=%s;cursorTimestamp=%s?project=%s",
		url.QueryEscape(query), url.QueryEscape(startTime.Format(time.RFC3339Nano)), projectID)
}

// GroupByRun folds Flow log lines ("pipeline started", "step completed", ...)
// into runs, newest first.
func GroupByRun(entries []LogEntry, projectID, serviceName string) []CheckRun {
	if len(entries) == 0 {
		return nil
	}

	sorted := make([]LogEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var runs []*CheckRun
	current := make(map[string]*CheckRun) // latest open run per pipeline

	for _, e := range sorted {
		if e.Pipeline == "" {
			continue
		}

		run := current[e.Pipeline]
		if e.Message == "pipeline started" || run == nil {
			run = &CheckRun{
				Pipeline:  e.Pipeline,
				StartTime: e.Timestamp,
				Success:   true,
				Checks:    []types.CheckResult{},
			}
			runs = append(runs, run)
			current[e.Pipeline] = run
			if e.Message == "pipeline started" {
				continue
			}
		}

		switch e.Message {
		case "step completed":
			run.Checks = append(run.Checks, types.CheckResult{
				Name:     e.Step,
				Status:   types.StatusPassed,
				Duration: e.Duration,
			})
		case "step failed":
			run.Checks = append(run.Checks, types.CheckResult{
				Name:     e.Step,
				Status:   types.StatusFailed,
				Error:    e.Error,
				Duration: e.Duration,
			})
			run.Success = false
			run.Error = e.Error
		case "step skipped":
			run.Checks = append(run.Checks, types.CheckResult{
				Name:   e.Step,
				Status: types.StatusSkipped,
			})
		case "pipeline completed":
			run.EndTime = e.Timestamp
		case "pipeline failed":
			run.EndTime = e.Timestamp
			run.Success = false
			if run.Error == "" {
				run.Error = e.Error
			}
		}
	}

	result := make([]CheckRun, 0, len(runs))
	for _, run := range runs {
		run.LogsURL = buildLogsURL(projectID, serviceName, run.StartTime)
		result = append(result, *run)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	return result
}
