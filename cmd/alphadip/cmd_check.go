package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"alphadip-config/configs"
	"alphadip-config/pipelines"
	"alphadip-config/pipelines/setup"
	"alphadip-config/tasks"
	"alphadip-config/types"
)

// newState is swapped in tests to avoid calling Google
var newState = func(ctx context.Context, cfg configs.Config, offline bool, timeout time.Duration) (*pipelines.State, error) {
	if offline {
		return pipelines.NewOfflineState(cfg), nil
	}
	return pipelines.NewState(ctx, cfg, timeout)
}

func newCheckCmd() *cobra.Command {
	var (
		file    string
		offline bool
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the runtime config and check the sheet and Apps Script endpoints",
		Long: `Run the setup check: validate the runtime config, then read the
spreadsheet metadata with the API key and call the Apps Script web app.

--offline runs the validation step only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configs.LoadFile(file)
			if err != nil {
				return failed(err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			state, err := newState(ctx, cfg, offline, timeout)
			if err != nil {
				return failed(err)
			}
			pipeline, err := pipelines.New(setup.Name, state)
			if err != nil {
				return failed(err)
			}

			report, runErr := pipeline.Run(ctx)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return failed(err)
				}
			} else {
				printReport(cmd.OutOrStdout(), file, report)
			}

			if runErr != nil {
				return &exitError{code: exitFailed}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", configs.RuntimeFileName, "Runtime config path")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that call Google")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall check timeout")
	return cmd
}

func printReport(w io.Writer, file string, report *types.CheckReport) {
	fmt.Fprintf(w, "Setup check for %s\n", file)
	for _, c := range report.Checks {
		line := fmt.Sprintf("  %-18s %s", c.Name, strings.ToUpper(c.Status))
		if c.Error != "" {
			line += ": " + c.Error
		}
		fmt.Fprintln(w, line)
	}
	if report.Sheet != nil {
		fmt.Fprintf(w, "Sheet: %q (%s)\n", report.Sheet.Title, strings.Join(report.Sheet.Tabs, ", "))
	}
	if report.Script != nil {
		fmt.Fprintf(w, "Apps Script: HTTP %d\n", report.Script.StatusCode)
	}
	if len(report.Invalid) > 0 {
		fmt.Fprintf(w, "Fix in %s: %s\n", file, strings.Join(report.Invalid, ", "))
	}
	if report.Success {
		fmt.Fprintln(w, "OK")
	} else {
		fmt.Fprintln(w, "FAILED")
	}
}

// historyReader is the part of tasks.LogClient the history command uses
type historyReader interface {
	History(ctx context.Context, q tasks.LogQuery) ([]tasks.CheckRun, error)
	Close() error
}

// newHistoryReader is swapped in tests to avoid calling Cloud Logging
var newHistoryReader = func(ctx context.Context, projectID, serviceName string) (historyReader, error) {
	return tasks.NewLogClient(ctx, projectID, serviceName)
}

func newHistoryCmd() *cobra.Command {
	var (
		projectID string
		service   string
		q         tasks.LogQuery
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent setup check runs from Cloud Logging",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return errors.New("--project or GCP_PROJECT_ID is required")
			}
			if _, ok := pipelines.GetDescriptor(q.Pipeline); q.Pipeline != "" && !ok {
				return fmt.Errorf("unknown pipeline %q", q.Pipeline)
			}
			sev, err := tasks.NormalizeSeverity(q.Severity)
			if err != nil {
				return err
			}
			q.Severity = sev

			client, err := newHistoryReader(cmd.Context(), projectID, service)
			if err != nil {
				return failed(err)
			}
			defer client.Close()

			runs, err := client.History(cmd.Context(), q)
			if err != nil {
				return failed(err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No check runs found")
				return nil
			}
			for _, r := range runs {
				status := "OK"
				if !r.Success {
					status = "FAILED"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %-6s %s\n",
					r.StartTime.Local().Format(time.RFC3339), r.Pipeline, status, r.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", os.Getenv("GCP_PROJECT_ID"), "GCP project ID")
	cmd.Flags().StringVar(&service, "service", "alphadip-config", "Cloud Run service name")
	cmd.Flags().StringVar(&q.Pipeline, "pipeline", setup.Name, "Pipeline name")
	cmd.Flags().StringVar(&q.Severity, "severity", "", "Minimum log severity, for example WARNING")
	cmd.Flags().DurationVar(&q.Since, "since", 24*time.Hour, "How far back to look")
	cmd.Flags().IntVar(&q.Limit, "limit", 200, "Maximum log entries to read")
	return cmd
}

func newPipelinesCmd() *cobra.Command {
	var dag string

	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List registered check pipelines",
		Long: `List registered check pipelines.

--dag NAME prints the task graph of one pipeline instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dag == "" {
				fmt.Fprint(cmd.OutOrStdout(), pipelines.ListWithDescriptions())
				return nil
			}

			graph, err := pipelines.DescribeJob(dag, pipelines.NewOfflineState(configs.Config{}))
			if err != nil {
				return failed(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (job %s, schedule %s)\n", graph.Pipeline, graph.Job, graph.Schedule)
			for _, task := range graph.Tasks {
				if len(task.Downstream) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", task.Name)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s\n", task.Name, strings.Join(task.Downstream, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dag, "dag", "", "Print the task graph of this pipeline")
	return cmd
}
