package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldryand/goflow/v2"
	"go.uber.org/zap"

	"alphadip-config/configs"
	"alphadip-config/pipelines"
	"alphadip-config/types"
)

// Name is the registry key of the setup check pipeline
const Name = "setup"

const description = "Validate the tracker configuration and check the sheet and Apps Script endpoints"

// Step names
const (
	StepValidateConfig  = "validate_config"
	StepCheckSheet      = "check_sheet"
	StepCheckAppsScript = "check_apps_script"
)

// State keys
const (
	KeySheetInfo   = "sheet_info"
	KeyScriptInfo  = "script_info"
	KeyInvalidKeys = "invalid_keys"
)

func init() {
	pipelines.Register(pipelines.Descriptor{
		Name:        Name,
		Description: description,
		Flags:       []string{"--file", "--offline"},
	}, func(state *pipelines.State) pipelines.Pipeline {
		return New(state)
	})
}

// Pipeline implements the setup check
type Pipeline struct {
	state *pipelines.State
	ctx   context.Context
}

// New creates a setup check bound to state
func New(state *pipelines.State) *Pipeline {
	return &Pipeline{state: state, ctx: context.Background()}
}

// Name returns the pipeline identifier
func (p *Pipeline) Name() string {
	return Name
}

// Description returns a human-readable description
func (p *Pipeline) Description() string {
	return description
}

// ValidateConfig validates the credential record without touching the network
func (p *Pipeline) ValidateConfig() error {
	return p.state.Config.Validate()
}

// Run executes all checks and returns the report. The error is non-nil when
// any check failed; the report still describes every step.
func (p *Pipeline) Run(ctx context.Context) (*types.CheckReport, error) {
	start := time.Now()
	zap.L().Info("Running setup check",
		zap.Any("config", p.state.Config.Masked()),
		zap.Bool("offline", p.state.Offline),
	)

	flow := pipelines.NewFlow(Name)
	flow.AddTask(StepValidateConfig, p.validateConfig)
	flow.AddTask(StepCheckSheet, p.checkSheet, StepValidateConfig)
	flow.AddTask(StepCheckAppsScript, p.checkAppsScript, StepValidateConfig)

	err := flow.Run(ctx)

	report := &types.CheckReport{
		Success:   err == nil,
		StartedAt: start.UTC(),
		Duration:  time.Since(start).Seconds(),
		Checks:    flow.Results(),
	}
	if v, ok := p.state.Get(KeySheetInfo).(*types.SheetInfo); ok {
		report.Sheet = v
	}
	if v, ok := p.state.Get(KeyScriptInfo).(*types.ScriptInfo); ok {
		report.Script = v
	}
	if v, ok := p.state.Get(KeyInvalidKeys).([]string); ok {
		report.Invalid = v
	}
	if err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("setup check: %w", err)
	}

	zap.L().Info("Setup check passed", zap.Float64("duration", report.Duration))
	return report, nil
}

func (p *Pipeline) validateConfig(ctx context.Context) error {
	err := p.state.Config.Validate()
	var ve *configs.ValidationError
	if errors.As(err, &ve) {
		p.state.Set(KeyInvalidKeys, ve.Keys())
	}
	return err
}

func (p *Pipeline) checkSheet(ctx context.Context) error {
	if p.state.Offline || p.state.Sheets == nil {
		return pipelines.ErrSkip
	}
	info, err := p.state.Sheets.Describe(ctx)
	if err != nil {
		return err
	}
	p.state.Set(KeySheetInfo, info)
	return nil
}

func (p *Pipeline) checkAppsScript(ctx context.Context) error {
	if p.state.Offline || p.state.Script == nil {
		return pipelines.ErrSkip
	}
	info, err := p.state.Script.Ping(ctx)
	if err != nil {
		return err
	}
	p.state.Set(KeyScriptInfo, info)
	return nil
}

// Job returns a goflow job factory function for scheduled runs
func (p *Pipeline) Job() func() *goflow.Job {
	return func() *goflow.Job {
		j := &goflow.Job{
			Name:     "setup-check",
			Schedule: "@hourly",
			Active:   true,
		}

		j.Add(&goflow.Task{
			Name:     StepValidateConfig,
			Operator: &stepOp{pipeline: p, fn: p.validateConfig},
		})
		j.Add(&goflow.Task{
			Name:       StepCheckSheet,
			Operator:   &stepOp{pipeline: p, fn: p.checkSheet},
			Retries:    2,
			RetryDelay: goflow.ConstantDelay{Period: 5},
		})
		j.Add(&goflow.Task{
			Name:       StepCheckAppsScript,
			Operator:   &stepOp{pipeline: p, fn: p.checkAppsScript},
			Retries:    2,
			RetryDelay: goflow.ConstantDelay{Period: 5},
		})

		setupDAGEdges(j)
		return j
	}
}

// setupDAGEdges mirrors the dependencies declared in Run
func setupDAGEdges(j *goflow.Job) {
	validate := j.Task(StepValidateConfig)
	sheet := j.Task(StepCheckSheet)
	script := j.Task(StepCheckAppsScript)

	for name, task := range map[string]*goflow.Task{
		StepValidateConfig:  validate,
		StepCheckSheet:      sheet,
		StepCheckAppsScript: script,
	} {
		if task == nil {
			panic(fmt.Sprintf("task %q not found in job - check task name spelling", name))
		}
	}

	j.SetDownstream(validate, sheet)
	j.SetDownstream(validate, script)
}

// stepOp adapts a step to goflow's Operator
type stepOp struct {
	pipeline *Pipeline
	fn       func(ctx context.Context) error
}

func (o *stepOp) Run() (any, error) {
	err := o.fn(o.pipeline.ctx)
	if errors.Is(err, pipelines.ErrSkip) {
		return "skipped", nil
	}
	return nil, err
}
