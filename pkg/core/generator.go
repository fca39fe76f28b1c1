package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// OutputColorBehavior is how diagnostics are colored.
type OutputColorBehavior int

const (
	// AutoColor colors output when it goes to a terminal.
	AutoColor OutputColorBehavior = iota
	// AlwaysColor always colors output.
	AlwaysColor
	// NeverColor never colors output.
	NeverColor
)

// GeneratorOptions configures NewGenerator. The zero value is the default behavior.
type GeneratorOptions struct {
	// IsVerboseOutputEnabled enables progress logs
	IsVerboseOutputEnabled bool
	// IsDebugOutputEnabled enables debug logs
	IsDebugOutputEnabled bool
	// LogOutputDestination receives log output. Diagnostics are not part of it.
	LogOutputDestination io.Writer
	// OutputColorOption is how diagnostics are colored
	OutputColorOption OutputColorBehavior
	// CustomErrorMessageFormat is a Go template used to print diagnostics
	CustomErrorMessageFormat string
	// CurrentWorkingDirectoryPath is the directory relative paths are resolved against
	CurrentWorkingDirectoryPath string
	// Config is used as is when set. Otherwise it is resolved with ResolveConfig.
	Config *Config
}

// Generator generates workflows from check specifications.
type Generator struct {
	// errorOutput receives diagnostics
	errorOutput io.Writer
	logger      *zap.Logger
	config      *Config
	// project is nil when the working directory is not in a repository
	project                 *Project
	errorFormatter          *ErrorFormatter
	currentWorkingDirectory string
}

// Plan is the result of a generation run before anything is written.
type Plan struct {
	Checks    []*Check
	Jobs      []*Job
	Workflows []*Workflow
	// Warnings are policy findings which do not stop the generation
	Warnings []*GenerationError
	// OutputDirectory is the resolved directory workflows are written to
	OutputDirectory string
}

// ResolveConfig finds the project containing cwd and loads the configuration.
// configPath takes precedence over the project's .github/pr-checks.yml. flags may be nil.
func ResolveConfig(cwd, configPath string, flags *pflag.FlagSet) (*Config, *Project, error) {
	project := locateProject(cwd)
	if configPath == "" && project != nil {
		configPath = project.ConfigPath()
	}
	cfg, err := LoadConfig(configPath, flags)
	if err != nil {
		return nil, project, err
	}
	return cfg, project, nil
}

// NewGenerator creates a Generator. errorOutput receives diagnostics; pass io.Discard
// to drop them.
func NewGenerator(errorOutput io.Writer, opts *GeneratorOptions) (*Generator, error) {
	level := LogLevelNoOutput
	if opts.IsDebugOutputEnabled {
		level = LogLevelAllOutputIncludingDebug
	} else if opts.IsVerboseOutputEnabled {
		level = LogLevelDetailedOutput
	}

	switch opts.OutputColorOption {
	case NeverColor:
		color.NoColor = true
	case AlwaysColor:
		color.NoColor = false
	}
	//カラフル出力
	if f, ok := errorOutput.(*os.File); ok {
		errorOutput = colorable.NewColorable(f)
	}

	var formatter *ErrorFormatter
	if opts.CustomErrorMessageFormat != "" {
		f, err := NewErrorFormatter(opts.CustomErrorMessageFormat)
		if err != nil {
			return nil, err
		}
		formatter = f
	}

	cwd := opts.CurrentWorkingDirectoryPath
	if cwd == "" {
		if d, err := os.Getwd(); err == nil {
			cwd = d
		}
	}

	cfg := opts.Config
	var project *Project
	if cfg == nil {
		c, p, err := ResolveConfig(cwd, "", nil)
		if err != nil {
			return nil, err
		}
		cfg, project = c, p
	} else {
		project = locateProject(cwd)
	}

	return &Generator{
		errorOutput:             errorOutput,
		logger:                  newLogger(opts.LogOutputDestination, level),
		config:                  cfg,
		project:                 project,
		errorFormatter:          formatter,
		currentWorkingDirectory: cwd,
	}, nil
}

// Config returns the configuration the generator runs with.
func (g *Generator) Config() *Config {
	return g.config
}

func (g *Generator) resolvePath(p string) string {
	if filepath.IsAbs(p) || g.currentWorkingDirectory == "" {
		return p
	}
	return filepath.Join(g.currentWorkingDirectory, p)
}

func (g *Generator) relativePath(p string) string {
	if g.currentWorkingDirectory == "" || !filepath.IsAbs(p) {
		return p
	}
	if r, err := filepath.Rel(g.currentWorkingDirectory, p); err == nil {
		return r
	}
	return p
}

// Plan loads every check, builds the jobs, evaluates the credential policy and
// renders the workflows in memory. Nothing is written.
func (g *Generator) Plan(ctx context.Context) (*Plan, error) {
	checksDir := g.resolvePath(g.config.ChecksDirectory)
	outDir := g.resolvePath(g.config.OutputDirectory)
	g.logger.Info("loading check specifications", zap.String("dir", g.relativePath(checksDir)))
	if g.project != nil {
		g.logger.Debug("detected project", zap.String("root", g.project.RootDirectory()))
		if !g.project.IsKnown(outDir) {
			g.logger.Debug("output directory is outside of the project", zap.String("dir", outDir))
		} else if wd := g.project.WorkflowDirectory(); outDir != wd {
			g.logger.Debug("output directory is not the workflow directory of the project", zap.String("dir", outDir), zap.String("workflows", wd))
		}
	}
	g.logger.Debug("configuration", zap.Any("config", g.config))

	checks, err := LoadChecks(checksDir)
	if err != nil {
		return nil, err
	}
	g.logger.Info("loaded check specifications", zap.Int("count", len(checks)))

	jobs := BuildJobs(checks, JobDefaultsFromConfig(g.config))
	for _, j := range jobs {
		g.logger.Debug("built job", zap.String("id", j.ID), zap.String("name", j.Check.Name), zap.Int("steps", len(j.Check.Steps.Content)+2))
	}

	warnings, err := g.checkPolicies(ctx, jobs)
	if err != nil {
		return nil, err
	}

	workflows, err := RenderWorkflows(outDir, jobs, g.config.ChecksPerWorkflow, g.config.Branches)
	if err != nil {
		return nil, err
	}
	for _, w := range workflows {
		if w.Overwritten > 0 {
			g.logger.Debug("jobs with duplicated IDs were overwritten", zap.Int("workflow", w.Number), zap.Int("overwritten", w.Overwritten))
		}
		g.logger.Info("rendered workflow", zap.String("file", g.relativePath(w.Path)), zap.Int("jobs", len(w.Jobs)))
	}

	if len(warnings) > 0 {
		if err := g.DisplayErrors(warnings); err != nil {
			return nil, err
		}
	}

	return &Plan{
		Checks:          checks,
		Jobs:            jobs,
		Workflows:       workflows,
		Warnings:        warnings,
		OutputDirectory: outDir,
	}, nil
}

func (g *Generator) checkPolicies(ctx context.Context, jobs []*Job) ([]*GenerationError, error) {
	policy, err := NewCredentialPolicy(ctx)
	if err != nil {
		return nil, err
	}
	var warnings []*GenerationError
	for _, j := range jobs {
		found, err := policy.CheckJob(ctx, j)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, found...)
	}
	sort.Stable(ByErrorPosition(warnings))
	g.logger.Debug("evaluated credential policy", zap.Int("jobs", len(jobs)), zap.Int("warnings", len(warnings)))
	return warnings, nil
}

// Generate plans the workflows, writes them and removes generated workflows left
// over from a previous run with more batches. All input is read and rendered before
// the first file is written.
func (g *Generator) Generate(ctx context.Context) (*Plan, error) {
	plan, err := g.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if err := WriteWorkflows(plan.OutputDirectory, plan.Workflows); err != nil {
		return nil, err
	}
	removed, err := RemoveStaleWorkflows(plan.OutputDirectory, len(plan.Workflows))
	if err != nil {
		return nil, err
	}
	for _, p := range removed {
		g.logger.Info("removed stale workflow", zap.String("file", g.relativePath(p)))
	}
	g.logger.Info("generated workflows", zap.Int("workflows", len(plan.Workflows)), zap.Int("jobs", len(plan.Jobs)))
	return plan, nil
}

// Verify plans the workflows and compares them with the files on disk. Missing,
// different and stale files are reported as out-of-date diagnostics.
func (g *Generator) Verify(ctx context.Context) (*Plan, []*GenerationError, error) {
	plan, err := g.Plan(ctx)
	if err != nil {
		return nil, nil, err
	}
	existing, err := existingWorkflowFiles(plan.OutputDirectory)
	if err != nil {
		return nil, nil, err
	}

	var drift []*GenerationError
	for _, w := range plan.Workflows {
		path := g.relativePath(w.Path)
		if _, ok := existing[w.Number]; !ok {
			drift = append(drift, &GenerationError{
				Description: "workflow file is missing. regenerate workflows",
				FilePath:    path,
				Kind:        KindOutOfDate,
			})
			continue
		}
		b, err := os.ReadFile(w.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("could not read generated workflow %q: %w", w.Path, err)
		}
		if line, differs := firstDifferentLine(b, w.Content); differs {
			drift = append(drift, &GenerationError{
				Description: "workflow file is out of date. regenerate workflows",
				FilePath:    path,
				LineNumber:  line,
				ColNumber:   1,
				Kind:        KindOutOfDate,
				Source:      b,
			})
		}
	}

	stale, err := staleWorkflowFiles(plan.OutputDirectory, len(plan.Workflows))
	if err != nil {
		return nil, nil, err
	}
	for _, p := range stale {
		drift = append(drift, &GenerationError{
			Description: "workflow file is no longer generated. remove it or regenerate workflows",
			FilePath:    g.relativePath(p),
			Kind:        KindOutOfDate,
		})
	}

	g.logger.Info("verified workflows", zap.Int("workflows", len(plan.Workflows)), zap.Int("out-of-date", len(drift)))
	if len(drift) > 0 {
		if err := g.DisplayErrors(drift); err != nil {
			return nil, nil, err
		}
	}
	return plan, drift, nil
}

// firstDifferentLine returns the 1-based line where actual first differs from want.
func firstDifferentLine(actual, want []byte) (int, bool) {
	if bytes.Equal(actual, want) {
		return 0, false
	}
	a := bytes.Split(actual, []byte("\n"))
	w := bytes.Split(want, []byte("\n"))
	for i := 0; i < len(a) && i < len(w); i++ {
		if !bytes.Equal(a[i], w[i]) {
			return i + 1, true
		}
	}
	return min(len(a), len(w)), true
}

// GenerateDefaultConfig writes a default .github/pr-checks.yaml into the project containing dir.
func (g *Generator) GenerateDefaultConfig(dir string) error {
	g.logger.Info("generating default config file", zap.String("dir", dir))

	project := locateProject(g.resolvePath(dir))
	if project == nil {
		return errors.New("project not found. make sure the current directory is inside a git repository with a \".github\" directory")
	}

	path := filepath.Join(project.RootDirectory(), ".github", "pr-checks.yaml")
	if existing := project.ConfigPath(); existing != "" {
		return fmt.Errorf("config file already exists: %q", existing)
	}
	if err := writeDefaultConfigFile(path); err != nil {
		return err
	}

	fmt.Fprintf(g.errorOutput, "generated default config file: %q\n", path)
	return nil
}

// DisplayErrors prints diagnostics with the custom format when one is set, or in
// the colored default layout.
func (g *Generator) DisplayErrors(errs []*GenerationError) error {
	for _, e := range errs {
		e.FilePath = g.relativePath(e.FilePath)
	}
	if g.errorFormatter != nil {
		return g.errorFormatter.PrintErrors(g.errorOutput, errs)
	}
	for _, e := range errs {
		e.DisplayError(g.errorOutput)
	}
	return nil
}
