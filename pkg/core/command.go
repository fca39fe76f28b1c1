package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// set by -ldflags "-X github.com/ultra-supara/prchecks/pkg/core.versionInfo=..."
var versionInfo = ""

const (
	// ExitStatusSuccess is returned when the command finished without a problem
	ExitStatusSuccess = 0
	// ExitStatusOutOfDate is returned when --check found generated workflows which are out of date
	ExitStatusOutOfDate = 1
	// ExitStatusInvalidCommandOption is returned when the command line could not be parsed
	ExitStatusInvalidCommandOption = 2
	// ExitStatusFailure is returned when generation stopped with a fatal error
	ExitStatusFailure = 3
)

const usageHeader = `prchecks generates the "PR Checks" GitHub Actions workflows from the check
specifications in a directory.

Every file in the checks directory describes one job. Jobs are expanded with the
checkout and prepare-test steps and a version/OS matrix, then written into
__pr-checks-N.yml workflows holding at most 100 jobs each.

$ prchecks

Verify the generated workflows are up to date (for CI):

$ prchecks --check

Print diagnostics as SARIF:

$ prchecks --format "{{sarif .}}"
`

func getCommandVersion() string {
	var b []byte
	toolVersion := "unknown"
	if versionInfo != "" {
		toolVersion = "v" + versionInfo
	}
	b = fmt.Appendf(b, "Tool version: %s\n", toolVersion)
	b = fmt.Appendf(b, "Go version: %s\n", runtime.Version())
	b = fmt.Appendf(b, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if info, ok := debug.ReadBuildInfo(); ok {
		b = fmt.Appendf(b, "Build info:\n")
		for _, s := range info.Settings {
			if s.Key == "-buildmode" || s.Key == "-compiler" ||
				strings.HasPrefix(s.Key, "GO") ||
				strings.HasPrefix(s.Key, "vcs") {
				b = fmt.Appendf(b, "%s=%s\n", s.Key, s.Value)
			}
		}
	}
	return string(b)
}

// Command is the prchecks command. The given stdin/stdout/stderr are used for input and output.
type Command struct {
	// Stdin is the reader for input from stdin
	Stdin io.Reader
	// Stdout receives generated workflows in dry-run mode and the progress summary
	Stdout io.Writer
	// Stderr receives diagnostics and logs
	Stderr io.Writer
}

type commandFlags struct {
	configFile        string
	checksDir         string
	outputDir         string
	checksPerWorkflow int
	check             bool
	dryRun            bool
	initConfig        bool
	format            string
	color             string
	verbose           bool
	debug             bool
}

func parseColorBehavior(s string) (OutputColorBehavior, error) {
	switch s {
	case "auto":
		return AutoColor, nil
	case "always":
		return AlwaysColor, nil
	case "never":
		return NeverColor, nil
	}
	return AutoColor, fmt.Errorf("invalid value for --color: %q. available values are \"auto\", \"always\" and \"never\"", s)
}

// loadDotenv loads PRCHECKS_* variables kept in a local .env file. A missing file is not an error.
func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not load environment file %q: %w", path, err)
	}
	return nil
}

func (cmd *Command) run(ctx context.Context, c *cobra.Command, f *commandFlags) (int, error) {
	colorBehavior, err := parseColorBehavior(f.color)
	if err != nil {
		return ExitStatusInvalidCommandOption, err
	}
	if f.check && f.dryRun {
		return ExitStatusInvalidCommandOption, errors.New("--check and --dry-run cannot be used together")
	}

	if err := loadDotenv(".env"); err != nil {
		return ExitStatusFailure, err
	}

	opts := &GeneratorOptions{
		IsVerboseOutputEnabled:   f.verbose,
		IsDebugOutputEnabled:     f.debug,
		LogOutputDestination:     cmd.Stderr,
		OutputColorOption:        colorBehavior,
		CustomErrorMessageFormat: f.format,
	}

	if !f.initConfig {
		cfg, _, err := ResolveConfig(".", f.configFile, c.Flags())
		if err != nil {
			return ExitStatusFailure, err
		}
		opts.Config = cfg
	}

	g, err := NewGenerator(cmd.Stderr, opts)
	if err != nil {
		return ExitStatusFailure, err
	}

	if f.initConfig {
		if err := g.GenerateDefaultConfig("."); err != nil {
			return ExitStatusFailure, err
		}
		return ExitStatusSuccess, nil
	}

	if f.check {
		_, drift, err := g.Verify(ctx)
		if err != nil {
			return cmd.reportFailure(g, err), nil
		}
		if len(drift) > 0 {
			return ExitStatusOutOfDate, nil
		}
		return ExitStatusSuccess, nil
	}

	if f.dryRun {
		plan, err := g.Plan(ctx)
		if err != nil {
			return cmd.reportFailure(g, err), nil
		}
		for _, w := range plan.Workflows {
			fmt.Fprintf(cmd.Stdout, "Generated workflow %s:\n%s\n", g.relativePath(w.Path), w.Content)
		}
		return ExitStatusSuccess, nil
	}

	plan, err := g.Generate(ctx)
	if err != nil {
		return cmd.reportFailure(g, err), nil
	}
	for _, w := range plan.Workflows {
		fmt.Fprintf(cmd.Stdout, "Generated workflow %s (%d jobs)\n", g.relativePath(w.Path), len(w.Jobs))
	}
	return ExitStatusSuccess, nil
}

// reportFailure prints a fatal error. Positioned errors are shown with a snippet.
func (cmd *Command) reportFailure(g *Generator, err error) int {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		if derr := g.DisplayErrors([]*GenerationError{genErr}); derr != nil {
			fmt.Fprintln(cmd.Stderr, derr.Error())
		}
		return ExitStatusFailure
	}
	fmt.Fprintln(cmd.Stderr, err.Error())
	return ExitStatusFailure
}

func (cmd *Command) newRootCommand(status *int, ran *bool) *cobra.Command {
	var f commandFlags

	root := &cobra.Command{
		Use:           "prchecks",
		Short:         "Generate the PR Checks workflows from check specifications",
		Long:          usageHeader,
		Args:          cobra.NoArgs,
		Version:       getCommandVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			*ran = true
			s, err := cmd.run(c.Context(), c, &f)
			*status = s
			return err
		},
	}
	root.SetVersionTemplate("{{.Version}}")

	flags := root.Flags()
	flags.StringVar(&f.configFile, "config-file", "", "File path to config file. Defaults to .github/pr-checks.yml of the repository")
	flags.StringVar(&f.checksDir, ConfigChecksDir, DefaultChecksDirectory, "Directory containing the check specifications")
	flags.StringVar(&f.outputDir, ConfigOutputDir, DefaultOutputDirectory, "Directory the workflows are written to")
	flags.IntVar(&f.checksPerWorkflow, ConfigChecksPerWorkflow, DefaultChecksPerWorkflow, "Maximum number of jobs in one workflow")
	flags.BoolVar(&f.check, "check", false, "Verify the generated workflows are up to date without writing them")
	flags.BoolVar(&f.dryRun, FlagDryRun, false, "Print the generated workflows instead of writing them")
	flags.BoolVar(&f.initConfig, "init", false, "Generate default config file at .github/pr-checks.yaml in the current repository")
	flags.StringVar(&f.format, "format", "", "Custom template to format diagnostics in Go template syntax. e.g. \"{{json .}}\" or \"{{sarif .}}\"")
	flags.StringVar(&f.color, "color", "auto", "Color diagnostics: auto, always or never")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVar(&f.debug, "debug", false, "Enable debug output (for development)")
	return root
}

// Main runs the command with args, the full command line including the program
// name, and returns the exit status.
func (cmd *Command) Main(args []string) int {
	status := ExitStatusSuccess
	ran := false

	root := cmd.newRootCommand(&status, &ran)
	root.SetArgs(args[1:])
	root.SetIn(cmd.Stdin)
	root.SetOut(cmd.Stdout)
	root.SetErr(cmd.Stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(cmd.Stderr, err.Error())
		if !ran {
			// flag or argument error reported by cobra before running
			return ExitStatusInvalidCommandOption
		}
		return status
	}
	return status
}
