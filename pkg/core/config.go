package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the configuration of prchecks. Values come from, in order of precedence,
// command line flags, PRCHECKS_* environment variables, the config file and the defaults.
type Config struct {
	// ChecksDirectory is the directory holding one check specification per file
	ChecksDirectory string `mapstructure:"checks-dir" yaml:"checks-dir"`
	// OutputDirectory is where __pr-checks-N.yml files are written
	OutputDirectory string `mapstructure:"output-dir" yaml:"output-dir"`
	// ChecksPerWorkflow is the maximum number of jobs in one generated workflow
	ChecksPerWorkflow int `mapstructure:"checks-per-workflow" yaml:"checks-per-workflow"`
	// DefaultVersions is the version axis of checks without "versions"
	DefaultVersions []string `mapstructure:"default-versions" yaml:"default-versions"`
	// DefaultOperatingSystems is the os axis of checks without "os"
	DefaultOperatingSystems []string `mapstructure:"default-os" yaml:"default-os"`
	// Branches are the branches whose pushes trigger the workflows
	Branches []string `mapstructure:"branches" yaml:"branches"`
}

const configEnvPrefix = "PRCHECKS"

// config keys which can also be set by flags of the same name
const (
	ConfigChecksDir         = "checks-dir"
	ConfigOutputDir         = "output-dir"
	ConfigChecksPerWorkflow = "checks-per-workflow"
	ConfigDefaultVersions   = "default-versions"
	ConfigDefaultOS         = "default-os"
	ConfigBranches          = "branches"
)

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		ChecksDirectory:         DefaultChecksDirectory,
		OutputDirectory:         DefaultOutputDirectory,
		ChecksPerWorkflow:       DefaultChecksPerWorkflow,
		DefaultVersions:         append([]string(nil), DefaultTestVersions...),
		DefaultOperatingSystems: append([]string(nil), DefaultOperatingSystems...),
		Branches:                append([]string(nil), DefaultBranches...),
	}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault(ConfigChecksDir, d.ChecksDirectory)
	v.SetDefault(ConfigOutputDir, d.OutputDirectory)
	v.SetDefault(ConfigChecksPerWorkflow, d.ChecksPerWorkflow)
	v.SetDefault(ConfigDefaultVersions, d.DefaultVersions)
	v.SetDefault(ConfigDefaultOS, d.DefaultOperatingSystems)
	v.SetDefault(ConfigBranches, d.Branches)

	// PRCHECKS_CHECKS_DIR, PRCHECKS_DEFAULT_OS=ubuntu-latest,windows-latest, ...
	v.SetEnvPrefix(configEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig resolves the configuration. path is the config file to read and may be
// empty. flags may be nil; only flags changed on the command line override other sources.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := newConfigViper()

	if path != "" {
		v.SetConfigFile(path)
		if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			msg := strings.ReplaceAll(err.Error(), "\n", " ")
			return nil, fmt.Errorf("failed to read config file %q: %s", path, msg)
		}
	}

	if flags != nil {
		for _, name := range []string{ConfigChecksDir, ConfigOutputDir, ConfigChecksPerWorkflow} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(name, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("invalid configuration in %q: %w", path, err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting which cannot produce a usable workflow.
func (c *Config) Validate() error {
	if c.ChecksDirectory == "" {
		return fmt.Errorf("%q must not be empty", ConfigChecksDir)
	}
	if c.OutputDirectory == "" {
		return fmt.Errorf("%q must not be empty", ConfigOutputDir)
	}
	if c.ChecksPerWorkflow < 1 {
		return fmt.Errorf("%q must be at least 1 but got %d", ConfigChecksPerWorkflow, c.ChecksPerWorkflow)
	}
	if len(c.DefaultVersions) == 0 {
		return fmt.Errorf("%q must contain at least one version", ConfigDefaultVersions)
	}
	if len(c.DefaultOperatingSystems) == 0 {
		return fmt.Errorf("%q must contain at least one runner", ConfigDefaultOS)
	}
	if len(c.Branches) == 0 {
		return fmt.Errorf("%q must contain at least one branch", ConfigBranches)
	}
	return nil
}

// findRepoConfig returns the path of .github/pr-checks.yaml or .github/pr-checks.yml
// under root, or "" when neither exists.
func findRepoConfig(root string) string {
	for _, f := range []string{"pr-checks.yaml", "pr-checks.yml"} {
		path := filepath.Join(root, ".github", f)
		if s, err := os.Stat(path); err == nil && !s.IsDir() {
			return path
		}
	}
	return ""
}

// writeDefaultConfigFile writes a commented config file holding the defaults.
func writeDefaultConfigFile(path string) error {
	b := []byte(`# Configuration file for prchecks
# Every key is optional. Environment variables such as PRCHECKS_CHECKS_DIR and
# command line flags take precedence over this file.

# Directory containing one check specification per file, relative to the working directory.
checks-dir: checks

# Directory where __pr-checks-N.yml workflows are written, relative to the working directory.
output-dir: ../.github/workflows

# Maximum number of jobs in a single generated workflow.
checks-per-workflow: 100

# Versions used for checks that do not set "versions".
default-versions:
  - stable-20201028
  - stable-20210319
  - stable-20210809
  - cached
  - latest
  - nightly-latest

# Runners used for checks that do not set "os".
default-os:
  - ubuntu-latest
  - macos-latest
  - windows-latest

# Pushes to these branches trigger the generated workflows.
branches:
  - main
  - v1
`)
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write config file %q: %w", path, err)
	}
	return nil
}
