package core

// Check specification keys
const (
	CheckName       = "name"
	CheckSteps      = "steps"
	CheckVersions   = "versions"
	CheckOS         = "os"
	CheckEnv        = "env"
	CheckContainer  = "container"
	CheckServices   = "services"
	CheckCredential = "credentials"
)

// Job definition keys and fixed values
const (
	JobStrategy = "strategy"
	JobMatrix   = "matrix"
	JobVersion  = "version"
	JobOS       = "os"
	JobRunsOn   = "runs-on"

	MatrixVersionExpr = "${{ matrix.version }}"
	MatrixOSExpr      = "${{ matrix.os }}"

	// DebugLocationEnv is forced to true in the env of every generated job
	DebugLocationEnv = "INTERNAL_CODEQL_ACTION_DEBUG_LOC"
)

// Workflow document keys
const (
	WorkflowName             = "name"
	WorkflowEnv              = "env"
	WorkflowOn               = "on"
	WorkflowJobs             = "jobs"
	EventPush                = "push"
	EventPullRequest         = "pull_request"
	EventWorkflowDispatch    = "workflow_dispatch"
	EventFilterBranches      = "branches"
	EventFilterTypes         = "types"
	WorkflowTitleFormat      = "PR Checks %d"
	WorkflowFileNameFormat   = "__pr-checks-%d.yml"
	WorkflowFileNamePrefix   = "__pr-checks-"
	WorkflowFileNameSuffix   = ".yml"
	DefaultChecksPerWorkflow = 100
)

// YAML tags used when building nodes
const (
	TagStr   = "!!str"
	TagBool  = "!!bool"
	TagMap   = "!!map"
	TagSeq   = "!!seq"
	TagNull  = "!!null"
	TagMerge = "!!merge"
)

// Diagnostic kinds
const (
	KindSyntax     = "syntax"
	KindCheckSpec  = "check-spec"
	KindCredential = "credentials"
	KindOutOfDate  = "out-of-date"
)

// Default locations relative to the working directory
const (
	DefaultChecksDirectory = "checks"
	DefaultOutputDirectory = "../.github/workflows"
	FlagDryRun             = "dry-run"
)

// GeneratedHeader is written verbatim at the top of every generated workflow
const GeneratedHeader = `# Warning: This file is generated automatically, and should not be modified.
# Instead, please modify the template in the pr-checks directory and run:
#     go run github.com/ultra-supara/prchecks/cmd/prchecks
# to regenerate this file.

`

// DefaultTestVersions are the CodeQL versions every check runs against unless it sets "versions".
var DefaultTestVersions = []string{
	// The oldest supported CodeQL version: 2.3.1.
	"stable-20201028",
	// The last CodeQL release in the 2.4 series: 2.4.6.
	"stable-20210319",
	// The last CodeQL release in the 2.5 series: 2.5.9.
	"stable-20210809",
	// The version of CodeQL currently in the toolcache.
	"cached",
	// The latest release of CodeQL.
	"latest",
	// A nightly build, built in the last 24 hours.
	"nightly-latest",
}

// DefaultOperatingSystems are the runners every check runs on unless it sets "os".
var DefaultOperatingSystems = []string{"ubuntu-latest", "macos-latest", "windows-latest"}

// DefaultBranches are the branches whose pushes trigger the generated workflows.
var DefaultBranches = []string{"main", "v1"}

// PullRequestTypes are the pull request activity types that trigger the generated workflows.
var PullRequestTypes = []string{"opened", "synchronize", "reopened", "ready_for_review"}
