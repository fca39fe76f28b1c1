package core

import (
	"gopkg.in/yaml.v3"
)

// Job is the job generated from one check specification.
type Job struct {
	// ID is the key of the job in the "jobs" section
	ID string
	// Check is the specification the job was built from
	Check *Check
	// Node is the mapping node emitted under the job key
	Node *yaml.Node
}

// JobDefaults holds the values used when a check does not set them itself.
type JobDefaults struct {
	Versions         []string
	OperatingSystems []string
}

// JobDefaultsFromConfig returns the job defaults of cfg.
func JobDefaultsFromConfig(cfg *Config) *JobDefaults {
	return &JobDefaults{
		Versions:         cfg.DefaultVersions,
		OperatingSystems: cfg.DefaultOperatingSystems,
	}
}

// setupSteps returns the steps every job runs before the steps of its check.
func setupSteps() []*yaml.Node {
	checkout := newMapping(
		newString("name"), newString("Check out repository"),
		newString("uses"), newString("actions/checkout@v2"),
	)
	prepare := newMapping(
		newString("name"), newString("Prepare test"),
		newString("id"), newString("prepare-test"),
		newString("uses"), newString("./.github/prepare-test"),
		newString("with"), newMapping(
			newString(JobVersion), newString(MatrixVersionExpr),
		),
	)
	return []*yaml.Node{checkout, prepare}
}

// BuildJob expands a check into its job. The check's blocks are copied so the
// job never shares nodes with the check or with other jobs.
//
// The resulting mapping is
//
//	strategy: {matrix: {version: [...], os: [...]}}
//	name: ...
//	runs-on: ${{ matrix.os }}
//	steps: [checkout, prepare-test, ...check steps]
//	env/container/services as given by the check
//
// where env always exists and always sets INTERNAL_CODEQL_ACTION_DEBUG_LOC to true.
func BuildJob(c *Check, defaults *JobDefaults) *Job {
	versions := newStringSequence(defaults.Versions)
	if c.Versions != nil {
		versions = inlineNode(c.Versions)
	}
	operatingSystems := newStringSequence(defaults.OperatingSystems)
	if c.OperatingSystems != nil {
		operatingSystems = inlineNode(c.OperatingSystems)
	}

	steps := &yaml.Node{Kind: yaml.SequenceNode, Tag: TagSeq}
	steps.Content = append(steps.Content, setupSteps()...)
	for _, s := range c.Steps.Content {
		steps.Content = append(steps.Content, inlineNode(s))
	}

	job := newMapping(
		newString(JobStrategy), newMapping(
			newString(JobMatrix), newMapping(
				newString(JobVersion), versions,
				newString(JobOS), operatingSystems,
			),
		),
		newString(CheckName), inlineNode(c.NameNode),
		newString(JobRunsOn), newString(MatrixOSExpr),
		newString(CheckSteps), steps,
	)

	for _, b := range []struct {
		key  string
		node *yaml.Node
	}{
		{CheckEnv, c.Env},
		{CheckContainer, c.Container},
		{CheckServices, c.Services},
	} {
		if b.node != nil {
			job.Content = append(job.Content, newString(b.key), inlineNode(b.node))
		}
	}

	env, _ := mappingValue(job, CheckEnv)
	if isNull(env) {
		env = newMapping()
		setMappingValue(job, CheckEnv, env)
	}
	setMappingValue(env, DebugLocationEnv, newBool(true))

	return &Job{ID: c.ID, Check: c, Node: job}
}

// BuildJobs builds one job per check, keeping the order of checks.
func BuildJobs(checks []*Check, defaults *JobDefaults) []*Job {
	jobs := make([]*Job, 0, len(checks))
	for _, c := range checks {
		jobs = append(jobs, BuildJob(c, defaults))
	}
	return jobs
}
