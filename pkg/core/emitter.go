package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workflow is one generated workflow file.
type Workflow struct {
	// Number is the 1-based index of the batch
	Number int
	// Path is where the workflow is written
	Path string
	// Jobs are the jobs of the batch in emission order. When two jobs share an ID
	// only the last one is emitted, at the position of the first.
	Jobs []*Job
	// Overwritten is the number of jobs of the batch replaced by a later job with the same ID
	Overwritten int
	// Content is the rendered file, header included
	Content []byte
}

// WorkflowFileName returns the file name of the n-th generated workflow.
func WorkflowFileName(n int) string {
	return fmt.Sprintf(WorkflowFileNameFormat, n)
}

// parseWorkflowNumber returns N for a file named __pr-checks-N.yml.
func parseWorkflowNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, WorkflowFileNamePrefix) || !strings.HasSuffix(name, WorkflowFileNameSuffix) {
		return 0, false
	}
	s := strings.TrimSuffix(strings.TrimPrefix(name, WorkflowFileNamePrefix), WorkflowFileNameSuffix)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || WorkflowFileName(n) != name {
		return 0, false
	}
	return n, true
}

// mergeJobs merges jobs into one ordered list keyed by ID. A later job replaces an
// earlier one with the same ID without moving it.
func mergeJobs(jobs []*Job) []*Job {
	merged := make([]*Job, 0, len(jobs))
	index := make(map[string]int, len(jobs))
	for _, j := range jobs {
		if i, ok := index[j.ID]; ok {
			merged[i] = j
			continue
		}
		index[j.ID] = len(merged)
		merged = append(merged, j)
	}
	return merged
}

func workflowTriggers(branches []string) *yaml.Node {
	return newMapping(
		newString(EventPush), newMapping(
			newString(EventFilterBranches), newStringSequence(branches),
		),
		newString(EventPullRequest), newMapping(
			newString(EventFilterTypes), newStringSequence(PullRequestTypes),
		),
		newString(EventWorkflowDispatch), newEmptyFlowMapping(),
	)
}

func workflowEnv() *yaml.Node {
	return newMapping(
		newString("GITHUB_TOKEN"), newString("${{ secrets.GITHUB_TOKEN }}"),
		newString("GO111MODULE"), newString("auto"),
	)
}

// buildWorkflowNode builds the document of the n-th workflow. Each job node is
// copied so the tree has no shared node and the encoder never needs an anchor.
func buildWorkflowNode(n int, jobs []*Job, branches []string) *yaml.Node {
	jobsNode := newMapping()
	for _, j := range jobs {
		jobsNode.Content = append(jobsNode.Content, newString(j.ID), inlineNode(j.Node))
	}
	return newMapping(
		newString(WorkflowName), newString(fmt.Sprintf(WorkflowTitleFormat, n)),
		newString(WorkflowEnv), workflowEnv(),
		newString(WorkflowOn), workflowTriggers(branches),
		newString(WorkflowJobs), jobsNode,
	)
}

// RenderWorkflow renders the n-th workflow holding jobs, header included.
func RenderWorkflow(n int, jobs []*Job, branches []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(GeneratedHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(buildWorkflowNode(n, jobs, branches)); err != nil {
		return nil, fmt.Errorf("could not encode workflow %d: %w", n, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("could not encode workflow %d: %w", n, err)
	}
	return buf.Bytes(), nil
}

// RenderWorkflows splits jobs into batches of size and renders one workflow per
// batch. Paths are rooted at dir.
func RenderWorkflows(dir string, jobs []*Job, size int, branches []string) ([]*Workflow, error) {
	batches := Split(jobs, size)
	workflows := make([]*Workflow, 0, len(batches))
	for i, batch := range batches {
		n := i + 1
		merged := mergeJobs(batch)
		content, err := RenderWorkflow(n, merged, branches)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, &Workflow{
			Number:      n,
			Path:        filepath.Join(dir, WorkflowFileName(n)),
			Jobs:        merged,
			Overwritten: len(batch) - len(merged),
			Content:     content,
		})
	}
	return workflows, nil
}

// writeFileAtomic replaces path with data. Readers see either the old or the
// new content, never a partially written file.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file for %q: %w", path, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not write %q: %w", path, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not set permission of %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not replace %q: %w", path, err)
	}
	return nil
}

// WriteWorkflows writes every workflow to its path, creating dir if needed.
func WriteWorkflows(dir string, workflows []*Workflow) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create output directory %q: %w", dir, err)
	}
	for _, w := range workflows {
		if err := writeFileAtomic(w.Path, w.Content); err != nil {
			return err
		}
	}
	return nil
}

// existingWorkflowFiles returns the generated workflow files in dir by number.
// A missing dir has no files.
func existingWorkflowFiles(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]string{}, nil
		}
		return nil, fmt.Errorf("could not read output directory %q: %w", dir, err)
	}
	files := make(map[int]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := parseWorkflowNumber(e.Name()); ok {
			files[n] = filepath.Join(dir, e.Name())
		}
	}
	return files, nil
}

// staleWorkflowFiles returns generated workflow files in dir whose number is greater
// than count, sorted by number.
func staleWorkflowFiles(dir string, count int) ([]string, error) {
	files, err := existingWorkflowFiles(dir)
	if err != nil {
		return nil, err
	}
	nums := make([]int, 0, len(files))
	for n := range files {
		if n > count {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	stale := make([]string, 0, len(nums))
	for _, n := range nums {
		stale = append(stale, files[n])
	}
	return stale, nil
}

// RemoveStaleWorkflows deletes generated workflows left over from a run which
// produced more than count batches. It returns the removed paths.
func RemoveStaleWorkflows(dir string, count int) ([]string, error) {
	stale, err := staleWorkflowFiles(dir, count)
	if err != nil {
		return nil, err
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil {
			return nil, fmt.Errorf("could not remove stale workflow %q: %w", p, err)
		}
	}
	return stale, nil
}
