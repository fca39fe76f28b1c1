package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func testJobs(t *testing.T, n int) []*Job {
	t.Helper()
	checks := make([]*Check, 0, n)
	for i := 0; i < n; i++ {
		src := fmt.Sprintf("name: Check %d\nsteps:\n  - run: echo %d\n", i, i)
		checks = append(checks, mustParseCheck(t, fmt.Sprintf("checks/check-%03d.yml", i), src))
	}
	return BuildJobs(checks, defaultJobDefaults())
}

func TestParseWorkflowNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"__pr-checks-1.yml", 1, true},
		{"__pr-checks-12.yml", 12, true},
		{"__pr-checks-0.yml", 0, false},
		{"__pr-checks-01.yml", 0, false},
		{"__pr-checks-x.yml", 0, false},
		{"__pr-checks-1.yaml", 0, false},
		{"pr-checks-1.yml", 0, false},
		{"codeql.yml", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := parseWorkflowNumber(tt.name)
			if n != tt.want || ok != tt.ok {
				t.Errorf("parseWorkflowNumber(%q) = (%d, %v), want (%d, %v)", tt.name, n, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRenderWorkflow(t *testing.T) {
	src := `name: "Go: Custom queries"
versions:
  - cached
env:
  FOO: bar
steps:
  - uses: ./../action/init
`
	jobs := BuildJobs([]*Check{mustParseCheck(t, "checks/go-custom.yml", src)}, defaultJobDefaults())
	b, err := RenderWorkflow(1, jobs, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}

	want := GeneratedHeader + `name: PR Checks 1
env:
  GITHUB_TOKEN: ${{ secrets.GITHUB_TOKEN }}
  GO111MODULE: auto
on:
  push:
    branches:
      - main
      - v1
  pull_request:
    types:
      - opened
      - synchronize
      - reopened
      - ready_for_review
  workflow_dispatch: {}
jobs:
  go-custom:
    strategy:
      matrix:
        version:
          - cached
        os:
          - ubuntu-latest
          - macos-latest
          - windows-latest
    name: "Go: Custom queries"
    runs-on: ${{ matrix.os }}
    steps:
      - name: Check out repository
        uses: actions/checkout@v2
      - name: Prepare test
        id: prepare-test
        uses: ./.github/prepare-test
        with:
          version: ${{ matrix.version }}
      - uses: ./../action/init
    env:
      FOO: bar
      INTERNAL_CODEQL_ACTION_DEBUG_LOC: true
`
	if diff := cmp.Diff(want, string(b)); diff != "" {
		t.Errorf("rendered workflow mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderWorkflowHasNoAliases(t *testing.T) {
	src := `name: aliases
env: &env
  FOO: bar
container:
  image: alpine
  env: *env
steps:
  - &step
    run: echo hi
  - *step
`
	jobs := BuildJobs([]*Check{mustParseCheck(t, "aliases.yml", src)}, defaultJobDefaults())
	b, err := RenderWorkflow(1, jobs, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		t.Fatalf("rendered workflow is not valid YAML: %v", err)
	}
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.AliasNode || n.Anchor != "" {
			t.Errorf("anchor or alias at line %d in rendered workflow:\n%s", n.Line, b)
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(&doc)
	if strings.Count(string(b), "run: echo hi") != 2 {
		t.Errorf("aliased step was not expanded twice:\n%s", b)
	}
}

func TestRenderWorkflowsBatches(t *testing.T) {
	jobs := testJobs(t, 250)
	workflows, err := RenderWorkflows("out", jobs, 100, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}
	var sizes []int
	for i, w := range workflows {
		sizes = append(sizes, len(w.Jobs))
		if w.Number != i+1 {
			t.Errorf("workflow %d has number %d", i, w.Number)
		}
		if want := filepath.Join("out", fmt.Sprintf("__pr-checks-%d.yml", i+1)); w.Path != want {
			t.Errorf("path = %q, want %q", w.Path, want)
		}
		if !bytes.Contains(w.Content, []byte(fmt.Sprintf("name: PR Checks %d\n", i+1))) {
			t.Errorf("workflow %d does not have its title", i+1)
		}
	}
	if diff := cmp.Diff([]int{100, 100, 50}, sizes); diff != "" {
		t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
	}
	if workflows[1].Jobs[0].ID != "check-100" {
		t.Errorf("second workflow starts with %q", workflows[1].Jobs[0].ID)
	}
}

func TestRenderWorkflowsNoJobs(t *testing.T) {
	workflows, err := RenderWorkflows("out", nil, 100, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}
	if len(workflows) != 0 {
		t.Fatalf("no workflow was expected but got %d", len(workflows))
	}
}

func TestRenderWorkflowsIsDeterministic(t *testing.T) {
	first, err := RenderWorkflows("out", testJobs(t, 30), 7, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}
	second, err := RenderWorkflows("out", testJobs(t, 30), 7, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if !bytes.Equal(first[i].Content, second[i].Content) {
			t.Errorf("workflow %d differs between runs", i+1)
		}
	}
}

func TestRenderWorkflowsDuplicatedIDs(t *testing.T) {
	checks := []*Check{
		mustParseCheck(t, "one/dup.yml", "name: first\nsteps: []\n"),
		mustParseCheck(t, "other.yml", "name: other\nsteps: []\n"),
		mustParseCheck(t, "two/dup.yaml", "name: second\nsteps: []\n"),
	}
	workflows, err := RenderWorkflows("out", BuildJobs(checks, defaultJobDefaults()), 100, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}
	w := workflows[0]
	if w.Overwritten != 1 {
		t.Errorf("overwritten = %d, want 1", w.Overwritten)
	}
	var names []string
	for _, j := range w.Jobs {
		names = append(names, j.Check.Name)
	}
	if diff := cmp.Diff([]string{"second", "other"}, names); diff != "" {
		t.Errorf("merged jobs mismatch (-want +got):\n%s", diff)
	}
	if bytes.Contains(w.Content, []byte("name: first")) {
		t.Errorf("overwritten job was emitted:\n%s", w.Content)
	}
}

func TestWriteWorkflowsAndRemoveStale(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".github", "workflows")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"__pr-checks-3.yml", "__pr-checks-4.yml", "codeql.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	workflows, err := RenderWorkflows(dir, testJobs(t, 3), 2, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteWorkflows(dir, workflows); err != nil {
		t.Fatal(err)
	}
	for _, w := range workflows {
		b, err := os.ReadFile(w.Path)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, w.Content) {
			t.Errorf("%s has unexpected content", w.Path)
		}
		s, err := os.Stat(w.Path)
		if err != nil {
			t.Fatal(err)
		}
		if s.Mode().Perm() != 0644 {
			t.Errorf("%s has mode %v", w.Path, s.Mode().Perm())
		}
	}

	removed, err := RemoveStaleWorkflows(dir, len(workflows))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "__pr-checks-3.yml"), filepath.Join(dir, "__pr-checks-4.yml")}
	if diff := cmp.Diff(want, removed); diff != "" {
		t.Errorf("removed files mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"__pr-checks-1.yml", "__pr-checks-2.yml", "codeql.yml"}, names); diff != "" {
		t.Errorf("output directory mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteWorkflowsCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	workflows, err := RenderWorkflows(dir, testJobs(t, 1), 100, DefaultBranches)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteWorkflows(dir, workflows); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "__pr-checks-1.yml")); err != nil {
		t.Fatal(err)
	}
}

func TestExistingWorkflowFilesMissingDirectory(t *testing.T) {
	files, err := existingWorkflowFiles(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("no file was expected: %v", files)
	}
}
