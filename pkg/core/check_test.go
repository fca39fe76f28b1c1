package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCheckID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"checks/go-custom.yml", "go-custom"},
		{"checks/multi-language.yaml", "multi-language"},
		{"/abs/dir/no-ext", "no-ext"},
		{"checks/with.dots.yml", "with.dots"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := CheckID(tt.path); got != tt.want {
				t.Errorf("CheckID(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseCheck(t *testing.T) {
	input := `name: "Go: Custom queries"
versions: ["cached"]
os: ["ubuntu-latest"]
env:
  FOO: bar
steps:
  - uses: ./../action/init
  - run: echo done
`
	c, err := ParseCheck("checks/go-custom.yml", []byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != "go-custom" {
		t.Errorf("ID = %q, want %q", c.ID, "go-custom")
	}
	if c.Name != "Go: Custom queries" {
		t.Errorf("Name = %q", c.Name)
	}
	if n := len(c.Steps.Content); n != 2 {
		t.Errorf("len(Steps) = %d, want 2", n)
	}
	if c.Versions == nil || len(c.Versions.Content) != 1 || c.Versions.Content[0].Value != "cached" {
		t.Errorf("Versions were not parsed: %#v", c.Versions)
	}
	if c.OperatingSystems == nil || len(c.OperatingSystems.Content) != 1 {
		t.Errorf("OperatingSystems were not parsed: %#v", c.OperatingSystems)
	}
	if c.Env == nil {
		t.Error("Env was not parsed")
	}
	if c.Container != nil || c.Services != nil {
		t.Error("Container and Services should be nil when absent")
	}
}

func TestParseCheckResolvesAliases(t *testing.T) {
	input := `name: aliases
shared: &shared
  run: echo shared
steps:
  - *shared
  - *shared
`
	c, err := ParseCheck("aliases.yml", []byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range c.Steps.Content {
		v, _ := mappingValue(s, "run")
		if v == nil || v.Value != "echo shared" {
			t.Errorf("step %d was not resolved: %#v", i, s)
		}
	}
}

func TestParseCheckErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     string
		line     int
		contains string
	}{
		{
			name:     "invalid YAML",
			input:    "name: foo\nsteps: [\n",
			kind:     KindSyntax,
			contains: "could not parse as YAML",
		},
		{
			name:     "empty file",
			input:    "",
			kind:     KindCheckSpec,
			line:     1,
			contains: "empty",
		},
		{
			name:     "top-level sequence",
			input:    "- name: foo\n",
			kind:     KindCheckSpec,
			line:     1,
			contains: "mapping node is expected",
		},
		{
			name:     "missing name",
			input:    "steps:\n  - run: echo\n",
			kind:     KindCheckSpec,
			line:     1,
			contains: `missing required key "name"`,
		},
		{
			name:     "missing steps",
			input:    "name: foo\n",
			kind:     KindCheckSpec,
			line:     1,
			contains: `missing required key "steps"`,
		},
		{
			name:     "steps is a mapping",
			input:    "name: foo\nsteps:\n  run: echo\n",
			kind:     KindCheckSpec,
			line:     3,
			contains: "sequence node is expected",
		},
		{
			name:     "name is a mapping",
			input:    "name:\n  a: b\nsteps: []\n",
			kind:     KindCheckSpec,
			line:     2,
			contains: `"name" must be a string`,
		},
		{
			name:     "env is a sequence",
			input:    "name: foo\nsteps: []\nenv:\n  - FOO\n",
			kind:     KindCheckSpec,
			line:     4,
			contains: "mapping node is expected",
		},
		{
			name:     "alias of its own sequence",
			input:    "name: x\nsteps: &s\n  - *s\n",
			kind:     KindCheckSpec,
			line:     3,
			contains: `alias "s" refers to a node containing itself`,
		},
		{
			name:     "alias cycle through a merge key",
			input:    "name: x\nsteps: []\nenv: &e\n  <<: *e\n",
			kind:     KindCheckSpec,
			line:     4,
			contains: `alias "e" refers to a node containing itself`,
		},
		{
			name:     "duplicated key",
			input:    "name: foo\nsteps: []\nname: bar\n",
			kind:     KindCheckSpec,
			line:     3,
			contains: `key "name" is duplicated`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCheck("checks/bad.yml", []byte(tt.input))
			if err == nil {
				t.Fatal("error was expected but got nil")
			}
			var ge *GenerationError
			if !errors.As(err, &ge) {
				t.Fatalf("error is not *GenerationError: %T %v", err, err)
			}
			if ge.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", ge.Kind, tt.kind)
			}
			if tt.line != 0 && ge.LineNumber != tt.line {
				t.Errorf("line = %d, want %d (%s)", ge.LineNumber, tt.line, ge)
			}
			if ge.FilePath != "checks/bad.yml" {
				t.Errorf("file path = %q", ge.FilePath)
			}
			if !strings.Contains(ge.Description, tt.contains) {
				t.Errorf("description %q does not contain %q", ge.Description, tt.contains)
			}
		})
	}
}

func TestParseCheckNullEnv(t *testing.T) {
	c, err := ParseCheck("null-env.yml", []byte("name: foo\nsteps: []\nenv:\n"))
	if err != nil {
		t.Fatalf("null env should be accepted: %v", err)
	}
	if !isNull(c.Env) {
		t.Errorf("env should be null: %#v", c.Env)
	}
}

func writeChecks(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadChecks(t *testing.T) {
	dir := t.TempDir()
	writeChecks(t, dir, map[string]string{
		"c.yml": "name: C\nsteps: []\n",
		"a.yml": "name: A\nsteps: []\n",
		"b.yml": "name: B\nsteps: []\n",
	})
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	writeChecks(t, filepath.Join(dir, "nested"), map[string]string{
		"ignored.yml": "not: a check\n",
	})

	checks, err := LoadChecks(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []string
	for _, c := range checks {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("check IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadChecksFailsOnInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeChecks(t, dir, map[string]string{
		"good.yml": "name: good\nsteps: []\n",
		"bad.yml":  "name: bad\n",
	})
	_, err := LoadChecks(dir)
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("*GenerationError was expected but got %v", err)
	}
	if filepath.Base(ge.FilePath) != "bad.yml" {
		t.Errorf("error points at %q", ge.FilePath)
	}
}

func TestLoadChecksMissingDirectory(t *testing.T) {
	_, err := LoadChecks(filepath.Join(t.TempDir(), "missing"))
	if err == nil || !strings.Contains(err.Error(), "could not read checks directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadChecksEmptyDirectory(t *testing.T) {
	checks, err := LoadChecks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(checks) != 0 {
		t.Fatalf("no check was expected but got %d", len(checks))
	}
}

func TestLoadChecksReportsFirstInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeChecks(t, dir, map[string]string{
		"a-broken.yml": "name: a\n",
		"b-ok.yml":     "name: b\nsteps: []\n",
		"c-broken.yml": "steps: []\n",
		"d-broken.yml": "name: [\n",
	})
	for i := 0; i < 20; i++ {
		_, err := LoadChecks(dir)
		var ge *GenerationError
		if !errors.As(err, &ge) {
			t.Fatalf("*GenerationError was expected but got %v", err)
		}
		if filepath.Base(ge.FilePath) != "a-broken.yml" {
			t.Fatalf("run %d reported %q, want a-broken.yml", i, ge.FilePath)
		}
	}
}
