package core

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Check is a parsed check specification. Blocks which are copied into the generated
// job verbatim are kept as YAML nodes with aliases already inlined.
type Check struct {
	// ID is the job key in the generated workflow, derived from the file name
	ID string
	// FilePath is the path the check was read from
	FilePath string
	// Source is the raw content of the file
	Source []byte
	// Name is the value of "name"
	Name string

	NameNode         *yaml.Node
	Steps            *yaml.Node
	Versions         *yaml.Node
	OperatingSystems *yaml.Node
	Env              *yaml.Node
	Container        *yaml.Node
	Services         *yaml.Node
	// BaseNode is the root mapping of the document
	BaseNode *yaml.Node
}

// CheckID derives the job key of a check from its file name by dropping the extension.
func CheckID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ParseCheck parses source as a check specification. path is used for the ID and
// for diagnostics. Errors returned are *GenerationError.
func ParseCheck(path string, source []byte) (*Check, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, yamlSyntaxError(path, source, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || isNull(doc.Content[0]) {
		return nil, &GenerationError{
			Description: "check specification is empty",
			FilePath:    path,
			LineNumber:  1,
			ColNumber:   1,
			Kind:        KindCheckSpec,
			Source:      source,
		}
	}

	if alias := aliasCycle(doc.Content[0]); alias != nil {
		return nil, errorAtNode(path, source, alias, KindCheckSpec,
			"alias %q refers to a node containing itself", alias.Value)
	}
	root := inlineNode(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, errorAtNode(path, source, root, KindCheckSpec,
			"check specification is %s node but mapping node is expected", nodeKindName(root.Kind))
	}

	c := &Check{
		ID:       CheckID(path),
		FilePath: path,
		Source:   source,
		BaseNode: root,
	}

	seen := make(map[string]*yaml.Node, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if prev, ok := seen[k.Value]; ok {
			return nil, errorAtNode(path, source, k, KindCheckSpec,
				"key %q is duplicated in check specification. previous key is at line:%d,col:%d", k.Value, prev.Line, prev.Column)
		}
		seen[k.Value] = k

		switch k.Value {
		case CheckName:
			c.NameNode = v
		case CheckSteps:
			c.Steps = v
		case CheckVersions:
			c.Versions = v
		case CheckOS:
			c.OperatingSystems = v
		case CheckEnv:
			c.Env = v
		case CheckContainer:
			c.Container = v
		case CheckServices:
			c.Services = v
		}
	}

	if c.NameNode == nil {
		return nil, errorAtNode(path, source, root, KindCheckSpec, "check specification is missing required key %q", CheckName)
	}
	if c.NameNode.Kind != yaml.ScalarNode || isNull(c.NameNode) {
		return nil, errorAtNode(path, source, c.NameNode, KindCheckSpec,
			"%q must be a string but got %s node", CheckName, nodeKindName(c.NameNode.Kind))
	}
	c.Name = c.NameNode.Value

	if c.Steps == nil {
		return nil, errorAtNode(path, source, root, KindCheckSpec, "check specification is missing required key %q", CheckSteps)
	}
	if c.Steps.Kind != yaml.SequenceNode {
		return nil, errorAtNode(path, source, c.Steps, KindCheckSpec,
			"%q is %s node but sequence node is expected", CheckSteps, nodeKindName(c.Steps.Kind))
	}

	if !isNull(c.Env) && c.Env.Kind != yaml.MappingNode {
		return nil, errorAtNode(path, source, c.Env, KindCheckSpec,
			"%q is %s node but mapping node is expected", CheckEnv, nodeKindName(c.Env.Kind))
	}

	return c, nil
}

// ReadCheckFile reads and parses the check specification at path.
func ReadCheckFile(path string) (*Check, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read check specification %q: %w", path, err)
	}
	return ParseCheck(path, b)
}

// LoadChecks reads every regular file in dir as a check specification. The result
// follows the file name order of the directory listing. Files are parsed in parallel.
// When some files fail, the error of the first one in listing order is returned.
func LoadChecks(dir string) ([]*Check, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read checks directory %q: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	checks := make([]*Check, len(paths))
	errs := make([]error, len(paths))
	var eg errgroup.Group
	eg.SetLimit(runtime.NumCPU())
	for i, p := range paths {
		eg.Go(func() error {
			c, err := ReadCheckFile(p)
			if err != nil {
				errs[i] = err
				return err
			}
			checks[i] = c
			return nil
		})
	}
	if eg.Wait() != nil {
		// report the failure of the first file in listing order
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}
	return checks, nil
}
