package core

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

// コンソール出力時の色付け
var (
	BoldStyle   = color.New(color.Bold)
	GreenStyle  = color.New(color.FgGreen)
	YellowStyle = color.New(color.FgYellow)
	GrayStyle   = color.New(color.FgHiBlack)
)

// GenerationError is a diagnostic tied to a position in a check specification or a generated file.
type GenerationError struct {
	// Description is the human readable message
	Description string
	// FilePath is the file the diagnostic points at
	FilePath string
	// LineNumber is 1-based, 0 when unknown
	LineNumber int
	// ColNumber is 1-based, 0 when unknown
	ColNumber int
	// Kind is one of the Kind* constants
	Kind string
	// Source is the content of FilePath, used to print a snippet. May be nil.
	Source []byte
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s [%s]", e.FilePath, e.LineNumber, e.ColNumber, e.Description, e.Kind)
}

func (e *GenerationError) String() string {
	return e.Error()
}

func errorAtNode(path string, source []byte, node *yaml.Node, kind string, format string, args ...interface{}) *GenerationError {
	err := &GenerationError{
		Description: fmt.Sprintf(format, args...),
		FilePath:    path,
		Kind:        kind,
		Source:      source,
	}
	if node != nil {
		err.LineNumber = node.Line
		err.ColNumber = node.Column
	}
	return err
}

var yamlLinePattern = regexp.MustCompile(`\bline (\d+)\b`)

// yamlSyntaxError converts an error from yaml.v3 into a positioned diagnostic.
// yaml.TypeError may hold several messages; the first one is kept.
func yamlSyntaxError(path string, source []byte, err error) *GenerationError {
	msg := err.Error()
	var te *yaml.TypeError
	if errors.As(err, &te) && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	line := 0
	if m := yamlLinePattern.FindStringSubmatch(msg); len(m) > 1 {
		line, _ = strconv.Atoi(m[1])
	}
	msg = strings.TrimPrefix(msg, "yaml: ")
	return &GenerationError{
		Description: fmt.Sprintf("could not parse as YAML: %s", msg),
		FilePath:    path,
		LineNumber:  line,
		Kind:        KindSyntax,
		Source:      source,
	}
}

// ExtractTemplateFields extracts the fields available to --format templates.
func (e *GenerationError) ExtractTemplateFields() *TemplateFields {
	snippet := ""
	endColumn := e.ColNumber

	if len(e.Source) > 0 && e.LineNumber > 0 {
		if line, ok := e.extractLineContent(); ok {
			snippet = line
			if len(line) >= e.ColNumber-1 {
				if indicator := e.determineIndicator(line); indicator != "" {
					snippet += "\n" + indicator
					endColumn = len(indicator)
				}
			}
		}
	}
	return &TemplateFields{
		Message:   e.Description,
		Filepath:  e.FilePath,
		Line:      e.LineNumber,
		Column:    e.ColNumber,
		Kind:      e.Kind,
		Snippet:   snippet,
		EndColumn: endColumn,
	}
}

// DisplayError prints the diagnostic with a source snippet and an indicator
// under the offending token. Nothing but the header line is printed when the
// source is unknown.
func (e *GenerationError) DisplayError(output io.Writer) {
	printColored(output, YellowStyle, e.FilePath)
	printColored(output, GrayStyle, ":")
	fmt.Fprint(output, e.LineNumber)
	printColored(output, GrayStyle, ":")
	fmt.Fprint(output, e.ColNumber)
	printColored(output, GrayStyle, ": ")
	printColored(output, BoldStyle, e.Description)
	printColored(output, GrayStyle, fmt.Sprintf(" [%s]\n", e.Kind))

	if len(e.Source) == 0 || e.LineNumber == 0 {
		return
	}

	line, ok := e.extractLineContent()
	if !ok || len(line) < e.ColNumber-1 {
		return
	}

	prefix := fmt.Sprintf("%d | ", e.LineNumber)
	printColored(output, GrayStyle, prefix)
	fmt.Fprintln(output, line)
	if e.ColNumber <= 0 {
		return
	}
	fmt.Fprint(output, strings.Repeat(" ", len(prefix)))
	printColored(output, GreenStyle, e.determineIndicator(line))
	fmt.Fprintln(output)
}

func printColored(output io.Writer, colorizer *color.Color, content string) {
	colorizer.Fprint(output, content)
}

func (e *GenerationError) extractLineContent() (string, bool) {
	s := bufio.NewScanner(bytes.NewReader(e.Source))
	n := 0
	for s.Scan() {
		n++
		if n == e.LineNumber {
			return s.Text(), true
		}
	}
	return "", false
}

func (e *GenerationError) determineIndicator(line string) string {
	if e.ColNumber <= 0 {
		return ""
	}
	start := e.ColNumber - 1

	width := 0
	r := strings.NewReader(line[start:])
	for {
		c, size, err := r.ReadRune()
		if err != nil || size == 0 || c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			break
		}
		width += runewidth.RuneWidth(c)
	}
	if width == 0 {
		width = 1
	}

	spaces := runewidth.StringWidth(line[:start])
	return strings.Repeat(" ", spaces) + "^" + strings.Repeat("~", width-1)
}

// ByErrorPosition sorts diagnostics by file, then line, then column.
type ByErrorPosition []*GenerationError

func (a ByErrorPosition) Len() int {
	return len(a)
}

func (a ByErrorPosition) Less(i, j int) bool {
	if c := strings.Compare(a[i].FilePath, a[j].FilePath); c != 0 {
		return c < 0
	}
	if a[i].LineNumber == a[j].LineNumber {
		return a[i].ColNumber < a[j].ColNumber
	}
	return a[i].LineNumber < a[j].LineNumber
}

func (a ByErrorPosition) Swap(i, j int) {
	a[i], a[j] = a[j], a[i]
}

// TemplateFields holds the fields of one diagnostic passed to a --format template.
type TemplateFields struct {
	// Message is the body of the diagnostic
	Message string `json:"message"`
	// Filepath is omitted from JSON when empty
	Filepath string `json:"filepath,omitempty"`
	// Line is the line number of the position
	Line int `json:"line"`
	// Column is the column number of the position
	Column int `json:"column"`
	// Kind is the kind of the diagnostic
	Kind string `json:"kind"`
	// Snippet is the source line followed by the indicator line
	Snippet string `json:"snippet,omitempty"`
	// EndColumn is where the indicator ends. Equal to Column when there is no indicator.
	EndColumn int `json:"end_column"`
}

// KindTemplateField describes a diagnostic kind for the allKinds template function.
type KindTemplateField struct {
	Name        string
	Description string
}

var diagnosticKinds = []*KindTemplateField{
	{KindCheckSpec, "Check specification is missing a required key or has a wrongly shaped value"},
	{KindCredential, "Container or service credentials are hardcoded in a check specification"},
	{KindOutOfDate, "Generated workflow on disk differs from the check specifications"},
	{KindSyntax, "Check specification is not valid YAML"},
}

func unescapeBackslash(input string) string {
	r := strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t", `\\`, `\`)
	return r.Replace(input)
}

func toPascalCase(input string) string {
	words := strings.FieldsFunc(input, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	})
	for i, w := range words {
		if c := w[0]; 'a' <= c && c <= 'z' {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, "")
}

// ErrorFormatter renders diagnostics through a user supplied Go template (--format).
type ErrorFormatter struct {
	templateInstance *template.Template
}

// NewErrorFormatter parses format. It must contain at least one {{ }} placeholder.
// Escapes such as \n are unescaped before parsing.
func NewErrorFormatter(format string) (*ErrorFormatter, error) {
	if !strings.Contains(format, "{{") {
		return nil, fmt.Errorf("format should contain at least one {{ }} placeholder: %s", format)
	}

	funcs := template.FuncMap{
		"json": func(data interface{}) (string, error) {
			var b strings.Builder
			enc := json.NewEncoder(&b)
			if err := enc.Encode(data); err != nil {
				return "", fmt.Errorf("could not encode data to JSON: %w", err)
			}
			return b.String(), nil
		},
		"sarif": toSARIF,
		"replace": func(s string, oldnew ...string) string {
			return strings.NewReplacer(oldnew...).Replace(s)
		},
		"toPascalCase": toPascalCase,
		"allKinds": func() []*KindTemplateField {
			ret := make([]*KindTemplateField, len(diagnosticKinds))
			copy(ret, diagnosticKinds)
			sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
			return ret
		},
	}
	t, err := template.New("error formatter").Funcs(funcs).Parse(unescapeBackslash(format))
	if err != nil {
		return nil, fmt.Errorf("could not parse format %q: %w", format, err)
	}
	return &ErrorFormatter{t}, nil
}

// Print executes the template with fields as its data.
func (f *ErrorFormatter) Print(w io.Writer, fields []*TemplateFields) error {
	if err := f.templateInstance.Execute(w, fields); err != nil {
		return fmt.Errorf("could not format diagnostics: %w", err)
	}
	return nil
}

// PrintErrors formats errs and writes them to w.
func (f *ErrorFormatter) PrintErrors(w io.Writer, errs []*GenerationError) error {
	fields := make([]*TemplateFields, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.ExtractTemplateFields())
	}
	return f.Print(w, fields)
}
