package core

import (
	"github.com/haya14busa/go-sarif/sarif"
)

func sarifLevel(kind string) *sarif.Level {
	if kind == KindCredential {
		return sarif.Warning.Ptr()
	}
	return sarif.Error.Ptr()
}

func toResult(fields *TemplateFields) sarif.Result {
	r := sarif.Result{
		RuleID: sarif.String(fields.Kind),
		Level:  sarifLevel(fields.Kind),
		Message: sarif.Message{
			Text: sarif.String(fields.Message),
		},
	}
	loc := sarif.Location{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{
				URI: sarif.String(fields.Filepath),
			},
		},
	}
	if fields.Line > 0 {
		region := &sarif.Region{StartLine: sarif.Int64(int64(fields.Line))}
		if fields.Column > 0 {
			region.StartColumn = sarif.Int64(int64(fields.Column))
		}
		if fields.Snippet != "" {
			region.Snippet = &sarif.ArtifactContent{Text: sarif.String(fields.Snippet)}
		}
		loc.PhysicalLocation.Region = region
	}
	r.Locations = []sarif.Location{loc}
	return r
}

// toSARIF is exposed to --format templates as {{sarif .}}.
func toSARIF(fields []*TemplateFields) (string, error) {
	s := &sarif.Sarif{
		Version: sarif.The210,
		Schema:  sarif.String("https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.4.json"),
		Runs: []sarif.Run{
			{
				Tool: sarif.Tool{
					Driver: sarif.ToolComponent{
						Name: "prchecks",
					},
				},
				Results: []sarif.Result{},
			},
		},
	}
	for _, f := range fields {
		s.Runs[0].Results = append(s.Runs[0].Results, toResult(f))
	}
	b, err := s.Marshal()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
