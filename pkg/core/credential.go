package core

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"gopkg.in/yaml.v3"
)

//go:embed credential.rego
var credentialRego string

const credentialQuery = "data.prchecks.check_credentials"

// CredentialPolicy reports container and service credentials which are written
// literally in check specifications.
type CredentialPolicy struct {
	query rego.PreparedEvalQuery
}

// NewCredentialPolicy compiles the embedded credential policy.
func NewCredentialPolicy(ctx context.Context) (*CredentialPolicy, error) {
	r := rego.New(
		rego.Query(credentialQuery),
		rego.Module("credential.rego", credentialRego),
	)
	q, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare credential policy: %w", err)
	}
	return &CredentialPolicy{query: q}, nil
}

// CheckJob evaluates the policy against the container and every service of the job's check.
func (p *CredentialPolicy) CheckJob(ctx context.Context, job *Job) ([]*GenerationError, error) {
	c := job.Check
	var found []*GenerationError
	if c.Container != nil {
		errs, err := p.checkContainer(ctx, c, "\"container\" section", c.Container)
		if err != nil {
			return nil, err
		}
		found = append(found, errs...)
	}
	if c.Services != nil && c.Services.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(c.Services.Content); i += 2 {
			name, svc := c.Services.Content[i], c.Services.Content[i+1]
			errs, err := p.checkContainer(ctx, c, fmt.Sprintf("\"services\" section for service %q", name.Value), svc)
			if err != nil {
				return nil, err
			}
			found = append(found, errs...)
		}
	}
	return found, nil
}

func (p *CredentialPolicy) checkContainer(ctx context.Context, c *Check, where string, container *yaml.Node) ([]*GenerationError, error) {
	creds, _ := mappingValue(container, CheckCredential)
	if creds == nil || creds.Kind != yaml.MappingNode {
		return nil, nil
	}

	values := map[string]interface{}{}
	pos := creds
	for i := 0; i+1 < len(creds.Content); i += 2 {
		k, v := creds.Content[i], creds.Content[i+1]
		if v.Kind != yaml.ScalarNode || isNull(v) {
			continue
		}
		values[k.Value] = v.Value
		if k.Value == "password" {
			pos = v
		}
	}
	input := map[string]interface{}{"credentials": values}

	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate credential policy for %s: %w", c.FilePath, err)
	}

	var errs []*GenerationError
	for _, result := range results {
		for _, expr := range result.Expressions {
			violations, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, violation := range violations {
				v, ok := violation.(map[string]interface{})
				if !ok {
					continue
				}
				msg, _ := v["message"].(string)
				errs = append(errs, errorAtNode(c.FilePath, c.Source, pos, KindCredential, "%s: %s", where, msg))
			}
		}
	}
	return errs, nil
}
