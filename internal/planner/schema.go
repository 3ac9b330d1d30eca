package planner

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/solvik/meetwise/pkg/schema"
)

// planSchemaJSON validates the shape of planner output before it is
// decoded. It stays permissive about fallback entries (object, array, or
// the older conditional form) and accepts plain-string steps; semantic
// sanitization happens after decoding.
const planSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://meetwise.dev/schemas/plan.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "anyOf": [
          { "type": "string" },
          { "$ref": "#/$defs/step" }
        ]
      }
    },
    "required_data": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "additionalProperties": true,
  "$defs": {
    "step": {
      "type": "object",
      "properties": {
        "action": { "type": "string" },
        "tool": { "type": "string" },
        "prerequisites": {
          "type": "array",
          "items": { "type": "string" }
        },
        "when": { "type": "string" },
        "fallback": {
          "anyOf": [
            { "type": "object" },
            { "type": "array", "items": { "type": "object" } }
          ]
        }
      },
      "additionalProperties": true
    }
  }
}`

// planValidator validates raw plan JSON against the plan schema.
// Safe for concurrent use.
type planValidator struct {
	compiled *jsonschema.Schema
}

func newPlanValidator() (*planValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal plan schema: %w", err)
	}
	if err := c.AddResource("https://meetwise.dev/schemas/plan.json", doc); err != nil {
		return nil, fmt.Errorf("add plan schema resource: %w", err)
	}
	compiled, err := c.Compile("https://meetwise.dev/schemas/plan.json")
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	return &planValidator{compiled: compiled}, nil
}

func (v *planValidator) validate(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "plan is not valid JSON").WithCause(err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return toWorkflowError(err)
	}
	return nil
}

func toWorkflowError(err error) *schema.WorkflowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("plan validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
