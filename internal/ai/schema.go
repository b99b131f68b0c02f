package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/steveyegge/triage/internal/types"
	"google.golang.org/genai"
)

// ErrInvalidPlan marks model output that does not conform to the plan schema.
// It is a transient failure: the planner retries it.
var ErrInvalidPlan = errors.New("invalid triage plan")

type jsonKind string

const (
	kindString  jsonKind = "string"
	kindNumber  jsonKind = "number"
	kindBoolean jsonKind = "boolean"
	kindArray   jsonKind = "array"
	kindObject  jsonKind = "object"
	kindNull    jsonKind = "null"
)

// field declares one property of the plan schema. The same table drives the
// JSON schema sent to Anthropic, the Gemini response schema and ParsePlan.
type field struct {
	name        string
	kind        jsonKind
	items       jsonKind // element kind for arrays
	enum        []string
	required    bool
	description string
	fields      []field // properties for objects
	minimum     *float64
	maximum     *float64
}

// MaxEstimate bounds the estimate a plan may carry. Anything larger is
// treated as malformed output rather than rounded into the tracker.
const MaxEstimate = 100

func bound(v float64) *float64 { return &v }

var planFields = []field{
	{
		name:        "rewrite",
		kind:        kindObject,
		description: "Replacement content for the issue when the original is unclear.",
		fields: []field{
			{name: "title", kind: kindString},
			{name: "description", kind: kindString},
		},
	},
	{name: "priority", kind: kindString, enum: priorityNames(), description: "Issue priority."},
	{name: "teamId", kind: kindString, description: "ID of the team from the team knowledge base."},
	{name: "labelIds", kind: kindArray, items: kindString, description: "Label IDs from the label knowledge base."},
	{name: "estimate", kind: kindNumber, minimum: bound(0), maximum: bound(MaxEstimate), description: "Fibonacci estimate: 0, 1, 2, 3, 5, 8 or 13."},
	{name: "assigneeId", kind: kindString, description: "ID of the user to assign."},
	{name: "subtasks", kind: kindArray, items: kindString, description: "Titles of subtasks to create."},
	{name: "needsClarification", kind: kindBoolean, required: true, description: "True when more information is needed before triage."},
	{name: "clarificationComment", kind: kindString, description: "Question for the reporter; required when needsClarification is true."},
}

func priorityNames() []string {
	names := make([]string, 0, len(types.AllPriorities))
	for _, p := range types.AllPriorities {
		names = append(names, string(p))
	}
	return names
}

// PlanSchemaProperties returns the JSON schema properties of a triage plan
func PlanSchemaProperties() map[string]any {
	return jsonSchemaProperties(planFields)
}

// PlanSchemaRequired returns the required top-level properties
func PlanSchemaRequired() []string {
	return requiredNames(planFields)
}

func jsonSchemaProperties(fields []field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		prop := map[string]any{"type": string(f.kind)}
		if f.description != "" {
			prop["description"] = f.description
		}
		if len(f.enum) > 0 {
			prop["enum"] = f.enum
		}
		if f.minimum != nil {
			prop["minimum"] = *f.minimum
		}
		if f.maximum != nil {
			prop["maximum"] = *f.maximum
		}
		if f.kind == kindArray {
			prop["items"] = map[string]any{"type": string(f.items)}
		}
		if f.kind == kindObject {
			prop["properties"] = jsonSchemaProperties(f.fields)
			if req := requiredNames(f.fields); len(req) > 0 {
				prop["required"] = req
			}
		}
		props[f.name] = prop
	}
	return props
}

func requiredNames(fields []field) []string {
	var req []string
	for _, f := range fields {
		if f.required {
			req = append(req, f.name)
		}
	}
	return req
}

// GeminiPlanSchema returns the plan schema in genai form
func GeminiPlanSchema() *genai.Schema {
	return geminiObject(planFields)
}

func geminiObject(fields []field) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(fields)),
		Required:   requiredNames(fields),
	}
	for _, f := range fields {
		var prop *genai.Schema
		switch f.kind {
		case kindObject:
			prop = geminiObject(f.fields)
		case kindArray:
			prop = &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: geminiType(f.items)}}
		default:
			prop = &genai.Schema{Type: geminiType(f.kind), Enum: f.enum, Minimum: f.minimum, Maximum: f.maximum}
		}
		prop.Description = f.description
		s.Properties[f.name] = prop
	}
	return s
}

func geminiType(k jsonKind) genai.Type {
	switch k {
	case kindString:
		return genai.TypeString
	case kindNumber:
		return genai.TypeNumber
	case kindBoolean:
		return genai.TypeBoolean
	case kindArray:
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

// ParsePlan validates raw model output against the plan schema and decodes it.
// It has no side effects and needs no network access.
func ParsePlan(raw string) (*types.TriagePlan, error) {
	text := extractJSONObject(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrInvalidPlan)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidPlan, err)
	}
	if err := validateFields(planFields, obj, ""); err != nil {
		return nil, err
	}

	var plan types.TriagePlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if plan.NeedsClarification && strings.TrimSpace(plan.ClarificationComment) == "" {
		return nil, fmt.Errorf("%w: clarificationComment is required when needsClarification is true", ErrInvalidPlan)
	}
	return &plan, nil
}

func validateFields(fields []field, obj map[string]json.RawMessage, prefix string) error {
	for name := range obj {
		if !slices.ContainsFunc(fields, func(f field) bool { return f.name == name }) {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidPlan, prefix+name)
		}
	}
	for _, f := range fields {
		path := prefix + f.name
		value, present := obj[f.name]
		if !present || kindOf(value) == kindNull {
			if f.required {
				return fmt.Errorf("%w: missing required field %q", ErrInvalidPlan, path)
			}
			continue
		}

		if got := kindOf(value); got != f.kind {
			return fmt.Errorf("%w: field %q must be %s, got %s", ErrInvalidPlan, path, f.kind, got)
		}

		switch f.kind {
		case kindArray:
			var items []json.RawMessage
			if err := json.Unmarshal(value, &items); err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrInvalidPlan, path, err)
			}
			for i, item := range items {
				if got := kindOf(item); got != f.items {
					return fmt.Errorf("%w: %s[%d] must be %s, got %s", ErrInvalidPlan, path, i, f.items, got)
				}
			}
		case kindObject:
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(value, &nested); err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrInvalidPlan, path, err)
			}
			if err := validateFields(f.fields, nested, path+"."); err != nil {
				return err
			}
		case kindNumber:
			var n float64
			if err := json.Unmarshal(value, &n); err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrInvalidPlan, path, err)
			}
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return fmt.Errorf("%w: field %q is not finite", ErrInvalidPlan, path)
			}
			if f.minimum != nil && n < *f.minimum {
				return fmt.Errorf("%w: field %q is below %v", ErrInvalidPlan, path, *f.minimum)
			}
			if f.maximum != nil && n > *f.maximum {
				return fmt.Errorf("%w: field %q is above %v", ErrInvalidPlan, path, *f.maximum)
			}
		case kindString:
			if len(f.enum) > 0 {
				var s string
				if err := json.Unmarshal(value, &s); err != nil {
					return fmt.Errorf("%w: field %q: %v", ErrInvalidPlan, path, err)
				}
				if !slices.Contains(f.enum, s) {
					return fmt.Errorf("%w: field %q has unknown value %q", ErrInvalidPlan, path, s)
				}
			}
		}
	}
	return nil
}

// kindOf classifies a raw JSON value by its first significant byte
func kindOf(v json.RawMessage) jsonKind {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return kindNull
	}
	switch v[0] {
	case '{':
		return kindObject
	case '[':
		return kindArray
	case '"':
		return kindString
	case 't', 'f':
		return kindBoolean
	case 'n':
		return kindNull
	default:
		return kindNumber
	}
}
