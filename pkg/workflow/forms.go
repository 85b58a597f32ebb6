package workflow

import (
	"fmt"
	"time"

	"github.com/omex-energy/omex/pkg/oerr"
)

// FormSchema is the UI-renderable description of a single workflow:
// identity plus a JSON-forms style schema/uischema pair. Workflows
// without parameters carry only the identity.
type FormSchema struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Schema      *ObjectSchema `json:"schema,omitempty"`
	UISchema    *UISchema     `json:"uischema,omitempty"`
}

type ObjectSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]FieldSchema `json:"properties"`
	Required   []string               `json:"required"`
}

type FieldSchema struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type"`
	Format      string         `json:"format,omitempty"`
	Default     any            `json:"default,omitempty"`
	Minimum     *float64       `json:"minimum,omitempty"`
	Maximum     *float64       `json:"maximum,omitempty"`
	OneOf       []ChoiceOption `json:"oneOf,omitempty"`
}

// ChoiceOption is one entry of a closed choice list: the submitted
// value plus its display label.
type ChoiceOption struct {
	Const string `json:"const"`
	Title string `json:"title"`
}

type UISchema struct {
	Type     string      `json:"type"`
	Elements []UIControl `json:"elements"`
}

type UIControl struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
}

// FormSchemas translates every definition into its form schema.
func FormSchemas(defs []Definition) ([]FormSchema, error) {
	schemas := make([]FormSchema, 0, len(defs))
	for _, def := range defs {
		schema, err := formSchema(def)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

func formSchema(def Definition) (FormSchema, error) {
	out := FormSchema{ID: def.Name, Description: def.Description}
	if len(def.Parameters) == 0 {
		return out, nil
	}

	properties := make(map[string]FieldSchema, len(def.Parameters))
	required := make([]string, 0, len(def.Parameters))
	ui := &UISchema{Type: "VerticalLayout"}

	for _, param := range def.Parameters {
		field, err := fieldSchema(param)
		if err != nil {
			return FormSchema{}, err
		}
		properties[param.Key()] = field
		required = append(required, param.Key())
		ui.Elements = append(ui.Elements, UIControl{
			Type:  "Control",
			Scope: fmt.Sprintf("#/properties/%s", param.Key()),
		})
	}

	out.Schema = &ObjectSchema{Type: "object", Properties: properties, Required: required}
	out.UISchema = ui
	return out, nil
}

func fieldSchema(param Parameter) (FieldSchema, error) {
	var field FieldSchema

	switch p := param.(type) {
	case StringParameter:
		field.Title, field.Description = p.Title, p.Description
		field.Type = "string"
		if p.Default != nil {
			field.Default = *p.Default
		}
		for _, option := range p.EnumOptions {
			field.OneOf = append(field.OneOf, ChoiceOption{
				Const: option.KeyName,
				Title: option.DisplayName,
			})
		}
	case BooleanParameter:
		field.Title, field.Description = p.Title, p.Description
		field.Type = "boolean"
		if p.Default != nil {
			field.Default = *p.Default
		}
	case IntegerParameter:
		field.Title, field.Description = p.Title, p.Description
		field.Type = "integer"
		if p.Default != nil {
			field.Default = *p.Default
		}
		if p.Minimum != nil {
			field.Minimum = Float(float64(*p.Minimum))
		}
		if p.Maximum != nil {
			field.Maximum = Float(float64(*p.Maximum))
		}
	case FloatParameter:
		field.Title, field.Description = p.Title, p.Description
		field.Type = "number"
		if p.Default != nil {
			field.Default = *p.Default
		}
		field.Minimum = p.Minimum
		field.Maximum = p.Maximum
	case DateTimeParameter:
		field.Title, field.Description = p.Title, p.Description
		field.Type = "string"
		field.Format = "date-time"
		if p.Default != nil {
			field.Default = p.Default.Format(time.RFC3339Nano)
		}
	case DurationParameter:
		// Durations travel as seconds on the form side.
		field.Title, field.Description = p.Title, p.Description
		field.Type = "number"
		if p.Default != nil {
			field.Default = p.Default.Seconds()
		}
		if p.Minimum != nil {
			field.Minimum = Float(p.Minimum.Seconds())
		}
		if p.Maximum != nil {
			field.Maximum = Float(p.Maximum.Seconds())
		}
	default:
		return FieldSchema{}, oerr.Newf(oerr.CodeUnsupportedParameterType,
			"parameter %q has unsupported type %T", param.Key(), param)
	}

	return field, nil
}

// FormValuesToParams converts form values back into the typed parameter
// mapping the orchestrator expects. Duration values arrive as numeric
// seconds and become time.Duration; date-time values arrive as RFC 3339
// strings and become time.Time; everything else passes through. This is
// the exact inverse of the defaults emitted by FormSchemas.
func FormValuesToParams(def Definition, values map[string]any) (map[string]any, error) {
	params := make(map[string]any, len(def.Parameters))

	for _, param := range def.Parameters {
		value, ok := values[param.Key()]
		if !ok || value == nil {
			return nil, oerr.Newf(oerr.CodeMissingParameter,
				"missing parameter %q in job submission", param.Key())
		}

		switch param.(type) {
		case DurationParameter:
			seconds, ok := toFloat(value)
			if !ok {
				return nil, oerr.Newf(oerr.CodeInvalidParameter,
					"parameter %q: expected numeric seconds, got %T", param.Key(), value)
			}
			params[param.Key()] = time.Duration(seconds * float64(time.Second))
		case DateTimeParameter:
			raw, ok := value.(string)
			if !ok {
				return nil, oerr.Newf(oerr.CodeInvalidParameter,
					"parameter %q: expected RFC 3339 string, got %T", param.Key(), value)
			}
			parsed, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return nil, oerr.Newf(oerr.CodeInvalidParameter,
					"parameter %q: %v", param.Key(), err)
			}
			params[param.Key()] = parsed
		default:
			params[param.Key()] = value
		}
	}

	return params, nil
}

// toFloat accepts the numeric shapes JSON decoding can hand us.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
