package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Schema is the JSON-schema subset tools declare: a flat object of scalar
// properties. It is what the model sees; validation compiles it with
// jsonschema.
type Schema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// Property describes one argument. Type is one of string, number, integer
// or boolean.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Bound is a convenience for Property.Minimum and Property.Maximum.
func Bound(v float64) *float64 { return &v }

var printer = message.NewPrinter(language.English)

// compileSchema turns a tool's declared parameters into a validator.
func compileSchema(tool string, s Schema) (*jsonschema.Schema, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	url := "tool://" + tool + "/parameters.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// normalizeArgs maps absent and null arguments to an empty object. Models
// send both for tools that take no required parameters.
func normalizeArgs(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}

// validate checks args against sch. All violations are reported together,
// one per line, sorted so the message is stable.
func validate(sch *jsonschema.Schema, args json.RawMessage) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(normalizeArgs(args)))
	if err != nil {
		return fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	err = sch.Validate(inst)
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}

	var lines []string
	collectViolations(ve, &lines)
	sort.Strings(lines)

	errs := make([]error, len(lines))
	for i, l := range lines {
		errs[i] = errors.New(l)
	}
	return errors.Join(errs...)
}

// collectViolations flattens the leaves of a validation tree into
// "field: message" lines. Object-level failures such as a missing required
// property carry no field prefix; the message names the property.
func collectViolations(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectViolations(c, out)
		}
		return
	}
	msg := ve.ErrorKind.LocalizedString(printer)
	if field := strings.Join(ve.InstanceLocation, "/"); field != "" {
		msg = field + ": " + msg
	}
	*out = append(*out, msg)
}
