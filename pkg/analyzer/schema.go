package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema lists the fields needed to persist an analysis. Everything else
// in the payload, including the shape of details, is analyzer-defined.
const resultSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": [
    "emotion",
    "emotion_confidence",
    "valence",
    "arousal",
    "active_aus",
    "driving_state",
    "driving_state_confidence",
    "risk_level"
  ],
  "properties": {
    "emotion": {"type": "string"},
    "emotion_confidence": {"type": "number"},
    "valence": {"type": "number"},
    "arousal": {"type": "number"},
    "active_aus": {"type": "array", "items": {"type": "string"}},
    "driving_state": {"type": "string"},
    "driving_state_confidence": {"type": "number"},
    "risk_level": {"type": "string", "enum": ["safe", "medium", "high", "critical"]},
    "risk_color": {"type": "string"},
    "recommendation": {"type": "string"}
  }
}`

const resultSchemaURL = "mem://analyzer/result.schema.json"

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(resultSchemaURL, strings.NewReader(resultSchema)); err != nil {
			compileErr = err
			return
		}
		compiledSchema, compileErr = compiler.Compile(resultSchemaURL)
	})
	return compiledSchema, compileErr
}

// DecodeResult checks that body is well-formed JSON carrying the required
// fields and decodes it. Details are kept verbatim.
func DecodeResult(body []byte) (Result, error) {
	if !json.Valid(body) {
		return Result{}, fmt.Errorf("malformed analyzer payload")
	}

	s, err := schema()
	if err != nil {
		return Result{}, fmt.Errorf("compile analyzer schema: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return Result{}, fmt.Errorf("decode analyzer payload: %w", err)
	}
	if err := s.Validate(document); err != nil {
		return Result{}, fmt.Errorf("analyzer payload rejected: %w", err)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return Result{}, fmt.Errorf("decode analyzer payload: %w", err)
	}
	result.RiskLevel = strings.ToLower(result.RiskLevel)
	result.ActiveAUs = UniqueAUs(result.ActiveAUs)
	if len(result.Details) == 0 || string(result.Details) == "null" {
		result.Details = json.RawMessage(`{}`)
	}

	return result, nil
}
