package webhook

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// payloadSchema is the structural contract for the callback body. It is
// deliberately loose about unknown fields: the platform adds event kinds
// over time and unknown ones are simply ignored downstream.
const payloadSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["events"],
	"properties": {
		"events": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"type": {"type": "string", "minLength": 1},
					"timestamp": {"type": "integer"},
					"message": {
						"type": "object",
						"required": ["type"],
						"properties": {
							"id": {"type": "string"},
							"type": {"type": "string", "minLength": 1},
							"text": {"type": "string"},
							"fileName": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledPayloadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(payloadSchema))
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("webhook-payload.json", doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("webhook-payload.json")
	})
	return compiledSchema, schemaErr
}

func validatePayload(body []byte) error {
	schema, err := compiledPayloadSchema()
	if err != nil {
		return fmt.Errorf("payload schema unavailable: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("malformed json: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}
