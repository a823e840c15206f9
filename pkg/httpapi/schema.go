package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/haivivi/t140cast/pkg/device"
)

const maxBodyBytes = 1 << 20

var (
	createDeviceSchema = mustResolve(deviceSchema(true))
	updateDeviceSchema = mustResolve(deviceSchema(false))
	streamSchema       = mustResolve(&jsonschema.Schema{
		Type:     "object",
		Required: []string{"prompt"},
		Properties: map[string]*jsonschema.Schema{
			"prompt":   nonEmpty(),
			"provider": {Type: "string"},
		},
	})
	streamMultipleSchema = mustResolve(&jsonschema.Schema{
		Type:     "object",
		Required: []string{"deviceIds", "prompt"},
		Properties: map[string]*jsonschema.Schema{
			"deviceIds": {
				Type:     "array",
				Items:    nonEmpty(),
				MinItems: jsonschema.Ptr(1),
			},
			"prompt":   nonEmpty(),
			"provider": {Type: "string"},
		},
	})
)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	rs, err := s.Resolve(nil)
	if err != nil {
		panic(err)
	}
	return rs
}

func nonEmpty() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", MinLength: jsonschema.Ptr(1)}
}

func enumOf(names ...string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

func typeNames() []string {
	names := make([]string, 0, len(device.Types)+1)
	for _, t := range device.Types {
		names = append(names, t.String())
	}
	return append(names, "multi-purpose")
}

func protocolNames() []string {
	names := make([]string, 0, len(device.Protocols))
	for _, p := range device.Protocols {
		names = append(names, p.String())
	}
	return names
}

// deviceSchema builds the body schema for create (all core fields
// required) or update (everything optional). Schemas must form a tree, so
// every call builds fresh subschemas.
func deviceSchema(create bool) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":      nonEmpty(),
			"type":      {Type: "string", Enum: enumOf(typeNames()...)},
			"ipAddress": nonEmpty(),
			"port": {
				Type:    "integer",
				Minimum: jsonschema.Ptr(1.0),
				Maximum: jsonschema.Ptr(65535.0),
			},
			"protocol": {Type: "string", Enum: enumOf(protocolNames()...)},
			"settings": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"characterRateLimit":  {Type: "integer", Minimum: jsonschema.Ptr(0.0)},
					"backspaceProcessing": {Type: "boolean"},
					"textSize":            {Type: "string"},
					"contrast":            {Type: "string"},
					"audioFeedback":       {Type: "boolean"},
					"customSettings":      {Type: "object"},
				},
			},
		},
	}
	if create {
		s.Required = []string{"name", "type", "ipAddress", "port", "protocol"}
	}
	return s
}

// decode reads the JSON body, validates it against rs and unmarshals it
// into v. Failures are ValidationFailed.
func decode(w http.ResponseWriter, r *http.Request, rs *jsonschema.Resolved, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return device.Wrap(device.ReasonValidationFailed, "", fmt.Errorf("read body: %w", err))
	}
	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		return device.Wrap(device.ReasonValidationFailed, "", fmt.Errorf("invalid JSON: %w", err))
	}
	if err := rs.Validate(instance); err != nil {
		return device.Wrap(device.ReasonValidationFailed, "", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return device.Wrap(device.ReasonValidationFailed, "", err)
	}
	return nil
}
