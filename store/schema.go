package store

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const bodySchemaURL = "https://secretvault.dev/schemas/vault-body.json"

// bodySchemaJSON describes the JSON body between the framing prefix and the
// integrity tag. Byte slices are standard base64.
const bodySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["header", "entries"],
  "additionalProperties": false,
  "properties": {
    "header": {
      "type": "object",
      "required": ["version", "vaultId", "generation", "cipher", "salt", "kdf", "createdAt", "updatedAt"],
      "additionalProperties": false,
      "properties": {
        "version":    {"type": "integer", "minimum": 1},
        "vaultId":    {"type": "string", "format": "uuid"},
        "generation": {"type": "integer", "minimum": 0},
        "cipher":     {"type": "string", "enum": ["aes-256-gcm", "xchacha20-poly1305"]},
        "salt":       {"$ref": "#/$defs/b64"},
        "kdf": {
          "type": "object",
          "required": ["name", "memoryMB", "time", "parallelism", "keyLen"],
          "additionalProperties": false,
          "properties": {
            "name":        {"const": "argon2id"},
            "memoryMB":    {"type": "integer", "minimum": 1},
            "time":        {"type": "integer", "minimum": 1},
            "parallelism": {"type": "integer", "minimum": 1, "maximum": 255},
            "keyLen":      {"type": "integer", "minimum": 1}
          }
        },
        "createdAt": {"type": "string", "format": "date-time"},
        "updatedAt": {"type": "string", "format": "date-time"}
      }
    },
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "nonce", "ciphertext", "createdAt", "updatedAt"],
        "additionalProperties": false,
        "properties": {
          "name":       {"type": "string", "minLength": 1},
          "nonce":      {"$ref": "#/$defs/b64"},
          "ciphertext": {"$ref": "#/$defs/b64"},
          "createdAt":  {"type": "string", "format": "date-time"},
          "updatedAt":  {"type": "string", "format": "date-time"}
        }
      }
    }
  },
  "$defs": {
    "b64": {"type": "string", "minLength": 1, "contentEncoding": "base64"}
  }
}`

var (
	bodySchemaOnce sync.Once
	bodySchema     *jsonschema.Schema
	bodySchemaErr  error
)

func compiledBodySchema() (*jsonschema.Schema, error) {
	bodySchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()
		c.AssertContent()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(bodySchemaJSON))
		if err != nil {
			bodySchemaErr = fmt.Errorf("unmarshal body schema: %w", err)
			return
		}
		if err := c.AddResource(bodySchemaURL, doc); err != nil {
			bodySchemaErr = fmt.Errorf("add body schema resource: %w", err)
			return
		}
		bodySchema, bodySchemaErr = c.Compile(bodySchemaURL)
		if bodySchemaErr != nil {
			bodySchemaErr = fmt.Errorf("compile body schema: %w", bodySchemaErr)
		}
	})
	return bodySchema, bodySchemaErr
}

// validateBody checks body against the vault body schema.
func validateBody(body []byte) error {
	sch, err := compiledBodySchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("body is not JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("body does not match schema: %w", err)
	}
	return nil
}
