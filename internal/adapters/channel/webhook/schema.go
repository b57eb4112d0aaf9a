package webhook

import "github.com/santhosh-tekuri/jsonschema/v5"

// Callback contracts. Malformed payloads are rejected at the edge and never
// reach the controller.

const progressSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["sessionKey", "captureInProgress", "partialResult", "requiredFields"],
  "properties": {
    "sessionKey": {"type": "string", "minLength": 1},
    "captureInProgress": {"type": "boolean"},
    "partialResult": {"type": "boolean"},
    "maskedResult": {"type": "string"},
    "requiredFields": {
      "type": "array",
      "items": {
        "type": "string",
        "enum": ["card-number", "security-code", "expiration-date", "postal-code"]
      }
    }
  }
}`

const newCallSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["pstnCallId"],
  "properties": {
    "pstnCallId": {"type": "string", "minLength": 1}
  }
}`

var (
	progressSchema = jsonschema.MustCompileString("progress.schema.json", progressSchemaJSON)
	newCallSchema  = jsonschema.MustCompileString("newcall.schema.json", newCallSchemaJSON)
)
