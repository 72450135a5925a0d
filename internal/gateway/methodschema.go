package gateway

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// methodSchemaRegistry compiles each method's param schema once, following
// the same lazy sync.Once pattern as the websocket control plane's
// wsSchemaRegistry.
type methodSchemaRegistry struct {
	once    sync.Once
	initErr error
	schemas map[string]*jsonschema.Schema
}

var dispatchSchemas methodSchemaRegistry

func initDispatchSchemas() error {
	dispatchSchemas.once.Do(func() {
		raw := map[string]string{
			"ping":             pingParamsSchema,
			"chat.send":        chatSendParamsSchema,
			"chat.cancel":      chatCancelParamsSchema,
			"session.get":      sessionGetParamsSchema,
			"session.list":     sessionListParamsSchema,
			"session.delete":   sessionGetParamsSchema,
			"approval.list":    approvalListParamsSchema,
			"approval.respond": approvalRespondParamsSchema,
		}
		compiled := make(map[string]*jsonschema.Schema, len(raw))
		for name, schema := range raw {
			c, err := jsonschema.CompileString("method_"+name, schema)
			if err != nil {
				dispatchSchemas.initErr = fmt.Errorf("compile schema for %s: %w", name, err)
				return
			}
			compiled[name] = c
		}
		dispatchSchemas.schemas = compiled
	})
	return dispatchSchemas.initErr
}

func schemaFor(method string) (*jsonschema.Schema, error) {
	if err := initDispatchSchemas(); err != nil {
		return nil, err
	}
	return dispatchSchemas.schemas[method], nil
}

const pingParamsSchema = `{"type": "object", "additionalProperties": true}`

const chatSendParamsSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "channel_type": { "type": "string" },
    "channel_id": { "type": "string" },
    "thread_id": { "type": "string" },
    "text": { "type": "string", "minLength": 1 },
    "images": { "type": "array" }
  },
  "additionalProperties": true
}`

const chatCancelParamsSchema = `{
  "type": "object",
  "required": ["channel_type", "channel_id"],
  "properties": {
    "channel_type": { "type": "string", "minLength": 1 },
    "channel_id": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const sessionGetParamsSchema = `{
  "type": "object",
  "required": ["session_key"],
  "properties": {
    "session_key": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const sessionListParamsSchema = `{"type": "object", "additionalProperties": true}`

const approvalListParamsSchema = `{"type": "object", "additionalProperties": true}`

const approvalRespondParamsSchema = `{
  "type": "object",
  "required": ["id", "decision"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "decision": { "type": "string", "enum": ["approve", "reject"] }
  },
  "additionalProperties": true
}`
