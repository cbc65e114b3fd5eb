package dispatcher

import "github.com/santhosh-tekuri/jsonschema/v5"

// Per-method parameter schemas, compiled once at init. The shape
// check is the first pipeline step: params that do not match are
// rejected with InvalidInput before any store is touched.

var enableSchema = jsonschema.MustCompileString("enable.json", `{
	"type": "object",
	"properties": {
		"network": {"type": "string"}
	},
	"additionalProperties": false
}`)

var disableSchema = jsonschema.MustCompileString("disable.json", `{
	"type": "object",
	"properties": {
		"network": {"type": "string"},
		"session_ids": {
			"type": "array",
			"items": {"type": "string", "minLength": 1}
		}
	},
	"additionalProperties": false
}`)

var signTransactionsSchema = jsonschema.MustCompileString("sign_transactions.json", `{
	"type": "object",
	"required": ["transactions"],
	"properties": {
		"transactions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "genesis_hash", "genesis_id", "raw"],
				"properties": {
					"id":           {"type": "string", "minLength": 1},
					"genesis_hash": {"type": "string", "minLength": 1},
					"genesis_id":   {"type": "string", "minLength": 1},
					"group":        {"type": "string"},
					"signer":       {"type": "string"},
					"raw":          {"type": "string", "minLength": 1}
				},
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`)

var signMessageSchema = jsonschema.MustCompileString("sign_message.json", `{
	"type": "object",
	"required": ["signer", "message"],
	"properties": {
		"network": {"type": "string"},
		"signer":  {"type": "string", "minLength": 1},
		"message": {"type": "string", "minLength": 1}
	},
	"additionalProperties": false
}`)
