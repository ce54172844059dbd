package plugin

// manifestSchema is the JSON Schema every plugin.json must satisfy
// before it is parsed any further.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "version", "tools", "exec"],
  "properties": {
    "id": {
      "type": "string",
      "pattern": "^[a-z0-9-]+$",
      "description": "Unique plugin identifier"
    },
    "name": {
      "type": "string",
      "minLength": 1,
      "description": "Human-readable plugin name"
    },
    "version": {
      "type": "string",
      "pattern": "^\\d+\\.\\d+\\.\\d+$",
      "description": "Semver version"
    },
    "description": {
      "type": "string",
      "description": "Plugin description"
    },
    "tools": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "status", "description"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "status": {
            "type": "string",
            "enum": ["ready", "stub", "experimental"]
          },
          "description": { "type": "string", "minLength": 1 },
          "required": {
            "type": "array",
            "items": { "type": "string" }
          },
          "parameters": {
            "type": "object",
            "additionalProperties": {
              "type": "object",
              "required": ["type"],
              "properties": {
                "type": {
                  "type": "string",
                  "enum": ["string", "integer", "number", "boolean"]
                },
                "description": { "type": "string" },
                "enum": {
                  "type": "array",
                  "items": { "type": "string" }
                }
              }
            }
          }
        }
      }
    },
    "exec": {
      "type": "object",
      "required": ["command"],
      "properties": {
        "command": { "type": "string", "minLength": 1 },
        "args": {
          "type": "array",
          "items": { "type": "string" }
        }
      }
    }
  }
}`
