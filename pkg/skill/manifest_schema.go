package skill

// ManifestSchema is the JSON Schema every skill manifest is validated against
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "version", "entry_point"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-z0-9][a-z0-9_-]*$",
      "description": "Unique skill name"
    },
    "version": {
      "type": "string",
      "minLength": 1,
      "description": "Semver version"
    },
    "description": {
      "type": "string"
    },
    "entry_point": {
      "type": "string",
      "pattern": "^[^:\\s]+:[^:\\s]+$",
      "description": "module:handle locator resolved through the catalog"
    },
    "requires": {
      "type": "array",
      "items": {
        "type": "string",
        "minLength": 1,
        "description": "name or name@constraint"
      }
    },
    "requires_db": {
      "type": "boolean"
    },
    "schema_file": {
      "type": "string"
    },
    "config_schema": {
      "type": "object",
      "description": "Flat option map or JSON Schema with properties"
    },
    "permissions": {
      "type": "array",
      "items": {
        "type": "string",
        "pattern": "^(?i)(read|write|ddl)$"
      }
    },
    "internal_doc": {
      "type": "string"
    },
    "external_doc": {
      "type": "string"
    }
  }
}`
