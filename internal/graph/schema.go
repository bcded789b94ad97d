package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator checks the JSON shape of task definitions before they
// are compiled into typed graphs.
type SchemaValidator struct {
	taskSchema *jsonschema.Schema
}

// SchemaError is a single JSON-shape violation.
type SchemaError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SchemaResult holds the outcome of a wire-shape validation.
type SchemaResult struct {
	Valid  bool          `json:"valid"`
	Errors []SchemaError `json:"errors,omitempty"`
}

// NewSchemaValidator compiles the embedded task-definition schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("task.json", strings.NewReader(taskSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add task schema: %w", err)
	}
	schema, err := compiler.Compile("task.json")
	if err != nil {
		return nil, fmt.Errorf("compile task schema: %w", err)
	}
	return &SchemaValidator{taskSchema: schema}, nil
}

// ValidateTaskJSON validates a JSON-encoded task definition.
func (v *SchemaValidator) ValidateTaskJSON(data []byte) *SchemaResult {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return &SchemaResult{
			Valid:  false,
			Errors: []SchemaError{{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}
	}
	return v.ValidateTask(doc)
}

// ValidateTask validates a decoded task definition document.
func (v *SchemaValidator) ValidateTask(doc interface{}) *SchemaResult {
	err := v.taskSchema.Validate(doc)
	if err == nil {
		return &SchemaResult{Valid: true}
	}
	result := &SchemaResult{Valid: false}
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		result.Errors = extractSchemaErrors(verr)
	} else {
		result.Errors = []SchemaError{{Path: "$", Message: err.Error()}}
	}
	return result
}

func extractSchemaErrors(verr *jsonschema.ValidationError) []SchemaError {
	var errs []SchemaError
	if verr.Message != "" {
		errs = append(errs, SchemaError{Path: verr.InstanceLocation, Message: verr.Message})
	}
	for _, cause := range verr.Causes {
		errs = append(errs, extractSchemaErrors(cause)...)
	}
	return errs
}

const taskSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "task.json",
  "title": "Task Definition",
  "type": "object",
  "required": ["environment", "testcases"],
  "properties": {
    "id": {"type": "string"},
    "question": {"type": "string"},
    "environment": {
      "type": "object",
      "required": ["language", "time_limit_secs", "memory_limit_mb"],
      "properties": {
        "language": {"type": "string", "enum": ["PYTHON"]},
        "time_limit_secs": {"type": "integer", "minimum": 1},
        "memory_limit_mb": {"type": "integer", "minimum": 1}
      }
    },
    "required_inputs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "label": {"type": "string"}
        }
      }
    },
    "testcases": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/testcase"}
    }
  },
  "$defs": {
    "testcase": {
      "type": "object",
      "required": ["id", "nodes", "edges"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "order_index": {"type": "integer", "minimum": 0},
        "nodes": {
          "type": "array",
          "minItems": 1,
          "items": {"$ref": "#/$defs/node"}
        },
        "edges": {
          "type": "array",
          "items": {"$ref": "#/$defs/edge"}
        }
      }
    },
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": {"type": "integer", "minimum": 0},
        "type": {
          "type": "string",
          "enum": ["INPUT", "OUTPUT", "RUN_FUNCTION", "STRING_MATCH", "COMPARE", "IF_ELSE", "LOOP"]
        },
        "is_user": {"type": "boolean"},
        "inputs": {"type": "array", "items": {"$ref": "#/$defs/socket"}},
        "outputs": {"type": "array", "items": {"$ref": "#/$defs/socket"}},
        "run_function": {
          "type": "object",
          "required": ["function_name"],
          "properties": {
            "function_name": {"type": "string", "minLength": 1},
            "time_limit_secs": {"type": "integer", "minimum": 0},
            "memory_limit_mb": {"type": "integer", "minimum": 0}
          }
        },
        "compare": {
          "type": "object",
          "required": ["operator"],
          "properties": {
            "operator": {"type": "string", "enum": ["eq", "ne", "lt", "le", "gt", "ge"]},
            "tolerance": {"type": "number", "minimum": 0}
          }
        },
        "if_else": {
          "type": "object",
          "properties": {
            "then": {"type": "array", "items": {"type": "integer"}},
            "else": {"type": "array", "items": {"type": "integer"}}
          }
        },
        "loop": {
          "type": "object",
          "required": ["body"],
          "properties": {
            "count": {"type": "integer", "minimum": 0},
            "predicate": {"type": "string"},
            "max_iterations": {"type": "integer", "minimum": 0},
            "body": {"type": "array", "minItems": 1, "items": {"type": "integer"}},
            "carried": {
              "type": "array",
              "items": {
                "type": "object",
                "required": ["from", "to"],
                "properties": {
                  "from": {
                    "type": "object",
                    "required": ["node_id", "socket_id"],
                    "properties": {
                      "node_id": {"type": "integer"},
                      "socket_id": {"type": "string"}
                    }
                  },
                  "to": {"type": "string"}
                }
              }
            }
          }
        }
      }
    },
    "socket": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "type": {
          "type": "string",
          "enum": ["STRING", "INT", "FLOAT", "BOOL", "FILE", "ANY"]
        },
        "public": {"type": "boolean"}
      }
    },
    "edge": {
      "type": "object",
      "required": ["id", "from_node_id", "from_socket_id", "to_node_id", "to_socket_id"],
      "properties": {
        "id": {"type": "integer"},
        "from_node_id": {"type": "integer"},
        "from_socket_id": {"type": "string", "minLength": 1},
        "to_node_id": {"type": "integer"},
        "to_socket_id": {"type": "string", "minLength": 1},
        "coerce": {"type": "boolean"}
      }
    }
  }
}`
