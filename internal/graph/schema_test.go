package graph

import "testing"

const validTaskJSON = `{
  "id": "task-1",
  "environment": {"language": "PYTHON", "time_limit_secs": 10, "memory_limit_mb": 256},
  "required_inputs": [{"id": "submission"}],
  "testcases": [{
    "id": "tc-1",
    "nodes": [
      {"id": 0, "type": "INPUT", "is_user": true,
       "outputs": [{"id": "submission", "type": "FILE"}]},
      {"id": 1, "type": "OUTPUT",
       "inputs": [{"id": "res", "type": "FILE", "public": true}]}
    ],
    "edges": [
      {"id": 1, "from_node_id": 0, "from_socket_id": "submission",
       "to_node_id": 1, "to_socket_id": "res"}
    ]
  }]
}`

func TestSchemaAcceptsValidTask(t *testing.T) {
	v, err := NewSchemaValidator()
	if err != nil {
		t.Fatalf("NewSchemaValidator failed: %v", err)
	}
	result := v.ValidateTaskJSON([]byte(validTaskJSON))
	if !result.Valid {
		t.Fatalf("valid task rejected: %+v", result.Errors)
	}
}

func TestSchemaRejections(t *testing.T) {
	v, err := NewSchemaValidator()
	if err != nil {
		t.Fatalf("NewSchemaValidator failed: %v", err)
	}

	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"missing environment", `{"testcases": []}`},
		{"empty testcases", `{
			"environment": {"language": "PYTHON", "time_limit_secs": 10, "memory_limit_mb": 256},
			"testcases": []
		}`},
		{"unknown node kind", `{
			"environment": {"language": "PYTHON", "time_limit_secs": 10, "memory_limit_mb": 256},
			"testcases": [{"id": "tc", "nodes": [{"id": 0, "type": "MYSTERY"}], "edges": []}]
		}`},
		{"unknown language", `{
			"environment": {"language": "COBOL", "time_limit_secs": 10, "memory_limit_mb": 256},
			"testcases": [{"id": "tc", "nodes": [{"id": 0, "type": "INPUT"}], "edges": []}]
		}`},
		{"edge missing endpoint", `{
			"environment": {"language": "PYTHON", "time_limit_secs": 10, "memory_limit_mb": 256},
			"testcases": [{"id": "tc",
				"nodes": [{"id": 0, "type": "INPUT"}],
				"edges": [{"id": 1, "from_node_id": 0, "from_socket_id": "a"}]}]
		}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := v.ValidateTaskJSON([]byte(tc.json))
			if result.Valid {
				t.Fatalf("accepted")
			}
			if len(result.Errors) == 0 {
				t.Fatalf("no errors reported")
			}
		})
	}
}
