package llms

import (
	"encoding/json"
)

func schemaMap(v any) map[string]any {
	switch s := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return s
	case json.RawMessage:
		return rawSchemaMap(s)
	case []byte:
		return rawSchemaMap(s)
	case string:
		return rawSchemaMap([]byte(s))
	}

	js, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return rawSchemaMap(js)
}

func rawSchemaMap(js []byte) map[string]any {
	if len(js) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(js, &m); err != nil {
		return nil
	}
	return m
}
