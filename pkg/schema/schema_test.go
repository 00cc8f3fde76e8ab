package schema_test

import (
	"reflect"
	"testing"

	"github.com/effective-security/mcpbridge/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SearchType string

// Search represents a search request with various parameters.
type Search struct {
	Topic string     `json:"topic,omitempty" jsonschema:"title=Topic,description=Topic of the search\\, with coma.,example=golang"`
	Query string     `json:"query" jsonschema:"title=Query,description=Query to search for relevant content,example=what is golang"`
	Type  SearchType `json:"type"  jsonschema:"title=Type,description=Type of search,default=web,enum=web,enum=image,enum=video"`
	Args  []*KVPair  `json:"args,omitempty" jsonschema:"title=Args,description=Arguments for the search"`
	Prov  *KVPair    `json:"prov,omitempty" jsonschema:"title=Prov,description=Provider for the search"`
}

// KVPair represents a key-value pair.
type KVPair struct {
	Key   string `json:"key" jsonschema:"title=Key,description=Key of the pair"`
	Value string `json:"value" jsonschema:"title=Value,description=Value of the pair"`
}

type addInput struct {
	A float64 `json:"a" jsonschema:"description=First operand"`
	B float64 `json:"b" jsonschema:"description=Second operand"`
}

type node struct {
	Name     string  `json:"name"`
	Children []*node `json:"children,omitempty"`
}

func TestSchema(t *testing.T) {
	t.Parallel()

	s, err := schema.For[addInput]()
	require.NoError(t, err)
	exp := `{
	"properties": {
		"a": {
			"type": "number",
			"description": "First operand"
		},
		"b": {
			"type": "number",
			"description": "Second operand"
		}
	},
	"type": "object",
	"required": [
		"a",
		"b"
	]
}`
	assert.Equal(t, exp, s.String())

	m := s.Map()
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []any{"a", "b"}, m["required"])

	// cached
	s2, err := schema.New(reflect.TypeOf(&addInput{}))
	require.NoError(t, err)
	assert.Same(t, s, s2)

	s3, err := schema.For[*addInput]()
	require.NoError(t, err)
	assert.Same(t, s, s3)
}

func TestSchema_Nested(t *testing.T) {
	t.Parallel()

	s, err := schema.For[Search]()
	require.NoError(t, err)
	m := s.Map()
	assert.NotContains(t, m, "$defs")
	assert.Equal(t, []any{"query", "type"}, m["required"])

	props := m["properties"].(map[string]any)
	prov := props["prov"].(map[string]any)
	assert.Equal(t, "object", prov["type"])
	assert.Contains(t, prov["properties"], "key")

	items := props["args"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, "object", items["type"])
	assert.Contains(t, items["properties"], "value")

	typ := props["type"].(map[string]any)
	assert.Equal(t, []any{"web", "image", "video"}, typ["enum"])
}

func TestSchema_Errors(t *testing.T) {
	t.Parallel()

	_, err := schema.New(nil)
	assert.EqualError(t, err, "schema: nil type")

	_, err = schema.For[string]()
	assert.EqualError(t, err, "schema: string is not a struct")

	_, err = schema.For[node]()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definition not found")

	assert.Panics(t, func() {
		schema.MustFor[int]()
	})
}
