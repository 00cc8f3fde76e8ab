// Package schema builds JSON schemas of tool input types, inlined so that
// the schema can be used as a function declaration without $defs.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.Mutex
)

// Schema of a tool input type
type Schema struct {
	// RawSchema is the reflected schema, with definitions
	RawSchema *jsonschema.Schema
	// Parameters is the inlined object schema
	Parameters *jsonschema.Schema
}

// New creates a new schema from the given struct type,
// a pointer type shares the schema of its element type
func New(t reflect.Type) (*Schema, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if s, ok := cache[t]; ok {
		return s, nil
	}

	s, err := buildSchema(t)
	if err != nil {
		return nil, err
	}
	cache[t] = s

	return s, nil
}

// For returns the schema of T
func For[T any]() (*Schema, error) {
	var v T
	return New(reflect.TypeOf(v))
}

// MustFor returns the schema of T, and panics on failure.
// Use it to register tools at start up.
func MustFor[T any]() *Schema {
	s, err := For[T]()
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

// Map returns the parameters as a generic JSON object
func (s *Schema) Map() map[string]any {
	js, err := json.Marshal(s.Parameters)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err = json.Unmarshal(js, &m); err != nil {
		return nil
	}
	return m
}

func buildSchema(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, errors.New("schema: nil type")
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Newf("schema: %s is not a struct", t.String())
	}

	raw := JSONSchema(t)
	params, err := toFunctionSchema(raw)
	if err != nil {
		return nil, errors.WithMessagef(err, "schema: %s", t.Name())
	}

	return &Schema{
		RawSchema:  raw,
		Parameters: params,
	}, nil
}

func toFunctionSchema(tSchema *jsonschema.Schema) (*jsonschema.Schema, error) {
	refID := strings.TrimPrefix(tSchema.Ref, "#/$defs/")

	defs := make(map[string]*jsonschema.Schema)
	root := tSchema
	for name, def := range tSchema.Definitions {
		if name == refID {
			root = def
		} else {
			defs[name] = def
		}
	}

	res := &jsonschema.Schema{
		Type:       "object",
		Properties: root.Properties,
		Required:   root.Required,
	}
	if res.Properties == nil {
		res.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}

	if err := resolveRefs(res.Properties, defs, 0); err != nil {
		return nil, err
	}
	return res, nil
}

const maxDepth = 16

func resolveRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema, depth int) error {
	if depth > maxDepth {
		return errors.New("recursive types are not supported")
	}
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Ref != "" {
			def, err := lookupRef(pair.Value.Ref, defs)
			if err != nil {
				return errors.WithMessagef(err, "property %q", pair.Key)
			}
			pair.Value = def
		}
		child := pair.Value
		if child.Items != nil && child.Items.Ref != "" {
			def, err := lookupRef(child.Items.Ref, defs)
			if err != nil {
				return errors.WithMessagef(err, "items of %q", pair.Key)
			}
			child.Items = def
		}
		if child.Properties != nil {
			if err := resolveRefs(child.Properties, defs, depth+1); err != nil {
				return err
			}
		}
		if child.Items != nil && child.Items.Properties != nil {
			if err := resolveRefs(child.Items.Properties, defs, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func lookupRef(ref string, defs map[string]*jsonschema.Schema) (*jsonschema.Schema, error) {
	name := strings.TrimPrefix(ref, "#/$defs/")
	def, ok := defs[name]
	if !ok {
		return nil, errors.Newf("definition not found: %s", ref)
	}
	return def, nil
}

// JSONSchema returns the json schema of the type
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)

	// Struct names may collide across packages,
	// the definition name carries the hash of the package path.
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}
