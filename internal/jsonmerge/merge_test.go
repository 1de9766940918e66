package jsonmerge_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/browser-infra/buildtools/internal/jsonmerge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decode is a helper to write documents as JSON in test tables.
func decode(t *testing.T, s string) any {
	t.Helper()

	if s == "" {
		return nil
	}
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v), "Setup: test document should be valid JSON")
	return v
}

func decodeObject(t *testing.T, s string) map[string]any {
	t.Helper()

	v := decode(t, s)
	if v == nil {
		return nil
	}
	obj, ok := v.(map[string]any)
	require.True(t, ok, "Setup: test document should be an object")
	return obj
}

func TestMerge(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		schema string
		base   string
		head   string

		want      string
		wantErrAs error
	}{
		"Overwrites scalars without schema":    {base: `{"a":1,"b":2}`, head: `{"a":3}`, want: `{"a":3,"b":2}`},
		"Merges nested objects without schema": {base: `{"a":{"x":1}}`, head: `{"a":{"y":2}}`, want: `{"a":{"x":1,"y":2}}`},
		"Overwrites arrays without schema":     {base: `{"a":[1,2]}`, head: `{"a":[3]}`, want: `{"a":[3]}`},
		"Undefined base takes head":            {head: `{"a":1}`, want: `{"a":1}`},
		"Null head member overwrites":          {base: `{"a":1}`, head: `{"a":null}`, want: `{"a":null}`},

		"Append concatenates arrays": {
			schema: `{"mergeStrategy":"append"}`,
			base:   `["a"]`, head: `["b"]`, want: `["a","b"]`,
		},
		"Append on undefined base": {
			schema: `{"properties":{"l":{"mergeStrategy":"append"}}}`,
			base:   `{}`, head: `{"l":[1]}`, want: `{"l":[1]}`,
		},
		"Overwrite strategy replaces objects": {
			schema: `{"properties":{"o":{"mergeStrategy":"overwrite"}}}`,
			base:   `{"o":{"x":1}}`, head: `{"o":{"y":2}}`, want: `{"o":{"y":2}}`,
		},
		"Pattern properties select the strategy": {
			schema: `{"patternProperties":{"^list_":{"mergeStrategy":"append"}}}`,
			base:   `{"list_a":[1],"other":[1]}`, head: `{"list_a":[2],"other":[2]}`, want: `{"list_a":[1,2],"other":[2]}`,
		},
		"Additional properties select the strategy": {
			schema: `{"properties":{"keep":{}},"additionalProperties":{"mergeStrategy":"append"}}`,
			base:   `{"keep":[1],"more":[1]}`, head: `{"keep":[2],"more":[2]}`, want: `{"keep":[2],"more":[1,2]}`,
		},

		"ArrayMergeById merges matching items and appends new ones": {
			schema: `{"mergeStrategy":"arrayMergeById"}`,
			base:   `[{"id":"a","v":1},{"id":"b","v":2}]`,
			head:   `[{"id":"b","w":3},{"id":"c","v":4}]`,
			want:   `[{"id":"a","v":1},{"id":"b","v":2,"w":3},{"id":"c","v":4}]`,
		},
		"ArrayMergeById with custom idRef pointer": {
			schema: `{"mergeStrategy":"arrayMergeById","mergeOptions":{"idRef":"/key/name"}}`,
			base:   `[{"key":{"name":"a"},"v":1}]`,
			head:   `[{"key":{"name":"a"},"v":2}]`,
			want:   `[{"key":{"name":"a"},"v":2}]`,
		},
		"ArrayMergeById ignores head items without id": {
			schema: `{"mergeStrategy":"arrayMergeById"}`,
			base:   `[{"id":1}]`, head: `[{"other":1}]`, want: `[{"id":1}]`,
		},
		"ArrayMergeById ignores the ignoreId value": {
			schema: `{"mergeStrategy":"arrayMergeById","mergeOptions":{"ignoreId":"skip"}}`,
			base:   `[]`, head: `[{"id":"skip"},{"id":"keep"}]`, want: `[{"id":"keep"}]`,
		},
		"ArrayMergeById merges items with the items schema": {
			schema: `{"mergeStrategy":"arrayMergeById","items":{"properties":{"tags":{"mergeStrategy":"append"}}}}`,
			base:   `[{"id":1,"tags":["x"]}]`, head: `[{"id":1,"tags":["y"]}]`, want: `[{"id":1,"tags":["x","y"]}]`,
		},

		"Discard keeps the base value": {
			schema: `{"properties":{"d":{"mergeStrategy":"discard"}}}`,
			base:   `{"d":1}`, head: `{"d":2,"e":3}`, want: `{"d":1,"e":3}`,
		},
		"Discard leaves undefined members out": {
			schema: `{"properties":{"d":{"mergeStrategy":"discard"}}}`,
			base:   `{}`, head: `{"d":2}`, want: `{}`,
		},
		"Discard keeps head when keepIfUndef is set": {
			schema: `{"properties":{"d":{"mergeStrategy":"discard","mergeOptions":{"keepIfUndef":true}}}}`,
			base:   `{}`, head: `{"d":2}`, want: `{"d":2}`,
		},
		"Discard drops new array items": {
			schema: `{"mergeStrategy":"arrayMergeById","items":{"mergeStrategy":"discard"}}`,
			base:   `[{"id":1,"v":1}]`, head: `[{"id":1,"v":2},{"id":2}]`, want: `[{"id":1,"v":1}]`,
		},

		"ArrayMergeByIndex merges items at the same position": {
			schema: `{"mergeStrategy":"arrayMergeByIndex"}`,
			base:   `[{"a":1},{"b":1}]`, head: `[{"a":2}]`, want: `[{"a":2},{"b":1}]`,
		},
		"ArrayMergeByIndex appends items past the base": {
			schema: `{"mergeStrategy":"arrayMergeByIndex","items":{"properties":{"l":{"mergeStrategy":"append"}}}}`,
			base:   `[{"l":[1]}]`, head: `[{"l":[2]},{"l":[3]}]`, want: `[{"l":[1,2]},{"l":[3]}]`,
		},
		"ArrayMergeByIndex on undefined base": {
			schema: `{"mergeStrategy":"arrayMergeByIndex"}`,
			head:   `[1,2]`, want: `[1,2]`,
		},

		"Version records the head value": {
			schema: `{"mergeStrategy":"version"}`,
			head:   `"a"`, want: `[{"value":"a"}]`,
		},
		"Version skips a repeated last value by default": {
			schema: `{"mergeStrategy":"version"}`,
			base:   `[{"value":"a"}]`, head: `"a"`, want: `[{"value":"a"}]`,
		},
		"Version keeps duplicates when ignoreDups is false": {
			schema: `{"mergeStrategy":"version","mergeOptions":{"ignoreDups":false}}`,
			base:   `[{"value":"a"}]`, head: `"a"`, want: `[{"value":"a"},{"value":"a"}]`,
		},
		"Version limit keeps the last entries": {
			schema: `{"mergeStrategy":"version","mergeOptions":{"limit":2}}`,
			base:   `[{"value":1},{"value":2}]`, head: `3`, want: `[{"value":2},{"value":3}]`,
		},

		"Ref is followed for strategies": {
			schema: `{"properties":{"a":{"$ref":"#/definitions/list"}},"definitions":{"list":{"mergeStrategy":"append"}}}`,
			base:   `{"a":[1]}`, head: `{"a":[2]}`, want: `{"a":[1,2]}`,
		},
		"Ref chains are followed": {
			schema: `{"properties":{"a":{"$ref":"#/$defs/one"}},"$defs":{"one":{"$ref":"#/$defs/two"},"two":{"mergeStrategy":"append"}}}`,
			base:   `{"a":[1]}`, head: `{"a":[2]}`, want: `{"a":[1,2]}`,
		},

		"Error on append with non array head": {
			schema:    `{"mergeStrategy":"append"}`,
			base:      `[]`,
			head:      `{"a":1}`,
			wantErrAs: jsonmerge.HeadInstanceError{},
		},
		"Error on append with non array base": {
			schema:    `{"mergeStrategy":"append"}`,
			base:      `{"a":1}`,
			head:      `[]`,
			wantErrAs: jsonmerge.BaseInstanceError{},
		},
		"Error on objectMerge with non object base": {
			schema:    `{"mergeStrategy":"objectMerge"}`,
			base:      `[1]`,
			head:      `{"a":1}`,
			wantErrAs: jsonmerge.BaseInstanceError{},
		},
		"Error on objectMerge with non object head": {
			schema:    `{"mergeStrategy":"objectMerge"}`,
			base:      `{}`,
			head:      `[1]`,
			wantErrAs: jsonmerge.HeadInstanceError{},
		},
		"Error on duplicate ids in base": {
			schema:    `{"mergeStrategy":"arrayMergeById"}`,
			base:      `[{"id":1},{"id":1}]`,
			head:      `[{"id":2}]`,
			wantErrAs: jsonmerge.BaseInstanceError{},
		},
		"Error on arrayMergeById with an items array": {
			schema:    `{"mergeStrategy":"arrayMergeById","items":[{}]}`,
			base:      `[]`,
			head:      `[]`,
			wantErrAs: jsonmerge.SchemaError{},
		},
		"Error on arrayMergeByIndex with non array head": {
			schema:    `{"mergeStrategy":"arrayMergeByIndex"}`,
			base:      `[]`,
			head:      `{"a":1}`,
			wantErrAs: jsonmerge.HeadInstanceError{},
		},
		"Error on arrayMergeByIndex with non array base": {
			schema:    `{"mergeStrategy":"arrayMergeByIndex"}`,
			base:      `{"a":1}`,
			head:      `[]`,
			wantErrAs: jsonmerge.BaseInstanceError{},
		},
		"Error on arrayMergeByIndex with an items array": {
			schema:    `{"mergeStrategy":"arrayMergeByIndex","items":[{}]}`,
			base:      `[]`,
			head:      `[]`,
			wantErrAs: jsonmerge.SchemaError{},
		},
		"Error on unknown discard option": {
			schema:    `{"mergeStrategy":"discard","mergeOptions":{"keep":true}}`,
			head:      `1`,
			wantErrAs: jsonmerge.SchemaError{},
		},
		"Error on unknown merge option": {
			schema:    `{"mergeStrategy":"version","mergeOptions":{"limits":2}}`,
			head:      `1`,
			wantErrAs: jsonmerge.SchemaError{},
		},
		"Error on negative version limit": {
			schema:    `{"mergeStrategy":"version","mergeOptions":{"limit":-1}}`,
			head:      `1`,
			wantErrAs: jsonmerge.SchemaError{},
		},
		"Error on unresolvable ref": {
			schema:    `{"properties":{"a":{"$ref":"#/definitions/missing"}}}`,
			base:      `{}`,
			head:      `{"a":1}`,
			wantErrAs: jsonmerge.SchemaError{},
		},
		"Error on reference cycle": {
			schema:    `{"properties":{"a":{"$ref":"#/definitions/x"}},"definitions":{"x":{"$ref":"#/definitions/x"}}}`,
			base:      `{}`,
			head:      `{"a":1}`,
			wantErrAs: jsonmerge.SchemaError{},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := jsonmerge.New(decodeObject(t, tc.schema))
			require.NoError(t, err, "New should not fail")

			base := decode(t, tc.base)
			head := decode(t, tc.head)
			baseCopy := decode(t, tc.base)
			headCopy := decode(t, tc.head)

			got, err := m.Merge(base, head)
			if tc.wantErrAs != nil {
				require.Error(t, err, "Merge should fail")
				assert.IsType(t, tc.wantErrAs, err, "Unexpected error type")
				return
			}
			require.NoError(t, err, "Merge should not fail")

			assert.Equal(t, decode(t, tc.want), got, "Unexpected merge result")
			assert.Equal(t, baseCopy, base, "Merge should not modify base")
			assert.Equal(t, headCopy, head, "Merge should not modify head")
		})
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		schema string
	}{
		"Unknown strategy":           {schema: `{"mergeStrategy":"nope"}`},
		"Strategy is not a string":   {schema: `{"mergeStrategy":1}`},
		"Options are not an object":  {schema: `{"mergeStrategy":"append","mergeOptions":[]}`},
		"Ref is not a string":        {schema: `{"properties":{"a":{"$ref":1}}}`},
		"Invalid pattern":            {schema: `{"patternProperties":{"(":{}}}`},
		"Nested unknown strategy":    {schema: `{"properties":{"a":{"mergeStrategy":"nope"}}}`},
		"Property schema not object": {schema: `{"properties":{"a":"str"}}`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := jsonmerge.New(decodeObject(t, tc.schema))
			require.Error(t, err, "New should fail")

			var se jsonmerge.SchemaError
			require.True(t, errors.As(err, &se), "New should return a SchemaError")
		})
	}
}

func TestMergeSequence(t *testing.T) {
	t.Parallel()

	schema := decodeObject(t, `{
		"properties": {
			"builds": {
				"mergeStrategy": "arrayMergeById",
				"mergeOptions":  {"idRef": "name"},
				"items": {"properties": {"history": {"mergeStrategy": "version", "mergeOptions": {"limit": 2}}}}
			}
		}
	}`)
	m, err := jsonmerge.New(schema)
	require.NoError(t, err, "New should not fail")

	heads := []string{
		`{"builds":[{"name":"linux","history":"pass"}]}`,
		`{"builds":[{"name":"linux","history":"fail"},{"name":"mac","history":"pass"}]}`,
		`{"builds":[{"name":"linux","history":"fail"}]}`,
		`{"builds":[{"name":"linux","history":"pass"}]}`,
	}

	var doc any
	for _, h := range heads {
		doc, err = m.Merge(doc, decode(t, h))
		require.NoError(t, err, "Merge should not fail")
	}

	want := decode(t, `{"builds":[
		{"name":"linux","history":[{"value":"fail"},{"value":"pass"}]},
		{"name":"mac","history":[{"value":"pass"}]}
	]}`)
	assert.Equal(t, want, doc, "Unexpected merged document")
}

func TestMergeWithMeta(t *testing.T) {
	t.Parallel()

	m, err := jsonmerge.New(decodeObject(t, `{"mergeStrategy":"version"}`))
	require.NoError(t, err, "New should not fail")

	got, err := m.MergeWithMeta(nil, "v1", map[string]any{"revision": "abc"})
	require.NoError(t, err, "MergeWithMeta should not fail")
	got, err = m.MergeWithMeta(got, "v2", map[string]any{"revision": "def"})
	require.NoError(t, err, "MergeWithMeta should not fail")

	want := []any{
		map[string]any{"value": "v1", "revision": "abc"},
		map[string]any{"value": "v2", "revision": "def"},
	}
	assert.Equal(t, want, got, "Unexpected version entries")
}

func TestExternalDocuments(t *testing.T) {
	t.Parallel()

	ext := decodeObject(t, `{"defs":{"list":{"$ref":"#/defs/inner"},"inner":{"mergeStrategy":"append"}}}`)
	m, err := jsonmerge.New(
		decodeObject(t, `{"properties":{"a":{"$ref":"common.json#/defs/list"}}}`),
		jsonmerge.WithDocument("common.json", ext),
	)
	require.NoError(t, err, "New should not fail")

	got, err := m.Merge(decode(t, `{"a":[1]}`), decode(t, `{"a":[2]}`))
	require.NoError(t, err, "Merge should not fail")
	assert.Equal(t, decode(t, `{"a":[1,2]}`), got, "Unexpected merge result")
}

type sumStrategy struct{}

func (sumStrategy) Merge(base any, hasBase bool, head any, options map[string]any) (any, error) {
	h, ok := head.(float64)
	if !ok {
		return nil, errors.New("head is not a number")
	}
	if !hasBase {
		return h, nil
	}
	return base.(float64) + h, nil
}

func (sumStrategy) OutputSchema(schema map[string]any, options map[string]any) (map[string]any, error) {
	schema["type"] = "number"
	return schema, nil
}

func TestCustomStrategy(t *testing.T) {
	t.Parallel()

	m, err := jsonmerge.New(
		decodeObject(t, `{"properties":{"count":{"mergeStrategy":"sum"}}}`),
		jsonmerge.WithStrategy("sum", sumStrategy{}),
	)
	require.NoError(t, err, "New should not fail")

	got, err := m.Merge(decode(t, `{"count":2}`), decode(t, `{"count":3}`))
	require.NoError(t, err, "Merge should not fail")
	assert.Equal(t, decode(t, `{"count":5}`), got, "Unexpected merge result")

	_, err = m.Merge(decode(t, `{"count":2}`), decode(t, `{"count":"x"}`))
	require.Error(t, err, "Merge should fail when the custom strategy fails")

	s, err := m.GetSchema(nil)
	require.NoError(t, err, "GetSchema should not fail")
	assert.Equal(t, decode(t, `{"properties":{"count":{"type":"number"}}}`), any(s), "Unexpected output schema")
}

func TestGetSchema(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		schema     string
		metaSchema string

		want    string
		wantErr bool
	}{
		"Annotations are removed": {
			schema: `{"type":"object","properties":{"a":{"type":"array","mergeStrategy":"append"}}}`,
			want:   `{"type":"object","properties":{"a":{"type":"array"}}}`,
		},
		"Version wraps the value": {
			schema: `{"type":"string","mergeStrategy":"version"}`,
			want:   `{"type":"array","items":{"type":"object","properties":{"value":{"type":"string"}}}}`,
		},
		"Version limit becomes maxItems": {
			schema: `{"mergeStrategy":"version","mergeOptions":{"limit":3}}`,
			want:   `{"type":"array","maxItems":3,"items":{"type":"object","properties":{"value":{}}}}`,
		},
		"Version adds metadata properties": {
			schema:     `{"mergeStrategy":"version"}`,
			metaSchema: `{"properties":{"revision":{"type":"string"}}}`,
			want:       `{"type":"array","items":{"type":"object","properties":{"value":{},"revision":{"type":"string"}}}}`,
		},
		"ArrayMergeById walks items": {
			schema: `{"mergeStrategy":"arrayMergeById","items":{"properties":{"v":{"mergeStrategy":"version"}}}}`,
			want:   `{"items":{"properties":{"v":{"type":"array","items":{"type":"object","properties":{"value":{}}}}}}}`,
		},
		"ArrayMergeByIndex walks items": {
			schema: `{"mergeStrategy":"arrayMergeByIndex","items":{"mergeStrategy":"version"}}`,
			want:   `{"items":{"type":"array","items":{"type":"object","properties":{"value":{}}}}}`,
		},
		"Discard removes its annotations": {
			schema: `{"type":"string","mergeStrategy":"discard","mergeOptions":{"keepIfUndef":true}}`,
			want:   `{"type":"string"}`,
		},
		"Overwrite does not descend": {
			schema: `{"mergeStrategy":"overwrite","properties":{"v":{"mergeStrategy":"version"}}}`,
			want:   `{"properties":{"v":{"mergeStrategy":"version"}}}`,
		},
		"Definitions are rewritten and refs kept": {
			schema: `{"properties":{"a":{"$ref":"#/definitions/v"}},"definitions":{"v":{"mergeStrategy":"version"}}}`,
			want:   `{"properties":{"a":{"$ref":"#/definitions/v"}},"definitions":{"v":{"type":"array","items":{"type":"object","properties":{"value":{}}}}}}`,
		},

		"Error on unknown strategy in definitions": {
			schema:  `{"definitions":{"v":{"mergeStrategy":"nope"}}}`,
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := jsonmerge.New(decodeObject(t, tc.schema))
			require.NoError(t, err, "New should not fail")

			got, err := m.GetSchema(decodeObject(t, tc.metaSchema))
			if tc.wantErr {
				require.Error(t, err, "GetSchema should fail")
				return
			}
			require.NoError(t, err, "GetSchema should not fail")

			// Round trip through JSON so integer options compare as numbers.
			b, err := json.Marshal(got)
			require.NoError(t, err, "Output schema should be serializable")
			assert.JSONEq(t, tc.want, string(b), "Unexpected output schema")
		})
	}
}
