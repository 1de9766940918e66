package jsonmerge

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Schema is a compiled schema node. Each node carries its parsed strategy.
type Schema struct {
	raw  map[string]any
	path string
	// doc is the uri of the document the node belongs to. Empty for the root schema.
	doc string

	ref string

	strategy    Strategy
	hasStrategy bool
	options     map[string]any

	properties map[string]*Schema
	patterns   []patternSchema
	additional *Schema
	items      *Schema
	itemsList  bool
}

type patternSchema struct {
	re     *regexp.Regexp
	schema *Schema
}

var emptySchema = &Schema{raw: map[string]any{}}

// compile builds the node for raw, without following references.
func (m *Merger) compile(raw any, doc, path string) (*Schema, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		switch raw.(type) {
		case nil, bool:
			return emptySchema, nil
		}
		return nil, SchemaError{Msg: fmt.Sprintf("schema must be an object, got %T", raw), Path: path}
	}

	s := &Schema{raw: obj, path: path, doc: doc}

	if ref, ok := obj["$ref"]; ok {
		r, ok := ref.(string)
		if !ok {
			return nil, SchemaError{Msg: "$ref must be a string", Path: path}
		}
		s.ref = r
		return s, nil
	}

	if name, ok := obj["mergeStrategy"]; ok {
		n, ok := name.(string)
		if !ok {
			return nil, SchemaError{Msg: "mergeStrategy must be a string", Path: path}
		}
		strategy, err := m.lookupStrategy(n, path)
		if err != nil {
			return nil, err
		}
		s.strategy = strategy
		s.hasStrategy = true
	}

	if opts, ok := obj["mergeOptions"]; ok {
		o, ok := opts.(map[string]any)
		if !ok {
			return nil, SchemaError{Msg: "mergeOptions must be an object", Path: path}
		}
		s.options = o
	}

	if props, ok := obj["properties"].(map[string]any); ok {
		s.properties = make(map[string]*Schema, len(props))
		for k, v := range props {
			sub, err := m.compile(v, doc, path+"/properties/"+escapePointer(k))
			if err != nil {
				return nil, err
			}
			s.properties[k] = sub
		}
	}

	if patterns, ok := obj["patternProperties"].(map[string]any); ok {
		keys := make([]string, 0, len(patterns))
		for k := range patterns {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := patterns[k]
			re, err := regexp.Compile(k)
			if err != nil {
				return nil, SchemaError{Msg: fmt.Sprintf("invalid pattern %q: %v", k, err), Path: path}
			}
			sub, err := m.compile(v, doc, path+"/patternProperties/"+escapePointer(k))
			if err != nil {
				return nil, err
			}
			s.patterns = append(s.patterns, patternSchema{re: re, schema: sub})
		}
	}

	if add, ok := obj["additionalProperties"].(map[string]any); ok {
		sub, err := m.compile(add, doc, path+"/additionalProperties")
		if err != nil {
			return nil, err
		}
		s.additional = sub
	}

	switch items := obj["items"].(type) {
	case map[string]any:
		sub, err := m.compile(items, doc, path+"/items")
		if err != nil {
			return nil, err
		}
		s.items = sub
	case []any:
		s.itemsList = true
	}

	return s, nil
}

func (m *Merger) lookupStrategy(name, path string) (Strategy, error) {
	if kind, ok := builtinStrategies[name]; ok {
		return Strategy{Kind: kind, Name: name}, nil
	}
	if c, ok := m.custom[name]; ok {
		return Strategy{Kind: Custom, Name: name, Custom: c}, nil
	}
	return Strategy{}, SchemaError{Msg: fmt.Sprintf("unknown merge strategy %q", name), Path: path}
}

// deref follows $ref chains through the schema cache.
func (m *Merger) deref(s *Schema) (*Schema, error) {
	seen := make(map[string]bool)
	for s.ref != "" {
		if seen[s.doc+"|"+s.ref] {
			return nil, SchemaError{Msg: fmt.Sprintf("reference cycle through %q", s.ref), Path: s.path}
		}
		seen[s.doc+"|"+s.ref] = true

		next, err := m.resolveRef(s.ref, s.doc, s.path)
		if err != nil {
			return nil, err
		}
		s = next
	}
	return s, nil
}

// resolveRef returns the node designated by ref. References without a document uri are relative
// to the document holding them.
func (m *Merger) resolveRef(ref, fromDoc, from string) (*Schema, error) {
	uri, fragment, _ := strings.Cut(ref, "#")
	if uri == "" {
		uri = fromDoc
	}
	key := uri + "#" + fragment
	if s, ok := m.refs[key]; ok {
		return s, nil
	}

	doc := any(m.raw)
	if uri != "" {
		d, ok := m.documents[uri]
		if !ok {
			return nil, SchemaError{Msg: fmt.Sprintf("unresolvable reference %q", ref), Path: from}
		}
		doc = d
	}

	node, err := resolvePointer(doc, fragment)
	if err != nil {
		return nil, SchemaError{Msg: fmt.Sprintf("unresolvable reference %q: %v", ref, err), Path: from}
	}

	s, err := m.compile(node, uri, key)
	if err != nil {
		return nil, err
	}
	m.refs[key] = s
	return s, nil
}

// resolvePointer returns the node of doc designated by the JSON pointer p.
func resolvePointer(doc any, p string) (any, error) {
	if p == "" {
		return doc, nil
	}
	if !strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("pointer %q must start with /", p)
	}

	cur := doc
	for _, tok := range strings.Split(p[1:], "/") {
		tok = unescapePointer(tok)
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[tok]
			if !ok {
				return nil, fmt.Errorf("no member %q", tok)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("invalid index %q", tok)
			}
			cur = v[i]
		default:
			return nil, fmt.Errorf("cannot descend into %T with %q", cur, tok)
		}
	}
	return cur, nil
}

func escapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

func unescapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
}

// propertySchema returns the schema governing the object member key.
func (s *Schema) propertySchema(key string) *Schema {
	if sub, ok := s.properties[key]; ok {
		return sub
	}
	for _, p := range s.patterns {
		if p.re.MatchString(key) {
			return p.schema
		}
	}
	if s.additional != nil {
		return s.additional
	}
	return emptySchema
}

func (s *Schema) itemSchema() *Schema {
	if s.items != nil {
		return s.items
	}
	return emptySchema
}
