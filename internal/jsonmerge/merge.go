// Package jsonmerge merges JSON documents following mergeStrategy annotations of a JSON schema.
//
// Each schema node can carry a "mergeStrategy" keyword (overwrite, discard, append,
// arrayMergeById, arrayMergeByIndex, objectMerge, version or a registered custom strategy)
// and "mergeOptions" configuring it.
// Nodes without annotation use objectMerge for objects and overwrite for anything else.
package jsonmerge

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
)

// Merger merges documents against a compiled schema.
type Merger struct {
	raw       map[string]any
	root      *Schema
	custom    map[string]CustomStrategy
	documents map[string]any
	refs      map[string]*Schema

	log *slog.Logger
}

type options struct {
	custom    map[string]CustomStrategy
	documents map[string]any
	logger    *slog.Logger
}

// Options represents an optional function to override Merger default values.
type Options func(*options)

// WithStrategy registers a custom strategy under name.
func WithStrategy(name string, s CustomStrategy) Options {
	return func(o *options) {
		o.custom[name] = s
	}
}

// WithDocument registers an external schema document that $ref can point to by uri.
func WithDocument(uri string, schema map[string]any) Options {
	return func(o *options) {
		o.documents[uri] = schema
	}
}

// WithLogger sets the logger used by the merger.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New compiles schema and returns a Merger for it.
func New(schema map[string]any, args ...Options) (*Merger, error) {
	opts := options{
		custom:    make(map[string]CustomStrategy),
		documents: make(map[string]any),
		logger:    slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	if schema == nil {
		schema = map[string]any{}
	}

	m := &Merger{
		raw:       schema,
		custom:    opts.custom,
		documents: opts.documents,
		refs:      make(map[string]*Schema),
		log:       opts.logger,
	}

	root, err := m.compile(schema, "", "")
	if err != nil {
		return nil, err
	}
	m.root = root
	return m, nil
}

// Merge merges head into base and returns the result. A nil base means there is no base yet.
// Neither base nor head are modified.
func (m *Merger) Merge(base, head any) (any, error) {
	return m.MergeWithMeta(base, head, nil)
}

// MergeWithMeta is Merge where version strategies record meta next to each stored value.
func (m *Merger) MergeWithMeta(base, head any, meta map[string]any) (any, error) {
	out, err := m.descend(m.root, base, base != nil, head, "", meta)
	if err != nil || out == undefined {
		return nil, err
	}
	return out, nil
}

// undefinedValue marks a node left without value, so that it is omitted from its parent.
type undefinedValue struct{}

var undefined any = undefinedValue{}

func (m *Merger) descend(s *Schema, base any, hasBase bool, head any, path string, meta map[string]any) (any, error) {
	s, err := m.deref(s)
	if err != nil {
		return nil, err
	}

	strategy := s.strategy
	if !s.hasStrategy {
		strategy = Strategy{Kind: Overwrite, Name: "overwrite"}
		if _, ok := head.(map[string]any); ok {
			strategy = Strategy{Kind: ObjectMerge, Name: "objectMerge"}
		}
	}

	m.log.Debug("Merging node", "path", path, "strategy", strategy.Name)

	switch strategy.Kind {
	case Overwrite:
		return deepCopy(head), nil
	case Discard:
		return m.mergeDiscard(s, base, hasBase, head)
	case Append:
		return m.mergeAppend(base, hasBase, head, path)
	case ArrayMergeByID:
		return m.mergeArrayByID(s, base, hasBase, head, path, meta)
	case ArrayMergeByIndex:
		return m.mergeArrayByIndex(s, base, hasBase, head, path, meta)
	case ObjectMerge:
		return m.mergeObject(s, base, hasBase, head, path, meta)
	case Version:
		return m.mergeVersion(s, base, hasBase, head, path, meta)
	case Custom:
		return strategy.Custom.Merge(deepCopy(base), hasBase, deepCopy(head), s.options)
	default:
		return nil, SchemaError{Msg: fmt.Sprintf("unsupported strategy %q", strategy.Name), Path: s.path}
	}
}

func (m *Merger) mergeDiscard(s *Schema, base any, hasBase bool, head any) (any, error) {
	opts, err := s.discardOptions()
	if err != nil {
		return nil, err
	}
	switch {
	case hasBase:
		return deepCopy(base), nil
	case opts.KeepIfUndef:
		return deepCopy(head), nil
	}
	return undefined, nil
}

func (m *Merger) mergeAppend(base any, hasBase bool, head any, path string) (any, error) {
	h, ok := head.([]any)
	if !ok {
		return nil, HeadInstanceError{Msg: "head for an append merge strategy is not an array", Path: path}
	}

	var b []any
	if hasBase {
		if b, ok = base.([]any); !ok {
			return nil, BaseInstanceError{Msg: "base for an append merge strategy is not an array", Path: path}
		}
	}

	out := make([]any, 0, len(b)+len(h))
	for _, v := range b {
		out = append(out, deepCopy(v))
	}
	for _, v := range h {
		out = append(out, deepCopy(v))
	}
	return out, nil
}

func (m *Merger) mergeArrayByID(s *Schema, base any, hasBase bool, head any, path string, meta map[string]any) (any, error) {
	if s.itemsList {
		return nil, SchemaError{Msg: "arrayMergeById requires a single items schema, not an array", Path: s.path}
	}
	opts, err := s.arrayMergeByIDOptions()
	if err != nil {
		return nil, err
	}

	h, ok := head.([]any)
	if !ok {
		return nil, HeadInstanceError{Msg: "head for an arrayMergeById merge strategy is not an array", Path: path}
	}

	var out []any
	if hasBase {
		b, ok := base.([]any)
		if !ok {
			return nil, BaseInstanceError{Msg: "base for an arrayMergeById merge strategy is not an array", Path: path}
		}
		out = make([]any, 0, len(b))
		seen := make(map[string]int)
		for i, item := range b {
			out = append(out, deepCopy(item))
			id, ok := itemID(item, opts.IDRef)
			if !ok {
				continue
			}
			k := idKey(id)
			if j, dup := seen[k]; dup {
				return nil, BaseInstanceError{Msg: fmt.Sprintf("id %v is not unique in base (items %d and %d)", id, j, i), Path: path}
			}
			seen[k] = i
		}
	}

	for i, item := range h {
		id, ok := itemID(item, opts.IDRef)
		if !ok {
			m.log.Debug("Ignoring head item without id", "path", path, "index", i)
			continue
		}
		if opts.IgnoreID != nil && reflect.DeepEqual(id, opts.IgnoreID) {
			continue
		}

		itemPath := path + "/" + strconv.Itoa(i)
		matched := false
		for j, b := range out {
			bid, ok := itemID(b, opts.IDRef)
			if !ok || !reflect.DeepEqual(bid, id) {
				continue
			}
			merged, err := m.descend(s.itemSchema(), b, true, item, itemPath, meta)
			if err != nil {
				return nil, err
			}
			out[j] = merged
			matched = true
		}
		if matched {
			continue
		}

		merged, err := m.descend(s.itemSchema(), nil, false, item, itemPath, meta)
		if err != nil {
			return nil, err
		}
		if merged != undefined {
			out = append(out, merged)
		}
	}

	if out == nil {
		out = []any{}
	}
	return out, nil
}

func (m *Merger) mergeArrayByIndex(s *Schema, base any, hasBase bool, head any, path string, meta map[string]any) (any, error) {
	if s.itemsList {
		return nil, SchemaError{Msg: "arrayMergeByIndex requires a single items schema, not an array", Path: s.path}
	}

	h, ok := head.([]any)
	if !ok {
		return nil, HeadInstanceError{Msg: "head for an arrayMergeByIndex merge strategy is not an array", Path: path}
	}

	var out []any
	if hasBase {
		b, ok := base.([]any)
		if !ok {
			return nil, BaseInstanceError{Msg: "base for an arrayMergeByIndex merge strategy is not an array", Path: path}
		}
		out = deepCopy(b).([]any)
	}

	for i, item := range h {
		has := i < len(out)
		var b any
		if has {
			b = out[i]
		}
		merged, err := m.descend(s.itemSchema(), b, has, item, path+"/"+strconv.Itoa(i), meta)
		if err != nil {
			return nil, err
		}
		switch {
		case merged == undefined:
			// Only reachable past the end of base, where there is nothing to keep.
		case has:
			out[i] = merged
		default:
			out = append(out, merged)
		}
	}

	if out == nil {
		out = []any{}
	}
	return out, nil
}

func (m *Merger) mergeObject(s *Schema, base any, hasBase bool, head any, path string, meta map[string]any) (any, error) {
	h, ok := head.(map[string]any)
	if !ok {
		return nil, HeadInstanceError{Msg: "head for an objectMerge merge strategy is not an object", Path: path}
	}

	out := make(map[string]any)
	if hasBase {
		b, ok := base.(map[string]any)
		if !ok {
			return nil, BaseInstanceError{Msg: "base for an objectMerge merge strategy is not an object", Path: path}
		}
		for k, v := range b {
			out[k] = deepCopy(v)
		}
	}

	for k, v := range h {
		bv, has := out[k]
		merged, err := m.descend(s.propertySchema(k), bv, has, v, path+"/"+escapePointer(k), meta)
		if err != nil {
			return nil, err
		}
		if merged == undefined {
			continue
		}
		out[k] = merged
	}
	return out, nil
}

func (m *Merger) mergeVersion(s *Schema, base any, hasBase bool, head any, path string, meta map[string]any) (any, error) {
	opts, err := s.versionOptions()
	if err != nil {
		return nil, err
	}

	var out []any
	if hasBase {
		b, ok := base.([]any)
		if !ok {
			return nil, BaseInstanceError{Msg: "base for a version merge strategy is not an array", Path: path}
		}
		out = deepCopy(b).([]any)
	}

	ignoreDups := opts.IgnoreDups == nil || *opts.IgnoreDups
	if ignoreDups && len(out) > 0 {
		last, ok := out[len(out)-1].(map[string]any)
		if !ok {
			return nil, BaseInstanceError{Msg: "version entries must be objects", Path: path}
		}
		if reflect.DeepEqual(last["value"], head) {
			return out, nil
		}
	}

	entry := map[string]any{}
	for k, v := range meta {
		entry[k] = deepCopy(v)
	}
	entry["value"] = deepCopy(head)
	out = append(out, entry)

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out, nil
}

// itemID returns the identifier of an array item designated by idRef.
// idRef is either a JSON pointer or a plain member name.
func itemID(item any, idRef string) (any, bool) {
	p := idRef
	if p == "" || p[0] != '/' {
		p = "/" + escapePointer(idRef)
	}
	id, err := resolvePointer(item, p)
	if err != nil {
		return nil, false
	}
	return id, true
}

func idKey(id any) string {
	return fmt.Sprintf("%T:%v", id, id)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
