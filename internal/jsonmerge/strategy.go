package jsonmerge

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Kind is the variant of a merge strategy.
type Kind int

const (
	// Overwrite replaces base with head.
	Overwrite Kind = iota
	// Discard keeps base and ignores head.
	Discard
	// Append concatenates the head array after the base array.
	Append
	// ArrayMergeByID matches array elements by identifier and merges pairs.
	ArrayMergeByID
	// ArrayMergeByIndex merges array elements found at the same position.
	ArrayMergeByIndex
	// ObjectMerge recurses into object properties.
	ObjectMerge
	// Version keeps the history of head values.
	Version
	// Custom delegates to a user supplied implementation.
	Custom
)

var builtinStrategies = map[string]Kind{
	"overwrite":         Overwrite,
	"discard":           Discard,
	"append":            Append,
	"arrayMergeById":    ArrayMergeByID,
	"arrayMergeByIndex": ArrayMergeByIndex,
	"objectMerge":       ObjectMerge,
	"version":           Version,
}

func (k Kind) String() string {
	for name, kind := range builtinStrategies {
		if kind == k {
			return name
		}
	}
	return "custom"
}

// CustomStrategy is implemented by strategies registered with WithStrategy.
type CustomStrategy interface {
	// Merge returns the merge of head into base. hasBase is false when there is no base yet.
	Merge(base any, hasBase bool, head any, options map[string]any) (any, error)
	// OutputSchema returns the schema of merged documents for a node using this strategy.
	// The received schema has its merge annotations removed already.
	OutputSchema(schema map[string]any, options map[string]any) (map[string]any, error)
}

// Strategy is a parsed mergeStrategy annotation.
type Strategy struct {
	Kind   Kind
	Name   string
	Custom CustomStrategy
}

type arrayMergeByIDOptions struct {
	IDRef    string `mapstructure:"idRef"`
	IgnoreID any    `mapstructure:"ignoreId"`
}

type discardOptions struct {
	KeepIfUndef bool `mapstructure:"keepIfUndef"`
}

type versionOptions struct {
	Limit          int            `mapstructure:"limit"`
	IgnoreDups     *bool          `mapstructure:"ignoreDups"`
	MetadataSchema map[string]any `mapstructure:"metadataSchema"`
}

// decodeOptions strictly decodes mergeOptions into the typed options of a strategy.
func decodeOptions(raw map[string]any, out any, path string) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return SchemaError{Msg: fmt.Sprintf("invalid mergeOptions: %v", err), Path: path}
	}
	return nil
}

func (s *Schema) arrayMergeByIDOptions() (arrayMergeByIDOptions, error) {
	opts := arrayMergeByIDOptions{IDRef: "id"}
	if err := decodeOptions(s.options, &opts, s.path); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Schema) discardOptions() (discardOptions, error) {
	var opts discardOptions
	err := decodeOptions(s.options, &opts, s.path)
	return opts, err
}

func (s *Schema) versionOptions() (versionOptions, error) {
	var opts versionOptions
	if err := decodeOptions(s.options, &opts, s.path); err != nil {
		return opts, err
	}
	if opts.Limit < 0 {
		return opts, SchemaError{Msg: "version limit must be positive", Path: s.path}
	}
	return opts, nil
}
