package jsonmerge

import "fmt"

// HeadInstanceError is returned when the head document does not fit the schema.
type HeadInstanceError struct {
	Msg  string
	Path string
}

func (e HeadInstanceError) Error() string {
	return fmt.Sprintf("head instance error at %q: %s", e.Path, e.Msg)
}

// BaseInstanceError is returned when the accumulated base document is inconsistent.
type BaseInstanceError struct {
	Msg  string
	Path string
}

func (e BaseInstanceError) Error() string {
	return fmt.Sprintf("base instance error at %q: %s", e.Path, e.Msg)
}

// SchemaError is returned when merge annotations in the schema are inconsistent.
type SchemaError struct {
	Msg  string
	Path string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("schema error at %q: %s", e.Path, e.Msg)
}
