package fileutils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ParseJSON decodes the single JSON document of r into v.
// The whole input is read first, so trailing data after a valid document is an error.
func ParseJSON(r io.Reader, v any) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("could not read JSON input: %v", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("could not parse JSON: %v", err)
	}
	return nil
}

// ParseJSONFile is ParseJSON on the content of path. "-" reads stdin instead.
func ParseJSONFile(path string, stdin io.Reader, v any) error {
	if path == "-" {
		return ParseJSON(stdin, v)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ParseJSON(f, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
