package signing

import (
	"fmt"
	"os"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"howett.net/plist"
)

func readPlist(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v map[string]any
	if _, err := plist.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("could not parse property list %s: %v", path, err)
	}
	return v, nil
}

// writePlist writes v as an XML property list.
func writePlist(path string, v any) error {
	data, err := plist.MarshalIndent(v, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("could not encode property list %s: %v", path, err)
	}
	return fileutils.AtomicWrite(path, data)
}
