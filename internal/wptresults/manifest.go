package wptresults

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// TestType is the kind of a WPT test, as named in its manifest.
type TestType string

// Test types whose results the processor knows how to report.
const (
	TypeTestharness TestType = "testharness"
	TypeReftest     TestType = "reftest"
	TypePrintRef    TestType = "print-reftest"
	TypeWdspec      TestType = "wdspec"
	TypeCrashtest   TestType = "crashtest"
)

// hasTextOutput reports whether results of the type are rendered as text.
func (t TestType) hasTextOutput() bool {
	return t == TypeTestharness || t == TypeWdspec
}

func (t TestType) isReftest() bool {
	return t == TypeReftest || t == TypePrintRef
}

// Reference is a page a reftest is compared to.
type Reference struct {
	URL      string
	Relation string
}

// ManifestItem describes one test ID.
type ManifestItem struct {
	Type TestType
	// Path is the file defining the test, relative to the manifest root and prefixed by
	// the URL base.
	Path string
	Refs []Reference
}

// Manifest maps test IDs to their items.
type Manifest map[string]ManifestItem

// LoadManifest decodes a MANIFEST.json whose tests are served under urlBase.
func LoadManifest(r io.Reader, urlBase string) (Manifest, error) {
	var raw struct {
		Items map[string]json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid manifest: %v", err)
	}

	if !strings.HasSuffix(urlBase, "/") {
		urlBase += "/"
	}
	m := make(Manifest)
	for typ, tree := range raw.Items {
		if err := m.addTree(TestType(typ), urlBase, "", tree); err != nil {
			return nil, fmt.Errorf("invalid manifest %s items: %v", typ, err)
		}
	}
	return m, nil
}

// addTree walks a manifest directory node. Directories are objects, files are arrays
// of [hash, test...].
func (m Manifest) addTree(typ TestType, urlBase, dir string, raw json.RawMessage) error {
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err == nil {
		for name, child := range children {
			if err := m.addTree(typ, urlBase, path.Join(dir, name), child); err != nil {
				return err
			}
		}
		return nil
	}

	var entry []json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("%s: %v", dir, err)
	}
	if len(entry) < 2 {
		return fmt.Errorf("%s: no test", dir)
	}
	for _, t := range entry[1:] {
		var fields []json.RawMessage
		if err := json.Unmarshal(t, &fields); err != nil || len(fields) == 0 {
			return fmt.Errorf("%s: invalid test %s", dir, t)
		}
		var url *string
		if err := json.Unmarshal(fields[0], &url); err != nil {
			return fmt.Errorf("%s: invalid url: %v", dir, err)
		}
		id := urlBase + dir
		if url != nil {
			id = urlBase + strings.TrimPrefix(*url, "/")
		}

		item := ManifestItem{Type: typ, Path: urlBase + dir}
		if typ.isReftest() && len(fields) > 1 {
			var refs [][2]string
			if err := json.Unmarshal(fields[1], &refs); err != nil {
				return fmt.Errorf("%s: invalid references: %v", dir, err)
			}
			for _, r := range refs {
				item.Refs = append(item.Refs, Reference{URL: r[0], Relation: r[1]})
			}
		}
		m[id] = item
	}
	return nil
}

// Merge adds the items of other to m.
func (m Manifest) Merge(other Manifest) {
	for id, item := range other {
		m[id] = item
	}
}

// LoadWebTestsManifest loads and merges the manifests of the WPT roots of a web tests
// directory. wpt_internal is optional.
func LoadWebTestsManifest(webTestsDir string) (Manifest, error) {
	manifest := make(Manifest)
	for _, root := range []struct {
		dir      string
		urlBase  string
		optional bool
	}{
		{"external/wpt", "/", false},
		{"wpt_internal", "/wpt_internal", true},
	} {
		p := filepath.Join(webTestsDir, filepath.FromSlash(root.dir), "MANIFEST.json")
		f, err := os.Open(p)
		if errors.Is(err, os.ErrNotExist) && root.optional {
			continue
		}
		if err != nil {
			return nil, err
		}
		m, err := LoadManifest(f, root.urlBase)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("could not load %s: %v", p, err)
		}
		manifest.Merge(m)
	}
	return manifest, nil
}
