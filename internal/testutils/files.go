package testutils

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteTree creates the files described by tree under root.
// Keys are slash separated relative paths. A value starting with "-> " creates a symlink to the rest
// of the value, a key ending with "/" creates an empty directory.
func WriteTree(t *testing.T, root string, tree map[string]string) {
	t.Helper()

	for p, content := range tree {
		dst := filepath.Join(root, filepath.FromSlash(p))
		if strings.HasSuffix(p, "/") {
			if err := os.MkdirAll(dst, 0750); err != nil {
				t.Fatalf("Setup: could not create directory %s: %v", dst, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
			t.Fatalf("Setup: could not create parent of %s: %v", dst, err)
		}
		if target, ok := strings.CutPrefix(content, "-> "); ok {
			if err := os.Symlink(filepath.FromSlash(target), dst); err != nil {
				t.Fatalf("Setup: could not create symlink %s: %v", dst, err)
			}
			continue
		}
		if err := os.WriteFile(dst, []byte(content), 0600); err != nil {
			t.Fatalf("Setup: could not write %s: %v", dst, err)
		}
	}
}

// GetDirContents returns the contents of a directory as a map of file paths to file contents.
// The contents are read as strings. Symlinks are not followed: they are reported as "-> target".
// The maxDepth parameter limits the depth of the directory tree to read.
func GetDirContents(t *testing.T, dir string, maxDepth uint) (map[string]string, error) {
	t.Helper()

	files := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == dir {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		depth := uint(len(strings.Split(filepath.ToSlash(relPath), "/")))
		if depth > maxDepth {
			return fmt.Errorf("max depth %d exceeded at %s", maxDepth, relPath)
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			files[filepath.ToSlash(relPath)] = "-> " + filepath.ToSlash(target)
		case !d.IsDir():
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			// Normalize content between Windows and Linux
			content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
			files[filepath.ToSlash(relPath)] = string(content)
		}

		return nil
	})

	return files, err
}
