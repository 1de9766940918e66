//go:build !windows

package symlink

import (
	"errors"
	"os"
)

func makeLink(target, link string) error {
	return os.Symlink(target, link)
}

func isLink(path string) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeSymlink != 0
}

func removeLink(path string) error {
	return os.Remove(path)
}

func removeTreeFallback(string) error {
	return errors.New("no fallback removal")
}

func longPath(path string) string {
	return path
}
