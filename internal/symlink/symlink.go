// Package symlink creates, inspects and removes symbolic links the same way on every
// platform. On Windows, links are reparse points, with junctions as a fallback for
// directories when symbolic links can not be created.
package symlink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/browser-infra/buildtools/internal/constants"
)

// ErrNotLink is returned when a link operation is applied to something else.
var ErrNotLink = errors.New("not a symbolic link")

// Make creates link pointing to target. Missing parents of link are created and an
// existing entry at link is removed first.
func Make(target, link string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0750); err != nil {
		return fmt.Errorf("could not create parent directory of %s: %v", link, err)
	}
	if _, err := os.Lstat(link); err == nil {
		if err := RemoveAll(link); err != nil {
			return err
		}
	}
	if err := makeLink(target, link); err != nil {
		return fmt.Errorf("could not link %s to %s: %v", link, target, err)
	}
	return nil
}

// IsSymlink reports whether path is a symbolic link or a reparse point.
func IsSymlink(path string) bool {
	return isLink(path)
}

// Read returns the target recorded in the link at path. ok is false when path is not
// a link.
func Read(path string) (target string, ok bool) {
	if !isLink(path) {
		return "", false
	}
	target, err := os.Readlink(longPath(path))
	if err != nil {
		return "", false
	}
	return target, true
}

// Unlink removes the link at path, never its target.
func Unlink(path string) error {
	if !isLink(path) {
		return fmt.Errorf("could not unlink %s: %w", path, ErrNotLink)
	}
	return removeLink(path)
}

// RemoveAll removes path and its content without following links. Removal is retried
// while files are still being released by other processes.
func RemoveAll(path string) (err error) {
	if isLink(path) {
		return removeLink(path)
	}
	for i := 0; i < constants.RemoveRetries; i++ {
		if i > 0 {
			time.Sleep(constants.RemoveRetryDelay)
		}
		if err = os.RemoveAll(longPath(path)); err == nil {
			return nil
		}
	}
	if ferr := removeTreeFallback(path); ferr == nil {
		return nil
	}
	return fmt.Errorf("could not remove %s: %v", path, err)
}

// Walk walks the tree rooted at root calling fn for each entry. Links are reported to
// fn and, unless followLinks is set, not descended into. When following links, a link
// to one of the directories being walked is reported but not descended into.
func Walk(root string, followLinks bool, fn fs.WalkDirFunc) error {
	fi, err := os.Lstat(root)
	if err != nil {
		return fn(root, nil, err)
	}
	err = walk(root, fs.FileInfoToDirEntry(fi), followLinks, make(map[string]bool), fn)
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func walk(path string, d fs.DirEntry, followLinks bool, ancestors map[string]bool, fn fs.WalkDirFunc) error {
	if err := fn(path, d, nil); err != nil {
		if errors.Is(err, fs.SkipDir) && d.IsDir() {
			return nil
		}
		return err
	}

	if isLink(path) {
		if !followLinks {
			return nil
		}
		if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
			return nil
		}
	} else if !d.IsDir() {
		return nil
	}

	// Only directories being walked are tracked: a cycle stops at its first repeat while
	// other aliases of a directory are walked again.
	if real, err := filepath.EvalSymlinks(path); err == nil {
		if ancestors[real] {
			return nil
		}
		ancestors[real] = true
		defer delete(ancestors, real)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fn(path, d, err)
	}
	for _, e := range entries {
		err := walk(filepath.Join(path, e.Name()), e, followLinks, ancestors, fn)
		if errors.Is(err, fs.SkipDir) {
			// Skipping from a file skips the rest of its directory.
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
