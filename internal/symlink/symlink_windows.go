package symlink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/browser-infra/buildtools/internal/cmdutils"
	"golang.org/x/sys/windows"
)

// Lets developer mode users create links without elevation.
const allowUnprivilegedCreate = 0x2

func makeLink(target, link string) error {
	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(link), target)
	}
	fi, statErr := os.Stat(resolved)
	isDir := statErr == nil && fi.IsDir()

	linkp, err := windows.UTF16PtrFromString(longPath(link))
	if err != nil {
		return err
	}
	targetp, err := windows.UTF16PtrFromString(filepath.FromSlash(target))
	if err != nil {
		return err
	}

	var flags uint32 = allowUnprivilegedCreate
	if isDir {
		flags |= windows.SYMBOLIC_LINK_FLAG_DIRECTORY
	}
	err = windows.CreateSymbolicLink(linkp, targetp, flags)
	if err == nil || !isDir {
		return err
	}

	// Junctions need no privilege but only take absolute targets.
	abs, aerr := filepath.Abs(resolved)
	if aerr != nil {
		return errors.Join(err, aerr)
	}
	if _, jerr := cmdutils.Exec(context.Background(), cmdutils.Command{
		Name: "cmd",
		Args: []string{"/c", "mklink", "/J", link, abs},
	}); jerr != nil {
		return errors.Join(err, jerr)
	}
	return nil
}

func isLink(path string) bool {
	p, err := windows.UTF16PtrFromString(longPath(path))
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false
	}
	return attrs&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0
}

func removeLink(path string) error {
	p, err := windows.UTF16PtrFromString(longPath(path))
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	if attrs&windows.FILE_ATTRIBUTE_DIRECTORY != 0 {
		return windows.RemoveDirectory(p)
	}
	return windows.DeleteFile(p)
}

func removeTreeFallback(path string) error {
	_, err := cmdutils.Exec(context.Background(), cmdutils.Command{
		Name: "cmd",
		Args: []string{"/c", "rd", "/s", "/q", path},
	})
	return err
}

// longPath lifts the MAX_PATH limit on absolute paths.
func longPath(path string) string {
	if strings.HasPrefix(path, `\\`) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return `\\?\` + abs
}
