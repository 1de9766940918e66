package symlink_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/browser-infra/buildtools/internal/symlink"
	"github.com/browser-infra/buildtools/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		existing map[string]string
		target   string
		link     string

		wantContent string
	}{
		"Link to a file":                   {target: "src/file", link: "out/link", wantContent: "content"},
		"Link to a directory":              {target: "src/dir", link: "out/link"},
		"Missing parents are created":      {target: "src/file", link: "out/a/b/c/link", wantContent: "content"},
		"Existing file is replaced":        {existing: map[string]string{"out/link": "old"}, target: "src/file", link: "out/link", wantContent: "content"},
		"Existing directory is replaced":   {existing: map[string]string{"out/link/inner": "old"}, target: "src/file", link: "out/link", wantContent: "content"},
		"Existing link is replaced":        {existing: map[string]string{"out/link": "-> elsewhere"}, target: "src/file", link: "out/link", wantContent: "content"},
		"Link to a missing target is kept": {target: "src/missing", link: "out/link"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if !testutils.IsUnix() {
				t.Skip("Setup links require symlink privileges on Windows")
			}

			root := t.TempDir()
			testutils.WriteTree(t, root, map[string]string{"src/file": "content", "src/dir/inner": "inner"})
			testutils.WriteTree(t, root, tc.existing)

			target := filepath.Join(root, filepath.FromSlash(tc.target))
			link := filepath.Join(root, filepath.FromSlash(tc.link))
			require.NoError(t, symlink.Make(target, link), "Make should not fail")

			require.True(t, symlink.IsSymlink(link), "Link should be a symlink")
			got, ok := symlink.Read(link)
			require.True(t, ok, "Link should be readable")
			assert.Equal(t, target, got, "Link should point to its target")

			if tc.wantContent != "" {
				content, err := os.ReadFile(link)
				require.NoError(t, err, "Link should be readable through")
				assert.Equal(t, tc.wantContent, string(content), "Unexpected content through the link")
			}
		})
	}
}

func TestRead(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutils.WriteTree(t, root, map[string]string{"file": "content", "dir/": ""})

	tests := map[string]struct {
		path string
	}{
		"Regular file is not a link": {path: "file"},
		"Directory is not a link":    {path: "dir"},
		"Missing path is not a link": {path: "missing"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := filepath.Join(root, tc.path)
			assert.False(t, symlink.IsSymlink(p), "IsSymlink should be false")
			_, ok := symlink.Read(p)
			assert.False(t, ok, "Read should report no link")
			require.ErrorIs(t, symlink.Unlink(p), symlink.ErrNotLink, "Unlink should refuse non links")
		})
	}
}

func TestUnlinkKeepsTarget(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutils.WriteTree(t, root, map[string]string{"dir/file": "content"})
	link := filepath.Join(root, "link")
	require.NoError(t, symlink.Make(filepath.Join(root, "dir"), link), "Setup: Make should not fail")

	require.NoError(t, symlink.Unlink(link), "Unlink should not fail")

	assert.NoFileExists(t, link, "Link should be removed")
	assert.FileExists(t, filepath.Join(root, "dir", "file"), "Link target should be kept")
}

func TestRemoveAll(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		tree   map[string]string
		remove string
	}{
		"Remove a tree":                 {tree: map[string]string{"tree/a/b": "b", "tree/c": "c"}, remove: "tree"},
		"Remove a single file":          {tree: map[string]string{"file": "content"}, remove: "file"},
		"Remove a link, not its target": {tree: map[string]string{"link": "-> keep"}, remove: "link"},
		"Links inside are not followed": {tree: map[string]string{"tree/link": "-> ../keep"}, remove: "tree"},
		"Missing path is a no-op":       {remove: "missing"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if !testutils.IsUnix() {
				t.Skip("Setup links require symlink privileges on Windows")
			}

			root := t.TempDir()
			testutils.WriteTree(t, root, map[string]string{"keep/file": "kept"})
			testutils.WriteTree(t, root, tc.tree)

			require.NoError(t, symlink.RemoveAll(filepath.Join(root, tc.remove)), "RemoveAll should not fail")

			_, err := os.Lstat(filepath.Join(root, tc.remove))
			require.ErrorIs(t, err, fs.ErrNotExist, "Path should be removed")
			assert.FileExists(t, filepath.Join(root, "keep", "file"), "Link targets should be kept")
		})
	}
}

func TestWalk(t *testing.T) {
	t.Parallel()

	tree := map[string]string{
		"a/file":      "a",
		"a/sub/file":  "sub",
		"a/link":      "-> ../b",
		"a/loop":      "-> ..",
		"b/file":      "b",
		"b/file-link": "-> file",
	}

	tests := map[string]struct {
		followLinks bool

		want []string
	}{
		"Links are not descended": {want: []string{"a", "a/file", "a/link", "a/loop", "a/sub", "a/sub/file"}},
		"Links are followed until a cycle": {followLinks: true, want: []string{
			"a", "a/file", "a/link", "a/link/file", "a/link/file-link", "a/loop", "a/loop/a",
			"a/loop/b", "a/loop/b/file", "a/loop/b/file-link", "a/sub", "a/sub/file",
		}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if !testutils.IsUnix() {
				t.Skip("Setup links require symlink privileges on Windows")
			}

			root := t.TempDir()
			testutils.WriteTree(t, root, tree)

			var got []string
			err := symlink.Walk(filepath.Join(root, "a"), tc.followLinks, func(path string, _ fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				got = append(got, filepath.ToSlash(rel))
				return nil
			})
			require.NoError(t, err, "Walk should not fail")

			slices.Sort(got)
			assert.Equal(t, tc.want, got, "Unexpected walked entries")
		})
	}
}

func TestWalkAliasedDirectory(t *testing.T) {
	t.Parallel()
	if !testutils.IsUnix() {
		t.Skip("Setup links require symlink privileges on Windows")
	}

	root := t.TempDir()
	testutils.WriteTree(t, root, map[string]string{
		"a/file":           "a",
		"z/deep/er/link":   "-> ../../../a",
		"z/deep/er/parent": "-> ..",
	})

	var got []string
	err := symlink.Walk(root, true, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		got = append(got, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err, "Walk should not fail")

	assert.Contains(t, got, "a/file", "Directory should be walked through its real path")
	assert.Contains(t, got, "z/deep/er/link/file", "Directory should be walked again through its alias")
	assert.Contains(t, got, "z/deep/er/parent", "Link to an ancestor should be reported")
	assert.NotContains(t, got, "z/deep/er/parent/er", "Link to an ancestor should not be descended into")
}

func TestWalkSkipDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutils.WriteTree(t, root, map[string]string{"skip/file": "x", "keep/file": "y"})

	var got []string
	err := symlink.Walk(root, false, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "skip" {
			return fs.SkipDir
		}
		got = append(got, filepath.Base(path))
		return nil
	})
	require.NoError(t, err, "Walk should not fail")
	assert.NotContains(t, got, "skip", "Skipped directory should not be reported after skipping")
	assert.Contains(t, got, "keep", "Other directories should be walked")
	assert.Len(t, got, 3, "Root, keep and the kept file should be walked")
}
