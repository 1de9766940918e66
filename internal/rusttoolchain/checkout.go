package rusttoolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/browser-infra/buildtools/internal/constants"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/ubuntu/decorate"
)

// Checkout checks out cfg.Revision in the source directory, cloning the repository
// first when needed. The remote is only fetched when the revision is not known locally.
func (b Builder) Checkout(ctx context.Context) (err error) {
	defer decorate.OnError(&err, "could not check out Rust %s", b.cfg.Revision)

	if b.cfg.Revision == "" {
		return ErrMissingRevision
	}

	repo, err := git.PlainOpen(b.cfg.SourceDir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		b.log.Info("Cloning Rust sources", "url", b.cfg.RepoURL, "dir", b.cfg.SourceDir)
		repo, err = git.PlainCloneContext(ctx, b.cfg.SourceDir, false, &git.CloneOptions{
			URL:        b.cfg.RepoURL,
			NoCheckout: true,
		})
	}
	if err != nil {
		return err
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(b.cfg.Revision))
	if err != nil {
		b.log.Debug("Revision not found locally, fetching", "revision", b.cfg.Revision)
		err = repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: "origin",
			RefSpecs:   []gitconfig.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
			Tags:       git.AllTags,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("could not fetch: %w", err)
		}
		if hash, err = repo.ResolveRevision(plumbing.Revision(b.cfg.Revision)); err != nil {
			return err
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true})
}

// InitSubmodules initializes and updates the submodules of the checkout, shallowly and
// recursively. Each update is attempted a bounded number of times.
func (b Builder) InitSubmodules(ctx context.Context) (err error) {
	defer decorate.OnError(&err, "could not initialize submodules")

	repo, err := git.PlainOpen(b.cfg.SourceDir)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	subs, err := wt.Submodules()
	if err != nil {
		return err
	}

	for _, sub := range subs {
		for i := 0; ; i++ {
			err = sub.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
				Init:              true,
				Depth:             1,
				RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
			})
			if err == nil || i+1 >= constants.VendorRetries || ctx.Err() != nil {
				break
			}
			b.log.Warn("Submodule update failed, retrying", "submodule", sub.Config().Name, "error", err)
		}
		if err != nil {
			return fmt.Errorf("submodule %s: %w", sub.Config().Name, err)
		}
	}
	return nil
}

// VersionString is the package version embedded in the toolchain:
// "rustc <version> <hash> (<clang revision> chromium)".
func (b Builder) VersionString() (string, error) {
	version, err := os.ReadFile(filepath.Join(b.cfg.SourceDir, "src", "version"))
	if err != nil {
		return "", fmt.Errorf("could not read Rust version: %v", err)
	}

	repo, err := git.PlainOpen(b.cfg.SourceDir)
	if err != nil {
		return "", fmt.Errorf("could not open Rust checkout: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("could not resolve Rust HEAD: %v", err)
	}
	hash := head.Hash().String()[:12]

	return fmt.Sprintf("rustc %s %s (%s chromium)", strings.TrimSpace(string(version)), hash, b.cfg.ClangRevision), nil
}
