package rusttoolchain

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// ErrStage0Mismatch is returned when stage0.json is not the reviewed one.
var ErrStage0Mismatch = errors.New("stage0.json does not match its expected digest")

// Stage0 is the content of stage0.json describing the bootstrap compiler.
type Stage0 struct {
	Config struct {
		DistServer string `json:"dist_server"`
	} `json:"config"`
	Compiler struct {
		Date    string `json:"date"`
		Version string `json:"version"`
	} `json:"compiler"`
	Checksums map[string]string `json:"checksums_sha256"`
}

// CargoArchive is the path of the cargo archive for triple on the dist server.
func (s Stage0) CargoArchive(triple string) string {
	return fmt.Sprintf("dist/%s/cargo-%s-%s.tar.gz", s.Compiler.Date, s.Compiler.Version, triple)
}

func (b Builder) stage0Path() string {
	return filepath.Join(b.cfg.SourceDir, "src", "stage0.json")
}

// VerifyStage0 checks stage0.json against the expected digest. The bootstrap
// compiler is downloaded, so an unreviewed stage0.json must never be used.
func (b Builder) VerifyStage0() error {
	got, err := fileutils.SHA256File(b.stage0Path())
	if err != nil {
		return fmt.Errorf("could not hash stage0.json: %v", err)
	}
	if !strings.EqualFold(got, b.cfg.Stage0SHA256) {
		return fmt.Errorf("%w: got %s, want %s", ErrStage0Mismatch, got, b.cfg.Stage0SHA256)
	}
	return nil
}

// LoadStage0 parses stage0.json of the checkout.
func (b Builder) LoadStage0() (s Stage0, err error) {
	defer decorate.OnError(&err, "could not load stage0.json")

	if err := fileutils.ParseJSONFile(b.stage0Path(), nil, &s); err != nil {
		return s, err
	}
	if s.Config.DistServer == "" || s.Compiler.Date == "" || s.Compiler.Version == "" {
		return s, errors.New("missing dist server or compiler release")
	}
	return s, nil
}

// FetchStage0Cargo downloads the bootstrap cargo of the host into the x.py download
// cache and unpacks it. It returns the path to the cargo binary.
func (b Builder) FetchStage0Cargo(ctx context.Context) (cargo string, err error) {
	defer decorate.OnError(&err, "could not fetch stage0 cargo")

	s, err := b.LoadStage0()
	if err != nil {
		return "", err
	}

	remote := s.CargoArchive(b.cfg.HostTriple)
	archive, err := filepath.Abs(filepath.Join(b.cfg.SourceDir, "build", "cache", s.Compiler.Date, filepath.Base(remote)))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(archive), 0750); err != nil {
		return "", err
	}

	url := strings.TrimSuffix(s.Config.DistServer, "/") + "/" + remote
	b.log.Info("Downloading stage0 cargo", "url", url)
	resp, err := b.http.R().SetContext(ctx).SetOutput(archive).Get(url)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("could not download %s: %s", url, resp.Status())
	}

	if want, ok := s.Checksums[remote]; ok {
		got, err := fileutils.SHA256File(archive)
		if err != nil {
			return "", err
		}
		if !strings.EqualFold(got, want) {
			return "", fmt.Errorf("%s has digest %s, want %s", remote, got, want)
		}
	} else {
		b.log.Warn("No checksum for stage0 cargo", "archive", remote)
	}

	dest := filepath.Join(b.cfg.SourceDir, "build", b.cfg.HostTriple, "stage0-cargo")
	if err := extractTarGz(archive, dest); err != nil {
		return "", err
	}

	name := strings.TrimSuffix(filepath.Base(remote), ".tar.gz")
	cargo = filepath.Join(dest, name, "cargo", "bin", "cargo")
	if b.goos == "windows" {
		cargo += ".exe"
	}
	if _, err := os.Stat(cargo); err != nil {
		return "", fmt.Errorf("archive has no cargo binary: %v", err)
	}
	return cargo, nil
}

func extractTarGz(archive, dest string) (err error) {
	defer decorate.OnError(&err, "could not extract %s", archive)

	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(filepath.Separator)) {
			return fmt.Errorf("entry %q escapes the destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return err
			}
			if err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func writeEntry(r io.Reader, path string, perm os.FileMode) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
