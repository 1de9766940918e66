package wptresults

import (
	"bytes"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/pmezard/go-difflib/difflib"
)

// Artifact names, as reported to result consumers.
const (
	ArtifactActualText     = "actual_text"
	ArtifactExpectedText   = "expected_text"
	ArtifactTextDiff       = "text_diff"
	ArtifactPrettyTextDiff = "pretty_text_diff"
	ArtifactActualImage    = "actual_image"
	ArtifactExpectedImage  = "expected_image"
	ArtifactImageDiff      = "image_diff"
	ArtifactStderr         = "stderr"
	ArtifactCrashLog       = "crash_log"
	ArtifactCommand        = "command"
	ArtifactLeakLog        = "leak_log"
)

var artifactSuffixes = map[string]string{
	ArtifactActualText:     "-actual.txt",
	ArtifactExpectedText:   "-expected.txt",
	ArtifactTextDiff:       "-diff.txt",
	ArtifactPrettyTextDiff: "-pretty-diff.html",
	ArtifactActualImage:    "-actual.png",
	ArtifactExpectedImage:  "-expected.png",
	ArtifactImageDiff:      "-diff.png",
	ArtifactStderr:         "-stderr.txt",
	ArtifactCrashLog:       "-crash-log.txt",
	ArtifactCommand:        "-command.txt",
	ArtifactLeakLog:        "-leak-log.txt",
}

// DiffStats summarizes the difference between two screenshots.
type DiffStats struct {
	// MaxDifference is the largest difference of a color channel, from 0 to 255.
	MaxDifference int `json:"maxDifference"`
	// MaxPixels is the number of differing pixels.
	MaxPixels int `json:"maxPixels"`
}

// ImageDiffer compares two PNG screenshots and returns an image highlighting their
// differences.
type ImageDiffer func(actual, expected []byte) (diff []byte, stats DiffStats, err error)

// testName returns the name results are reported under.
func testName(id, subsuite string) string {
	name := "external/wpt" + id
	if strings.HasPrefix(id, "/wpt_internal/") {
		name = strings.TrimPrefix(id, "/")
	}
	if subsuite != "" {
		name = path.Join("virtual", subsuite, name)
	}
	return name
}

// baseTestName strips the virtual suite prefix of name.
func baseTestName(name string) string {
	if rest, ok := strings.CutPrefix(name, "virtual/"); ok {
		if _, base, ok := strings.Cut(rest, "/"); ok {
			return base
		}
	}
	return name
}

// artifactBase returns name without its extension, with its variant appended in a file
// name friendly form: "a/variant.html?foo=bar/abc" becomes "a/variant_foo=bar_abc".
func artifactBase(name string) string {
	p, query, hasQuery := strings.Cut(name, "?")
	base := strings.TrimSuffix(p, path.Ext(p))
	if hasQuery {
		base += "_" + strings.ReplaceAll(query, "/", "_")
	}
	return base
}

// artifactWriter writes the artifacts of one test result.
type artifactWriter struct {
	// root is the directory artifact paths are relative to.
	root string
	// prefix is the relative path of the artifacts, without suffix.
	prefix    string
	artifacts map[string][]string
}

func newArtifactWriter(artifactsDir string, iteration int, name string) *artifactWriter {
	prefix := filepath.Base(artifactsDir)
	if iteration > 0 {
		prefix = filepath.Join(prefix, fmt.Sprintf("retry_%d", iteration))
	}
	return &artifactWriter{
		root:      filepath.Dir(artifactsDir),
		prefix:    filepath.Join(prefix, filepath.FromSlash(artifactBase(name))),
		artifacts: make(map[string][]string),
	}
}

func (w *artifactWriter) write(artifact string, data []byte) error {
	rel := w.prefix + artifactSuffixes[artifact]
	p := filepath.Join(w.root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return fmt.Errorf("could not create artifact directory: %v", err)
	}
	if err := fileutils.AtomicWrite(p, data); err != nil {
		return fmt.Errorf("could not write %s artifact: %v", artifact, err)
	}
	w.artifacts[artifact] = append(w.artifacts[artifact], rel)
	return nil
}

// writeTextDiff writes the actual text, the expected one when there is a baseline, and
// their differences.
func (w *artifactWriter) writeTextDiff(actual, expected string, hasExpected bool) error {
	if err := w.write(ArtifactActualText, []byte(actual)); err != nil {
		return err
	}
	if hasExpected {
		if err := w.write(ArtifactExpectedText, []byte(expected)); err != nil {
			return err
		}
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("could not diff texts: %v", err)
	}
	if err := w.write(ArtifactTextDiff, []byte(diff)); err != nil {
		return err
	}
	return w.write(ArtifactPrettyTextDiff, []byte(prettyDiff(expected, actual)))
}

// prettyDiff renders an HTML page highlighting the lines removed from expected and
// added in actual.
func prettyDiff(expected, actual string) string {
	a, b := difflib.SplitLines(expected), difflib.SplitLines(actual)

	var out strings.Builder
	out.WriteString(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Text diff</title>
<style>.del{background:#fdd}.add{background:#dfd}</style></head>
<body><pre>`)
	line := func(class, marker, l string) {
		l = html.EscapeString(strings.TrimSuffix(l, "\n"))
		if class == "" {
			fmt.Fprintf(&out, "%s%s\n", marker, l)
			return
		}
		fmt.Fprintf(&out, "<span class=\"%s\">%s%s</span>\n", class, marker, l)
	}
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, l := range a[op.I1:op.I2] {
				line("", " ", l)
			}
		case 'd':
			for _, l := range a[op.I1:op.I2] {
				line("del", "-", l)
			}
		case 'i':
			for _, l := range b[op.J1:op.J2] {
				line("add", "+", l)
			}
		case 'r':
			for _, l := range a[op.I1:op.I2] {
				line("del", "-", l)
			}
			for _, l := range b[op.J1:op.J2] {
				line("add", "+", l)
			}
		}
	}
	out.WriteString("</pre></body></html>\n")
	return out.String()
}

// DiffPNG is the default ImageDiffer. Differing pixels are painted red over a faded
// copy of the expected image.
func DiffPNG(actual, expected []byte) ([]byte, DiffStats, error) {
	a, err := png.Decode(bytes.NewReader(actual))
	if err != nil {
		return nil, DiffStats{}, fmt.Errorf("invalid actual screenshot: %v", err)
	}
	e, err := png.Decode(bytes.NewReader(expected))
	if err != nil {
		return nil, DiffStats{}, fmt.Errorf("invalid expected screenshot: %v", err)
	}

	bounds := a.Bounds().Union(e.Bounds())
	out := image.NewRGBA(bounds)
	var stats DiffStats
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			p := image.Pt(x, y)
			if !p.In(a.Bounds()) || !p.In(e.Bounds()) {
				stats.MaxPixels++
				stats.MaxDifference = 255
				out.Set(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			ac := color.RGBAModel.Convert(a.At(x, y)).(color.RGBA)
			ec := color.RGBAModel.Convert(e.At(x, y)).(color.RGBA)
			d := max(absDiff(ac.R, ec.R), absDiff(ac.G, ec.G), absDiff(ac.B, ec.B), absDiff(ac.A, ec.A))
			if d == 0 {
				out.Set(x, y, color.RGBA{R: fade(ec.R), G: fade(ec.G), B: fade(ec.B), A: 255})
				continue
			}
			stats.MaxPixels++
			stats.MaxDifference = max(stats.MaxDifference, d)
			out.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, DiffStats{}, err
	}
	return buf.Bytes(), stats, nil
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func fade(c uint8) uint8 {
	return 255 - (255-c)/4
}
