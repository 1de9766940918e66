package actions

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/ubuntu/decorate"
	"golang.org/x/sync/errgroup"
)

// recorder matches the calls recording a user action in one kind of source file.
type recorder struct {
	re *regexp.Regexp
	// list is set when the argument is a list of names.
	list bool
}

var (
	nativeRecorders = []recorder{{re: regexp.MustCompile(`\bUserMetricsAction\(([^)]*)\)`)}}
	javaRecorders   = []recorder{{re: regexp.MustCompile(`\bRecordUserAction\.record\(([^)]*)\)`)}}
	webRecorders    = []recorder{
		{re: regexp.MustCompile(`\bchrome\.send\(\s*['"]coreOptionsUserMetricsAction['"]\s*,\s*\[([^\]]*)\]`), list: true},
		{re: regexp.MustCompile(`\bInspectorFrontendHost\.recordUserMetricsAction\(([^)]*)\)`)},
	}

	recordersByExt = map[string][]recorder{
		".cc":   nativeRecorders,
		".cpp":  nativeRecorders,
		".h":    nativeRecorders,
		".mm":   nativeRecorders,
		".java": javaRecorders,
		".js":   webRecorders,
		".ts":   webRecorders,
		".html": webRecorders,
	}

	computedCall = regexp.MustCompile(`\bRecordComputedAction\(`)
	stringLit    = regexp.MustCompile(`^(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')`)
)

// ComputedActionAllowlist lists, per slash separated file relative to the source root,
// the actions recorded there through RecordComputedAction.
var ComputedActionAllowlist = map[string][]string{
	"chrome/browser/ui/browser_command_controller.cc": {
		"Accel_SelectTab_0", "Accel_SelectTab_1", "Accel_SelectTab_2", "Accel_SelectTab_3",
		"Accel_SelectTab_4", "Accel_SelectTab_5", "Accel_SelectTab_6", "Accel_SelectTab_7",
	},
	"chrome/browser/ui/views/frame/browser_view.cc": {
		"FullScreenMode_Enter", "FullScreenMode_Exit",
	},
	"components/omnibox/browser/omnibox_edit_model.cc": {
		"OmniboxInputInProgress", "AcceptedKeywordHint", "AcceptedOmniboxPopupItem",
	},
}

var skippedDirs = map[string]bool{".git": true, "out": true, "node_modules": true}

type options struct {
	log      *slog.Logger
	computed map[string][]string
	workers  int
}

// Options represents an optional function to override Extract default values.
type Options func(*options)

// WithLogger sets the logger reporting ignored calls.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// WithComputedActions replaces ComputedActionAllowlist.
func WithComputedActions(allowlist map[string][]string) Options {
	return func(o *options) {
		o.computed = allowlist
	}
}

// Extract walks dirs, relative to root, and returns the action names recorded with
// a literal argument. Calls with another argument are ignored with a warning.
func Extract(ctx context.Context, root string, dirs []string, args ...Options) (names map[string]struct{}, err error) {
	defer decorate.OnError(&err, "could not extract actions from %s", root)

	opts := options{
		log:      slog.Default(),
		computed: ComputedActionAllowlist,
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range args {
		opt(&opts)
	}

	files := make(chan string)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(files)
		for _, d := range dirs {
			if err := walkSources(gctx, filepath.Join(root, filepath.FromSlash(d)), files); err != nil {
				return err
			}
		}
		return nil
	})

	var mu sync.Mutex
	names = make(map[string]struct{})
	for range opts.workers {
		g.Go(func() error {
			for f := range files {
				found, err := opts.scanFile(root, f)
				if err != nil {
					return err
				}
				mu.Lock()
				for _, n := range found {
					names[n] = struct{}{}
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

// walkSources sends every file with a known extension under dir.
func walkSources(ctx context.Context, dir string, files chan<- string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := recordersByExt[filepath.Ext(p)]; !ok {
			return nil
		}
		select {
		case files <- p:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (o options) scanFile(root, p string) ([]string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	content := string(data)
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)

	var found []string
	for _, r := range recordersByExt[path.Ext(rel)] {
		for _, m := range r.re.FindAllStringSubmatchIndex(content, -1) {
			arg := content[m[2]:m[3]]
			names, ok := literals(arg, r.list)
			if !ok {
				o.log.Warn("Ignoring action recorded with a non literal name", "file", rel, "line", lineOf(content, m[0]), "argument", strings.TrimSpace(arg))
				continue
			}
			found = append(found, names...)
		}
	}

	if computedCall.MatchString(content) {
		computed, ok := o.computed[rel]
		if !ok {
			o.log.Warn("RecordComputedAction called outside of the allowlist", "file", rel)
		}
		found = append(found, computed...)
	}
	return found, nil
}

// literals parses arg as a string literal, made of adjacent literals, or as a comma
// separated list of them when list is set.
func literals(arg string, list bool) ([]string, bool) {
	parts := []string{arg}
	if list {
		parts = strings.Split(arg, ",")
	}

	var names []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if list && p == "" {
			continue
		}
		name, ok := concatenated(p)
		if !ok {
			return nil, false
		}
		names = append(names, name)
	}
	return names, len(names) > 0
}

// concatenated returns the value of adjacent string literals, like "Foo." "Bar".
func concatenated(s string) (string, bool) {
	var b strings.Builder
	for s != "" {
		m := stringLit.FindStringSubmatch(s)
		if m == nil {
			return "", false
		}
		b.WriteString(m[1] + m[2])
		s = strings.TrimSpace(s[len(m[0]):])
	}
	return b.String(), b.Len() > 0
}

func lineOf(content string, offset int) int {
	return strings.Count(content[:offset], "\n") + 1
}
