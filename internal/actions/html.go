package actions

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ubuntu/decorate"
	"golang.org/x/net/html"
)

// ScanHTMLMetrics returns the actions of the HTML elements carrying a metric attribute
// in the templates under dirs, relative to root. A boolean metric, a checkbox or an
// element with dataType="boolean", records <name>_Enable and <name>_Disable.
func ScanHTMLMetrics(ctx context.Context, root string, dirs []string) (names map[string]struct{}, err error) {
	defer decorate.OnError(&err, "could not scan HTML metrics in %s", root)

	names = make(map[string]struct{})
	for _, d := range dirs {
		err := filepath.WalkDir(filepath.Join(root, filepath.FromSlash(d)), func(p string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.IsDir() {
				if skippedDirs[e.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(p) != ".html" {
				return nil
			}
			return scanHTMLFile(p, names)
		})
		if err != nil {
			return nil, err
		}
	}
	return names, nil
}

func scanHTMLFile(p string, names map[string]struct{}) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	z := html.NewTokenizer(f)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			metric, boolean := metricAttributes(z)
			if metric == "" {
				continue
			}
			if !boolean {
				names[metric] = struct{}{}
				continue
			}
			names[metric+"_Enable"] = struct{}{}
			names[metric+"_Disable"] = struct{}{}
		}
	}
}

// metricAttributes returns the metric of the current tag and whether it is boolean.
func metricAttributes(z *html.Tokenizer) (metric string, boolean bool) {
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "metric":
			metric = string(val)
		case "type":
			boolean = boolean || string(val) == "checkbox"
		case "datatype":
			boolean = boolean || string(val) == "boolean"
		}
		if !more {
			return metric, boolean
		}
	}
}
