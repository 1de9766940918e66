package wptrun

import "github.com/browser-infra/buildtools/internal/cmdutils"

// WithRunner sets the runner executing wpt.
func WithRunner(r cmdutils.Runner) Options {
	return func(o *options) {
		o.runner = r
	}
}

// WithGOOS runs as if on goos.
func WithGOOS(goos string) Options {
	return func(o *options) {
		o.goos = goos
	}
}
