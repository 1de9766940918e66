package rusttoolchain

import "github.com/browser-infra/buildtools/internal/cmdutils"

// WithRunner sets the runner executing external tools.
func WithRunner(r cmdutils.Runner) Options {
	return func(o *options) {
		o.runner = r
	}
}

// WithGOOS builds as if running on goos.
func WithGOOS(goos string) Options {
	return func(o *options) {
		o.goos = goos
	}
}
