package jnigen

import "github.com/browser-infra/buildtools/internal/cmdutils"

// WithRunner sets the runner used for cpp and javap.
func WithRunner(r cmdutils.Runner) Options {
	return func(o *options) {
		o.runner = r
	}
}
