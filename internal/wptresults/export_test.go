package wptresults

import "time"

// WithImageDiffer sets how reftest screenshots are compared.
func WithImageDiffer(d ImageDiffer) Options {
	return func(o *options) {
		o.diff = d
	}
}

// WithJoinTimeout sets how long Close waits for the worker.
func WithJoinTimeout(d time.Duration) Options {
	return func(o *options) {
		o.joinTimeout = d
	}
}
