package evalprompts

// WithEnv replaces the environment lookups by the given values.
func WithEnv(env map[string]string) Options {
	return func(o *options) {
		o.getenv = func(k string) string { return env[k] }
	}
}
