package policydoc

// WithTestStyles replaces every style with a short "style_<name>;" marker.
func WithTestStyles() Options {
	return func(o *options) {
		o.styles = make(map[string]string)
		for k := range defaultStyles {
			o.styles[k] = "style_" + k + ";"
		}
		o.styles["key1"] = "style1;"
		o.styles["key2"] = "style2;"
	}
}
