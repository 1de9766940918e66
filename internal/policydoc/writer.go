// Package policydoc renders the HTML documentation of enterprise policies.
//
// The documentation is a fragment made of a summary table followed by one section per
// policy. The pages hosting it strip class attributes, so every element carries its CSS
// inline.
package policydoc

import (
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/ubuntu/decorate"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RegistryKeys are the Windows registry keys policies are read from.
type RegistryKeys struct {
	Mandatory   string `mapstructure:"reg_mandatory_key_name"`
	Recommended string `mapstructure:"reg_recommended_key_name"`
}

// Config holds the product names and registry locations of the documented build.
type Config struct {
	AppName                         string                  `mapstructure:"app_name"`
	FrameName                       string                  `mapstructure:"frame_name"`
	OSName                          string                  `mapstructure:"os_name"`
	WebviewName                     string                  `mapstructure:"webview_name"`
	AndroidWebviewRestrictionPrefix string                  `mapstructure:"android_webview_restriction_prefix"`
	WinConfig                       map[string]RegistryKeys `mapstructure:"win_config"`
	IntuneCategory                  string                  `mapstructure:"intune_category"`
	AtomicGroupsURL                 string                  `mapstructure:"atomic_groups_url"`
	Build                           string                  `mapstructure:"build"`
	Version                         string                  `mapstructure:"version"`
}

var defaultStyles = map[string]string{
	"div.banner":     "background-color: rgb(244,204,204); font-size: x-large; border: 1px solid red; padding: 20px; text-align: center;",
	"div.group_desc": "margin-top: 20px; margin-bottom: 20px;",
	"ul":             "padding-left: 0px; margin-left: 0px;",
	"table":          "border-style: none; border-collapse: collapse;",
	"tr":             "height: 0px;",
	"td":             "border: 1px dotted rgb(170, 170, 170); padding: 7px; vertical-align: top; width: 236px; height: 15px;",
	"thead td":       "font-weight: bold;",
	"td.left":        "width: 200px;",
	"td.right":       "width: 100%;",
	"dt":             "font-weight: bold;",
	"dd dl":          "margin-top: 0px; margin-bottom: 0px;",
	".monospace":     "font-family: monospace;",
	".pre-wrap":      "white-space: pre-wrap;",
}

// Writer renders policy documentation.
type Writer struct {
	cfg      Config
	messages map[string]Message
	styles   map[string]string

	log *slog.Logger
}

type options struct {
	styles map[string]string
	log    *slog.Logger
}

// Options represents an optional function to override Writer default values.
type Options func(*options)

// WithLogger sets the logger used by the writer.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Writer for cfg. Messages are looked up with a "doc_" prefix.
func New(cfg Config, messages map[string]Message, args ...Options) Writer {
	opts := options{
		styles: defaultStyles,
		log:    slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	if cfg.IntuneCategory == "" {
		cfg.IntuneCategory = "chromium"
	}
	if cfg.AtomicGroupsURL == "" {
		cfg.AtomicGroupsURL = "./policy-list-3/atomic_groups"
	}

	return Writer{
		cfg:      cfg,
		messages: messages,
		styles:   opts.styles,
		log:      opts.log,
	}
}

// Write renders the documentation of policies. Groups list their policies in
// Policy.Policies.
func (w Writer) Write(policies []Policy) (out string, err error) {
	defer decorate.OnError(&err, "could not write policy documentation")

	d := w.newDocument(SchemaIDs(policies))
	root := d.beginTemplate()
	d.addPolicies(policies)

	if d.err != nil {
		return "", d.err
	}
	if len(d.missing) > 0 {
		return "", fmt.Errorf("missing localized messages: %s", strings.Join(slices.Sorted(maps.Keys(d.missing)), ", "))
	}
	return root.String(), nil
}

func (w Writer) style(keys ...string) string {
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(w.styles[k])
	}
	return sb.String()
}

// document is the state of one rendering.
type document struct {
	Writer

	ids     map[string]any
	indent  int
	missing map[string]bool
	err     error

	rows     *node
	sections *node
}

func (w Writer) newDocument(ids map[string]any) *document {
	return &document{
		Writer:  w,
		ids:     ids,
		missing: make(map[string]bool),
	}
}

// msg returns the localized message name. Missing messages fail the rendering.
func (d *document) msg(name string) string {
	m, ok := d.messages["doc_"+name]
	if !ok {
		d.missing["doc_"+name] = true
		return ""
	}
	return m.Text
}

// styled appends an element whose style is the concatenation of the named styles.
func (d *document) styled(parent *node, tag string, styles []string, attrs map[string]string, text string) *node {
	e := parent.add(tag, text)
	for k, v := range attrs {
		e.set(k, v)
	}
	if len(styles) > 0 {
		e.set("style", d.style(styles...))
	}
	return e
}

func (d *document) beginTemplate() *node {
	root := element("div")
	if d.cfg.Version != "" {
		root.addComment(fmt.Sprintf("%s version: %s", d.cfg.Build, d.cfg.Version))
	}

	banner := d.styled(root, "div", []string{"div.banner"}, nil, "")
	banner.add("p", d.msg("banner"))

	summary := root.add("div")
	summary.add("a").set("name", "top")
	summary.add("br")
	summary.add("p", d.msg("intro"))
	summary.add("br")
	summary.add("br")
	summary.add("br")

	table := d.styled(summary, "table", []string{"table"}, nil, "")
	tr := d.styled(table.add("thead"), "tr", []string{"tr"}, nil, "")
	d.styled(tr, "td", []string{"td", "td.left", "thead td"}, nil, d.msg("name_column_title"))
	d.styled(tr, "td", []string{"td", "td.right", "thead td"}, nil, d.msg("description_column_title"))
	d.rows = table.add("tbody")

	d.sections = root.add("div")
	return root
}

func (d *document) addPolicies(policies []Policy) {
	for _, p := range policies {
		d.addPolicyRow(d.rows, p)
		d.addPolicySection(d.sections, p)
		if p.Type != KindGroup {
			continue
		}
		d.indent++
		d.addPolicies(p.Policies)
		d.indent--
	}
}

func (d *document) addPolicyRow(parent *node, p Policy) {
	tr := d.styled(parent, "tr", []string{"tr"}, nil, "")
	left := tr.add("td").set("style", d.style("td", "td.left")+fmt.Sprintf("padding-left: %dpx;", d.indent*14+7))
	if p.Type == KindGroup {
		left.set("colspan", "2")
		left.add("a", p.Caption).set("href", "#"+p.Name)
		return
	}
	left.add("a", p.Name).set("href", "#"+p.Name)
	d.styled(tr, "td", []string{"td", "td.right"}, nil, p.Caption)
}

func (d *document) addPolicySection(parent *node, p Policy) {
	div := parent.add("div").set("style", fmt.Sprintf("margin-left: %dpx", d.indent*28))
	if p.Type == KindGroup {
		h2 := div.add("h2")
		h2.add("a").set("name", p.Name)
		h2.addText(p.Caption)
		desc := d.styled(div, "div", []string{"div.group_desc"}, nil, "")
		d.addTextWithLinks(desc, p.Desc)
	} else {
		h3 := div.add("h3")
		h3.add("a").set("name", p.Name)
		h3.addText(p.Name)
		div.add("span", p.Caption)
		d.addPolicyDetails(div, p)
	}
	div.add("a", d.msg("back_to_top")).set("href", "#top")
}

var urlRE = regexp.MustCompile(`https?://[^\s"'<>]*[^\s"'<>.,;:!?)]`)

// addTextWithLinks appends text, turning URLs into links.
func (d *document) addTextWithLinks(parent *node, text string) {
	last := 0
	for _, loc := range urlRE.FindAllStringIndex(text, -1) {
		parent.addText(text[last:loc[0]])
		url := text[loc[0]:loc[1]]
		parent.add("a", url).set("href", url)
		last = loc[1]
	}
	parent.addText(text[last:])
}

// addParagraphs appends one paragraph per blank line separated block of text.
func (d *document) addParagraphs(parent *node, text string) {
	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		d.addTextWithLinks(parent.add("p"), para)
	}
}

// featureCaption is the localized name of a feature. Features without a message are
// named after their key.
func (d *document) featureCaption(feature string) string {
	if m, ok := d.messages["doc_feature_"+feature]; ok {
		return m.Text
	}
	d.log.Debug("No caption for policy feature, using its key", "feature", feature)
	return cases.Title(language.English).String(strings.ReplaceAll(feature, "_", " "))
}
