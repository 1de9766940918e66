package policydoc

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

var platformNames = map[string]string{
	"win":     "Windows",
	"win7":    "Windows 7",
	"mac":     "Mac",
	"linux":   "Linux",
	"android": "Android",
	"ios":     "iOS",
	"fuchsia": "Fuchsia",
}

func (d *document) productName(product string) string {
	names := map[string]string{
		"chrome":       d.cfg.AppName,
		"chrome_frame": d.cfg.FrameName,
		"chrome_os":    d.cfg.OSName,
		"webview":      d.cfg.WebviewName,
	}
	if n := names[product]; n != "" {
		return n
	}
	return product
}

func (d *document) platformName(platform string) string {
	if platform == "chrome_os" && d.cfg.OSName != "" {
		return d.cfg.OSName
	}
	if n, ok := platformNames[platform]; ok {
		return n
	}
	return platform
}

// registryKey is the registry key holding p on platform ("win" or "chrome_os").
func (d *document) registryKey(p Policy, platform string) string {
	keys := d.cfg.WinConfig[platform]
	if p.recommendedOnly() {
		return keys.Recommended
	}
	return keys.Mandatory
}

func (d *document) omaURI(p Policy) string {
	return fmt.Sprintf(`.\Device\Vendor\MSFT\Policy\Config\%s~Policy~%s\%s`, d.cfg.AppName, d.cfg.IntuneCategory, p.Name)
}

// addPolicyAttribute appends a term named after the message name and its definition.
func (d *document) addPolicyAttribute(parent *node, name, text string, styles []string) *node {
	d.styled(parent, "dt", []string{"dt"}, nil, d.msg(name))
	return d.styled(parent, "dd", styles, nil, text)
}

func (d *document) dataType(p Policy) string {
	s := kindNames[p.Type]
	if !p.supportedOn("win") {
		return s
	}
	if rt := p.Type.registryType(); rt != "" {
		s += fmt.Sprintf(" [Windows:%s]", rt)
	}
	if p.Type.isComplex() {
		s += fmt.Sprintf(" (%s)", d.msg("complex_policies_on_windows"))
	}
	return s
}

func (d *document) addPolicyDetails(parent *node, p Policy) {
	monospace := []string{".monospace"}
	dl := parent.add("dl")

	d.addPolicyAttribute(dl, "data_type", d.dataType(p), nil)
	switch {
	case p.supportedOn("win"):
		d.addPolicyAttribute(dl, "win_reg_loc", d.registryKey(p, "win")+`\`+p.Name, monospace)
		d.addPolicyAttribute(dl, "oma_uri", d.omaURI(p), monospace)
	case p.supportedOn("chrome_os") && d.registryKey(p, "chrome_os") != "":
		d.addPolicyAttribute(dl, "chrome_os_reg_loc", d.registryKey(p, "chrome_os")+`\`+p.Name, monospace)
	}
	if p.supportedOn("mac") || p.supportedOn("linux") {
		d.addPolicyAttribute(dl, "mac_linux_pref_name", p.Name, monospace)
	}
	if p.supportedOnProduct("android", "chrome") {
		d.addPolicyAttribute(dl, "android_restriction_name", p.Name, monospace)
	}
	if p.supportedOnProduct("android", "webview") {
		d.addPolicyAttribute(dl, "android_webview_restriction_name", d.cfg.AndroidWebviewRestrictionPrefix+p.Name, monospace)
	}

	d.addSupportedOn(d.addPolicyAttribute(dl, "supported_on", "", nil), p)
	if len(p.Features) > 0 {
		d.addFeatures(d.addPolicyAttribute(dl, "supported_features", "", nil), p)
	}
	d.addDescription(d.addPolicyAttribute(dl, "description", "", nil), p)
	if p.ArcSupport != "" {
		d.addParagraphs(d.addPolicyAttribute(dl, "arc_support", "", nil), p.ArcSupport)
	}

	switch {
	case p.Type == KindDict && p.Schema != nil:
		d.addSchema(dl, p.Schema)
	case p.Type == KindExternal && p.DescriptionSchema != nil:
		d.addSchema(dl, p.DescriptionSchema)
	}
	if p.URLSchema != "" {
		d.addTextWithLinks(d.addPolicyAttribute(dl, "url_schema", "", nil), p.URLSchema)
	}
	if p.ExampleValue != nil {
		d.addExample(d.addPolicyAttribute(dl, "example_value", "", nil), p)
	}
	if p.AtomicGroup != "" {
		dd := d.addPolicyAttribute(dl, "policy_atomic_group", "", nil)
		dd.addText(d.msg("policy_in_atomic_group") + " ")
		dd.add("a", p.AtomicGroup).set("href", d.cfg.AtomicGroupsURL+"#"+p.AtomicGroup)
	}
}

func (d *document) addSupportedOn(parent *node, p Policy) {
	ul := d.styled(parent, "ul", []string{"ul"}, nil, "")
	for _, s := range p.SupportedOn {
		versions := strings.ReplaceAll(d.msg("since_version"), "$6", s.SinceVersion)
		if s.UntilVersion != "" {
			versions += " " + strings.ReplaceAll(d.msg("until_version"), "$6", s.UntilVersion)
		}
		ul.add("li", fmt.Sprintf("%s (%s) %s", d.productName(s.Product), d.platformName(s.Platform), versions))
	}
}

func (d *document) addFeatures(parent *node, p Policy) {
	var features []string
	for _, f := range slices.Sorted(maps.Keys(p.Features)) {
		support := d.msg("not_supported")
		if p.Features[f] {
			support = d.msg("supported")
		}
		features = append(features, fmt.Sprintf("%s: %s", d.featureCaption(f), support))
	}
	parent.addText(strings.Join(features, ", "))
}

// addDescription appends the description paragraphs, the choices of enumerated
// policies and the range of integer ones.
func (d *document) addDescription(parent *node, p Policy) {
	d.addParagraphs(parent, p.Desc)

	if p.Type.isEnum() && len(p.Items) > 0 {
		ul := parent.add("ul")
		for _, item := range p.Items {
			ul.add("li", fmt.Sprintf("%s = %s", scalar(item.Value), item.Caption))
		}
	}

	if p.Type != KindInt {
		return
	}
	schema, ok := p.Schema.(map[string]any)
	if !ok {
		return
	}
	var bounds []string
	if minimum, ok := integer(schema["minimum"]); ok && minimum != 0 {
		bounds = append(bounds, fmt.Sprintf("Minimum: %d", minimum))
	}
	if maximum, ok := integer(schema["maximum"]); ok {
		bounds = append(bounds, fmt.Sprintf("Maximum: %d", maximum))
	}
	if len(bounds) == 0 {
		return
	}
	ul := d.styled(parent, "ul", []string{"ul"}, nil, "")
	for _, b := range bounds {
		ul.add("li", b)
	}
}

func (d *document) addSchema(parent *node, schema any) {
	resolved, err := ResolveRefs(schema, d.ids)
	if err != nil {
		if d.err == nil {
			d.err = err
		}
		resolved = schema
	}
	d.styled(parent, "dt", []string{"dt"}, nil, d.msg("schema"))
	d.styled(parent, "dd", []string{".monospace", ".pre-wrap"}, nil, schemaJSON.format(resolved))
}
