package policydoc

import (
	"fmt"
	"strings"
)

var exampleStyles = []string{".monospace", ".pre-wrap"}

func (d *document) addExample(parent *node, p Policy) {
	switch p.Type {
	case KindMain:
		d.addBooleanExample(parent, p)
	case KindInt, KindIntEnum:
		d.addIntegerExample(parent, p)
	case KindString, KindStringEnum:
		s := fmt.Sprint(p.ExampleValue)
		parent.addText(quote(s))
		d.addIntuneExample(parent, p, true, s)
	case KindList, KindStringEnumList:
		d.addListExample(parent, p)
	case KindDict, KindExternal:
		d.addDictionaryExample(parent, p)
		d.addIntuneExample(parent, p, true, jsonBody(p.ExampleValue))
	}
}

func (d *document) addBooleanExample(parent *node, p Policy) {
	v, _ := p.ExampleValue.(bool)
	dword := 0
	if v {
		dword = 1
	}

	var examples []string
	if p.supportedOn("win") {
		examples = append(examples, fmt.Sprintf("0x%08x (Windows)", dword))
	}
	if p.supportedOn("linux") {
		examples = append(examples, fmt.Sprintf("%t (Linux)", v))
	}
	if p.supportedOn("android") {
		examples = append(examples, fmt.Sprintf("%t (Android)", v))
	}
	if p.supportedOn("mac") {
		examples = append(examples, fmt.Sprintf("<%t /> (Mac)", v))
	}
	parent.addText(strings.Join(examples, ", "))
	d.addIntuneExample(parent, p, v)
}

func (d *document) addIntegerExample(parent *node, p Policy) {
	v, ok := integer(p.ExampleValue)
	if !ok {
		d.log.Warn("Example of integer policy is not an integer", "policy", p.Name, "example", p.ExampleValue)
	}

	var examples []string
	if p.supportedOn("win") {
		examples = append(examples, fmt.Sprintf("0x%08x (Windows)", uint32(v)))
	}
	if p.supportedOn("linux") {
		examples = append(examples, fmt.Sprintf("%d (Linux)", v))
	}
	if p.supportedOn("android") {
		examples = append(examples, fmt.Sprintf("%d (Android)", v))
	}
	if p.supportedOn("mac") {
		examples = append(examples, fmt.Sprintf("%d (Mac)", v))
	}
	parent.addText(strings.Join(examples, ", "))
	d.addIntuneExample(parent, p, true, fmt.Sprint(v))
}

// addListExample appends the example as indexed registry values, a JSON array and a
// plist array.
func (d *document) addListExample(parent *node, p Policy) {
	values, _ := p.ExampleValue.([]any)
	dl := d.styled(parent, "dl", []string{"dd dl"}, nil, "")

	if p.supportedOn("win") {
		key := d.registryKey(p, "win")
		var lines []string
		for i, v := range values {
			lines = append(lines, fmt.Sprintf(`%s\%s\%d = %s`, key, p.Name, i+1, scalar(v)))
		}
		dl.add("dt", d.msg("win_example_value"))
		d.styled(dl, "dd", exampleStyles, nil, strings.Join(lines, "\n"))
	}
	if p.supportedOn("linux") || p.supportedOn("android") {
		dl.add("dt", "Android/Linux:")
		d.styled(dl, "dd", exampleStyles, nil, listJSON.format(p.ExampleValue))
	}
	if p.supportedOn("mac") {
		dl.add("dt", "Mac:")
		d.styled(dl, "dd", exampleStyles, nil, plist(p.ExampleValue))
	}
}

// addDictionaryExample appends the example as a registry JSON string, a JSON object
// and a plist dictionary.
func (d *document) addDictionaryExample(parent *node, p Policy) {
	example := schemaJSON.format(p.ExampleValue)
	dl := d.styled(parent, "dl", []string{"dd dl"}, nil, "")

	if p.supportedOn("win") {
		dl.add("dt", d.msg("win_example_value"))
		d.styled(dl, "dd", exampleStyles, nil, fmt.Sprintf(`%s\%s = %s`, d.registryKey(p, "win"), p.Name, example))
	}
	if p.supportedOn("linux") || p.supportedOn("android") {
		dl.add("dt", "Android/Linux:")
		d.styled(dl, "dd", exampleStyles, nil, fmt.Sprintf("%s: %s", p.Name, example))
	}
	if p.supportedOn("mac") {
		dl.add("dt", "Mac:")
		d.styled(dl, "dd", exampleStyles, nil, fmt.Sprintf("<key>%s</key>\n%s", p.Name, plist(p.ExampleValue)))
	}
}

// addIntuneExample appends the OMA-URI payload of p, enabling it with an optional
// data value.
func (d *document) addIntuneExample(parent *node, p Policy, enabled bool, data ...string) {
	if !p.supportedOn("win") {
		return
	}
	dl := parent.add("dl")
	dl.add("dt", "Windows (Intune):")
	state := "<disabled/>"
	if enabled {
		state = "<enabled/>"
	}
	d.styled(dl, "dd", exampleStyles, nil, state)
	for _, v := range data {
		d.styled(dl, "dd", exampleStyles, nil, fmt.Sprintf(`<data id="%s" value="%s"/>`, p.Name, v))
	}
}
