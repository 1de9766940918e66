package policydoc

import (
	"maps"
	"slices"
	"strings"
)

// node is an element, a text or a comment of the generated document.
type node struct {
	tag      string
	attrs    map[string]string
	text     string
	comment  bool
	children []*node
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func element(tag string) *node {
	return &node{tag: tag, attrs: make(map[string]string)}
}

// add appends a child element, with an optional text, and returns it.
func (n *node) add(tag string, text ...string) *node {
	e := element(tag)
	for _, t := range text {
		e.addText(t)
	}
	n.children = append(n.children, e)
	return e
}

func (n *node) addText(t string) {
	if t == "" {
		return
	}
	n.children = append(n.children, &node{text: t})
}

func (n *node) addComment(t string) {
	n.children = append(n.children, &node{text: t, comment: true})
}

func (n *node) set(attr, value string) *node {
	n.attrs[attr] = value
	return n
}

// String serializes the node as XML. Attributes are sorted by name and elements
// without children are self-closed.
func (n *node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *node) write(sb *strings.Builder) {
	switch {
	case n.comment:
		sb.WriteString("<!--" + n.text + "-->")
		return
	case n.tag == "":
		sb.WriteString(escaper.Replace(n.text))
		return
	}

	sb.WriteString("<" + n.tag)
	for _, k := range slices.Sorted(maps.Keys(n.attrs)) {
		sb.WriteString(" " + k + `="` + escaper.Replace(n.attrs[k]) + `"`)
	}
	if len(n.children) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteString(">")
	for _, c := range n.children {
		c.write(sb)
	}
	sb.WriteString("</" + n.tag + ">")
}
