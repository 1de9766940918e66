package actions

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/ubuntu/decorate"
)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// PrettyPrint writes the document in its canonical form: variants blocks then actions,
// each sorted by name, with the children of an action in a fixed order.
// Printing a parsed canonical document gives back the same bytes.
func PrettyPrint(w io.Writer, doc Document) (err error) {
	defer decorate.OnError(&err, "could not print actions")

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, `<?xml version="1.0" encoding="utf-8"?>`)
	for _, c := range doc.Header {
		fmt.Fprintf(bw, "<!--%s-->\n\n", c)
	}

	fmt.Fprint(bw, "<actions>\n\n")
	for _, c := range doc.Comments {
		fmt.Fprintf(bw, "<!--%s-->\n\n", c)
	}

	for _, name := range slices.Sorted(maps.Keys(doc.Variants)) {
		v := doc.Variants[name]
		fmt.Fprintf(bw, "<variants name=\"%s\">\n", attr(v.Name))
		writeVariants(bw, v.Variants, "  ")
		fmt.Fprint(bw, "</variants>\n\n")
	}

	for _, name := range slices.Sorted(maps.Keys(doc.Actions)) {
		writeAction(bw, doc.Actions[name])
	}
	fmt.Fprintln(bw, "</actions>")

	return bw.Flush()
}

func writeAction(w io.Writer, a *Action) {
	fmt.Fprintf(w, "<action name=\"%s\">\n", attr(a.Name))
	if a.Obsolete != nil {
		fmt.Fprintf(w, "  <obsolete>%s</obsolete>\n", text(*a.Obsolete))
	}
	for _, o := range a.Owners {
		fmt.Fprintf(w, "  <owner>%s</owner>\n", text(o))
	}
	fmt.Fprintf(w, "  <description>%s</description>\n", text(a.Description))
	for _, t := range a.Tokens {
		fmt.Fprintf(w, "  <token key=\"%s\"", attr(t.Key))
		if t.VariantsRef != "" {
			fmt.Fprintf(w, " variants=\"%s\"", attr(t.VariantsRef))
		}
		if len(t.Variants) == 0 {
			fmt.Fprint(w, "/>\n")
			continue
		}
		fmt.Fprint(w, ">\n")
		writeVariants(w, t.Variants, "    ")
		fmt.Fprint(w, "  </token>\n")
	}
	fmt.Fprint(w, "</action>\n\n")
}

func writeVariants(w io.Writer, variants []Variant, indent string) {
	for _, v := range variants {
		fmt.Fprintf(w, "%s<variant name=\"%s\" summary=\"%s\"/>\n", indent, attr(v.Name), attr(v.Summary))
	}
}

// text collapses whitespace runs and escapes character data.
func text(s string) string {
	return textEscaper.Replace(strings.Join(strings.Fields(s), " "))
}

func attr(s string) string {
	return attrEscaper.Replace(s)
}
