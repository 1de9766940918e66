package policydoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// jsonFormat renders values the way policy documentation shows them: keys sorted,
// ": " between keys and values, and sep between items. An empty indent renders
// everything on one line.
type jsonFormat struct {
	indent string
	sep    string
}

var (
	// schemaJSON is used for schemas and dictionary examples.
	schemaJSON = jsonFormat{indent: "  ", sep: ", "}

	// listJSON is used for list examples.
	listJSON = jsonFormat{indent: "  ", sep: ","}

	// inlineJSON is used for single line values.
	inlineJSON = jsonFormat{sep: ", "}
)

func (f jsonFormat) format(v any) string {
	var sb strings.Builder
	f.write(&sb, v, 0)
	return sb.String()
}

func (f jsonFormat) write(sb *strings.Builder, v any, depth int) {
	next := func(i int) {
		if i > 0 {
			sb.WriteString(f.sep)
		}
		if f.indent != "" {
			sb.WriteString("\n" + strings.Repeat(f.indent, depth+1))
		}
	}
	closing := func(c string) {
		if f.indent != "" {
			sb.WriteString("\n" + strings.Repeat(f.indent, depth))
		}
		sb.WriteString(c)
	}

	switch v := v.(type) {
	case map[string]any:
		if len(v) == 0 {
			sb.WriteString("{}")
			return
		}
		sb.WriteString("{")
		for i, k := range slices.Sorted(maps.Keys(v)) {
			next(i)
			sb.WriteString(quote(k) + ": ")
			f.write(sb, v[k], depth+1)
		}
		closing("}")
	case []any:
		if len(v) == 0 {
			sb.WriteString("[]")
			return
		}
		sb.WriteString("[")
		for i, c := range v {
			next(i)
			f.write(sb, c, depth+1)
		}
		closing("]")
	default:
		sb.WriteString(scalar(v))
	}
}

// jsonBody is the inline JSON of v without its enclosing braces.
func jsonBody(v any) string {
	s := inlineJSON.format(v)
	if len(s) >= 2 && (s[0] == '{' || s[0] == '[') {
		return s[1 : len(s)-1]
	}
	return s
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return quote(v)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// integer returns v as an integer if it holds one.
func integer(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	}
	return 0, false
}

var plistEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// plistLines renders v as plist XML, one element per line.
func plistLines(v any, depth int) []string {
	pad := strings.Repeat("  ", depth)
	switch v := v.(type) {
	case bool:
		if v {
			return []string{pad + "<true/>"}
		}
		return []string{pad + "<false/>"}
	case string:
		return []string{pad + "<string>" + plistEscaper.Replace(v) + "</string>"}
	case []any:
		lines := []string{pad + "<array>"}
		for _, c := range v {
			lines = append(lines, plistLines(c, depth+1)...)
		}
		return append(lines, pad+"</array>")
	case map[string]any:
		lines := []string{pad + "<dict>"}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			lines = append(lines, pad+"  <key>"+plistEscaper.Replace(k)+"</key>")
			lines = append(lines, plistLines(v[k], depth+1)...)
		}
		return append(lines, pad+"</dict>")
	}
	if i, ok := integer(v); ok {
		return []string{fmt.Sprintf("%s<integer>%d</integer>", pad, i)}
	}
	return []string{pad + "<real>" + scalar(v) + "</real>"}
}

func plist(v any) string {
	return strings.Join(plistLines(v, 0), "\n")
}
