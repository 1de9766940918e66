package jnigen

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

var primitiveSignatures = map[string]string{
	"int":     "I",
	"boolean": "Z",
	"char":    "C",
	"short":   "S",
	"long":    "J",
	"double":  "D",
	"float":   "F",
	"byte":    "B",
	"void":    "V",
}

// ClassTable maps simple Java class names to their fully qualified slash separated names.
// Types found in it resolve without an import.
type ClassTable map[string]string

// DefaultClassTable returns the classes resolvable without an import.
func DefaultClassTable() ClassTable {
	return ClassTable{
		"Object":       "java/lang/Object",
		"String":       "java/lang/String",
		"Class":        "java/lang/Class",
		"CharSequence": "java/lang/CharSequence",
		"Runnable":     "java/lang/Runnable",
		"Throwable":    "java/lang/Throwable",
		"Integer":      "java/lang/Integer",
		"Long":         "java/lang/Long",
		"Boolean":      "java/lang/Boolean",
		"Double":       "java/lang/Double",
		"Float":        "java/lang/Float",
	}
}

// Add registers the fully qualified name, in slash or dot notation, under its simple name.
func (t ClassTable) Add(qualified string) {
	qualified = strings.ReplaceAll(qualified, ".", "/")
	simple := qualified[strings.LastIndex(qualified, "/")+1:]
	t[simple] = qualified
}

// JniParams resolves Java types of one class to JNI signatures.
type JniParams struct {
	fullyQualifiedClass string
	pkg                 string
	classes             ClassTable

	imports      []string
	innerClasses []string

	// Unresolved lists the types that fell back to the class package.
	Unresolved []string

	log *slog.Logger
}

// NewJniParams returns the resolver for the class fullyQualifiedClass (slash separated).
// A nil classes uses DefaultClassTable.
func NewJniParams(fullyQualifiedClass string, classes ClassTable, log *slog.Logger) *JniParams {
	if classes == nil {
		classes = DefaultClassTable()
	}
	if log == nil {
		log = slog.Default()
	}
	pkg := ""
	if i := strings.LastIndex(fullyQualifiedClass, "/"); i >= 0 {
		pkg = fullyQualifiedClass[:i]
	}
	return &JniParams{
		fullyQualifiedClass: fullyQualifiedClass,
		pkg:                 pkg,
		classes:             classes,
		log:                 log,
	}
}

var (
	importRe     = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w\.]+)\s*;`)
	innerClassRe = regexp.MustCompile(`(?:class|interface|enum)\s+(\w+?)\W`)
)

// ExtractImportsAndInnerClasses records the imports and the inner classes declared in contents.
func (p *JniParams) ExtractImportsAndInnerClasses(contents string) {
	for _, m := range importRe.FindAllStringSubmatch(contents, -1) {
		p.imports = append(p.imports, "L"+strings.ReplaceAll(m[1], ".", "/"))
	}

	outer := p.fullyQualifiedClass[strings.LastIndex(p.fullyQualifiedClass, "/")+1:]
	for _, m := range innerClassRe.FindAllStringSubmatch(contents, -1) {
		if m[1] == outer {
			continue
		}
		p.innerClasses = append(p.innerClasses, "L"+p.fullyQualifiedClass+"$"+m[1])
	}
}

// Imports returns the recorded imports, as "L" prefixed slash separated names.
func (p *JniParams) Imports() []string {
	return p.imports
}

// InnerClasses returns the recorded inner classes, as "L" prefixed names.
func (p *JniParams) InnerClasses() []string {
	return p.innerClasses
}

// JavaToJni returns the JNI type signature of a Java type.
func (p *JniParams) JavaToJni(javaType string) (string, error) {
	javaType = stripGenerics(javaType)

	if elem, ok := strings.CutSuffix(javaType, "[]"); ok {
		s, err := p.JavaToJni(elem)
		if err != nil {
			return "", err
		}
		return "[" + s, nil
	}
	if elem, ok := strings.CutSuffix(javaType, "..."); ok {
		s, err := p.JavaToJni(elem)
		if err != nil {
			return "", err
		}
		return "[" + s, nil
	}

	if s, ok := primitiveSignatures[javaType]; ok {
		return s, nil
	}
	if strings.Contains(javaType, "/") {
		return "L" + javaType + ";", nil
	}
	if q, ok := p.classes[javaType]; ok {
		return "L" + q + ";", nil
	}

	// Outer.Inner: resolve the outer class then append the inner path.
	outer, inner, nested := strings.Cut(javaType, ".")
	inner = strings.ReplaceAll(inner, ".", "$")

	for _, c := range p.innerClasses {
		if strings.HasSuffix(c, "$"+outer) {
			if nested {
				return c + "$" + inner + ";", nil
			}
			return c + ";", nil
		}
	}

	var matches []string
	for _, imp := range p.imports {
		if strings.HasSuffix(imp, "/"+outer) {
			matches = append(matches, imp)
		}
	}
	if len(matches) > 1 {
		return "", ParseError{
			Description:  fmt.Sprintf("type %q matches several imports", javaType),
			ContextLines: matches,
		}
	}
	if len(matches) == 1 {
		if nested {
			return matches[0] + "$" + inner + ";", nil
		}
		return matches[0] + ";", nil
	}

	// Not found: assume the same package as the class.
	q := outer
	if nested {
		q += "$" + inner
	}
	if p.pkg != "" {
		q = p.pkg + "/" + q
	}
	p.log.Warn("Could not resolve Java type, assuming it lives in the class package", "type", javaType, "resolved", q)
	p.Unresolved = append(p.Unresolved, javaType)
	return "L" + q + ";", nil
}

// Signature returns the JNI method signature "(params)return".
func (p *JniParams) Signature(params []Param, returnType string) (string, error) {
	var b strings.Builder
	b.WriteString("(")
	for _, param := range params {
		s, err := p.JavaToJni(param.Type)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	b.WriteString(")")
	r, err := p.JavaToJni(returnType)
	if err != nil {
		return "", err
	}
	b.WriteString(r)
	return b.String(), nil
}

// MangledName returns name suffixed by its mangled return and parameter types, so that
// overloads get distinct C identifiers.
func (p *JniParams) MangledName(name string, params []Param, returnType string) (string, error) {
	r, err := p.JavaToJni(returnType)
	if err != nil {
		return "", err
	}
	items := []string{mangleParam(r)}
	for _, param := range params {
		s, err := p.JavaToJni(param.Type)
		if err != nil {
			return "", err
		}
		items = append(items, mangleParam(s))
	}
	return name + strings.Join(items, "_"), nil
}

// mangleParam turns a JNI type signature into identifier characters: array markers become
// 'A' and class names are reduced to the upper cased initial of each path element and
// the capitals they contain.
func mangleParam(sig string) string {
	if len(sig) <= 2 {
		return strings.ReplaceAll(sig, "[", "A")
	}
	var b strings.Builder
	for i := 1; i < len(sig); i++ {
		c := sig[i]
		switch {
		case c == '[':
			b.WriteByte('A')
		case isUpper(c) || sig[i-1] == '/' || sig[i-1] == 'L':
			b.WriteString(strings.ToUpper(string(c)))
		}
	}
	return b.String()
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

// stripGenerics drops type arguments: List<Foo> is List.
func stripGenerics(t string) string {
	var b strings.Builder
	depth := 0
	for _, c := range t {
		switch {
		case c == '<':
			depth++
		case c == '>':
			depth--
		case depth == 0:
			b.WriteRune(c)
		}
	}
	return strings.TrimSpace(b.String())
}

// JavaTypeToC returns the C type used for a Java type in JNI signatures.
func JavaTypeToC(javaType string) string {
	javaType = stripGenerics(javaType)
	switch javaType {
	case "void":
		return "void"
	case "int", "boolean", "char", "short", "long", "byte", "float", "double":
		return "j" + javaType
	case "String", "java/lang/String":
		return "jstring"
	case "Class", "java/lang/Class":
		return "jclass"
	case "Throwable", "java/lang/Throwable":
		return "jthrowable"
	}
	if elem, ok := strings.CutSuffix(javaType, "[]"); ok {
		if _, prim := primitiveSignatures[elem]; prim && elem != "void" {
			return "j" + elem + "Array"
		}
		return "jobjectArray"
	}
	if strings.HasSuffix(javaType, "...") {
		return "jobjectArray"
	}
	return "jobject"
}

func isPrimitive(javaType string) bool {
	_, ok := primitiveSignatures[javaType]
	return ok
}

// envCallKind is the type fragment of the JNIEnv Call*Method function returning javaType.
func envCallKind(javaType string) string {
	switch javaType {
	case "void":
		return "Void"
	case "boolean":
		return "Boolean"
	case "byte":
		return "Byte"
	case "char":
		return "Char"
	case "short":
		return "Short"
	case "int":
		return "Int"
	case "long":
		return "Long"
	case "float":
		return "Float"
	case "double":
		return "Double"
	}
	return "Object"
}

// sortedKeys returns the keys of m in order.
func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
