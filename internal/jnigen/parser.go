package jnigen

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var packageRe = regexp.MustCompile(`(?m)^\s*package\s+([\w\.]+)\s*;`)

// ExtractFullyQualifiedJavaClassName returns the slash separated class name declared by a
// Java source file: the package line joined with the file base name.
func ExtractFullyQualifiedJavaClassName(path, contents string) (string, error) {
	if strings.HasSuffix(path, ".kt") {
		return "", fmt.Errorf("kotlin sources are not supported: %s", path)
	}

	m := packageRe.FindStringSubmatch(contents)
	if m == nil {
		return "", ParseError{Description: fmt.Sprintf("unable to find package line in %s", path)}
	}
	class := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.ReplaceAll(m[1], ".", "/") + "/" + class, nil
}

var nativeRe = regexp.MustCompile(`(?s)(@NativeClassQualifiedName\("(?P<native_class_name>[^"]*)"\)\s+)?` +
	`(@NativeCall\("(?P<java_class_name>[^"]*)"\)\s+)?` +
	`(?P<qualifiers>\w+\s\w+|\w+|\s+)\s*native ` +
	`(?P<return_type>\S*) ` +
	`(?P<name>native\w+)\((?P<params>.*?)\);`)

// ExtractNatives returns the native method declarations of contents.
// ptrType is the Java type used to hold C++ pointers.
func ExtractNatives(contents, ptrType string) ([]NativeMethod, error) {
	var natives []NativeMethod
	for _, m := range nativeRe.FindAllStringSubmatch(contents, -1) {
		g := groups(nativeRe, m)
		params, err := ParseParams(g["params"])
		if err != nil {
			return nil, err
		}
		n := NativeMethod{
			Static:        strings.Contains(g["qualifiers"], "static"),
			JavaClassName: g["java_class_name"],
			ReturnType:    g["return_type"],
			Name:          strings.TrimPrefix(g["name"], "native"),
			Params:        params,
		}
		natives = append(natives, newNativeMethod(n, ptrType, g["native_class_name"]))
	}
	return natives, nil
}

var calledByNativeRe = regexp.MustCompile(`@CalledByNative(?P<unchecked>(?:Unchecked)?)(?:ForTesting)?` +
	`(?:\("(?P<annotation>[^"]*)"\))?` +
	`(?:\s*@\w+(?:\([^)]*\))?)*` +
	`\s+(?P<prefix>(?:(?:private|protected|public|static|abstract|final|default|synchronized)\s*)*)` +
	`(?:\s*@\w+)?` +
	`\s*(?P<return_type>\S*?)` +
	`\s*(?P<name>\w+)` +
	`\s*\((?P<params>[^\)]*)\)`)

// ExtractCalledByNatives returns the methods annotated @CalledByNative in contents.
// Overloaded names, or every name when alwaysMangle is set, get a mangled MethodIDVarName.
func ExtractCalledByNatives(p *JniParams, contents string, alwaysMangle bool) ([]CalledByNative, error) {
	var methods []CalledByNative
	for _, m := range calledByNativeRe.FindAllStringSubmatch(contents, -1) {
		g := groups(calledByNativeRe, m)
		params, err := ParseParams(g["params"])
		if err != nil {
			return nil, err
		}
		methods = append(methods, CalledByNative{
			Unchecked:     g["unchecked"] != "",
			Static:        strings.Contains(g["prefix"], "static"),
			JavaClassName: g["annotation"],
			ReturnType:    g["return_type"],
			Name:          g["name"],
			Params:        params,
		})
	}

	// Any annotation left once the matches are removed could not be parsed.
	lines := strings.Split(calledByNativeRe.ReplaceAllString(contents, ""), "\n")
	for i, l := range lines {
		if !strings.Contains(l, "@CalledByNative") {
			continue
		}
		ctx := []string{strings.TrimSpace(l)}
		if i+1 < len(lines) {
			ctx = append(ctx, strings.TrimSpace(lines[i+1]))
		}
		return nil, ParseError{
			Description:  "could not parse @CalledByNative method signature",
			ContextLines: ctx,
		}
	}

	return resolveCalledByNatives(p, methods, alwaysMangle)
}

// resolveCalledByNatives fills signatures and identifier names.
func resolveCalledByNatives(p *JniParams, methods []CalledByNative, alwaysMangle bool) ([]CalledByNative, error) {
	counts := make(map[string]int)
	for _, m := range methods {
		counts[m.JavaClassName+"."+m.Name]++
	}

	for i, m := range methods {
		if m.Signature == "" {
			ret := m.ReturnType
			if m.Constructor {
				ret = "void"
			}
			sig, err := p.Signature(m.Params, ret)
			if err != nil {
				return nil, err
			}
			m.Signature = sig
		}

		m.MethodIDVarName = m.Name
		if m.Constructor {
			m.MethodIDVarName = "Constructor"
		}
		if alwaysMangle || counts[m.JavaClassName+"."+m.Name] > 1 {
			name, err := p.MangledName(m.MethodIDVarName, m.Params, m.ReturnType)
			if err != nil {
				return nil, err
			}
			m.MethodIDVarName = name
		}
		methods[i] = m
	}
	return methods, nil
}

// ParseParams splits a Java parameter list. Annotations and the final keyword are dropped
// from the type, unnamed parameters are named p<index>.
func ParseParams(params string) ([]Param, error) {
	var ret []Param
	for _, raw := range splitTopLevel(params) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		items := strings.Fields(joinGenerics(raw))

		var annotations []string
		for len(items) > 0 && strings.HasPrefix(items[0], "@") {
			annotations = append(annotations, items[0])
			items = items[1:]
		}
		items = removeItem(items, "final")
		if len(items) == 0 {
			return nil, ParseError{Description: "invalid parameter", ContextLines: []string{raw}}
		}

		p := Param{Annotations: annotations, Type: items[0], Name: fmt.Sprintf("p%d", len(ret))}
		if len(items) > 1 {
			p.Name = items[1]
		}
		ret = append(ret, p)
	}
	return ret, nil
}

// splitTopLevel splits on commas outside of type arguments.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// joinGenerics removes spaces inside type arguments so that a type is a single field.
func joinGenerics(s string) string {
	var b strings.Builder
	depth := 0
	for _, c := range s {
		switch {
		case c == '<':
			depth++
		case c == '>':
			depth--
		case depth > 0 && (c == ' ' || c == '\t' || c == '\n'):
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func removeItem(items []string, item string) []string {
	out := items[:0:0]
	for _, i := range items {
		if i != item {
			out = append(out, i)
		}
	}
	return out
}

func groups(re *regexp.Regexp, match []string) map[string]string {
	g := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			g[name] = match[i]
		}
	}
	return g
}

var (
	javapClassRe     = regexp.MustCompile(`^\s*(?:public\s+|abstract\s+|final\s+)*(?:class|interface)\s+([\w\.\$]+)`)
	javapMethodRe    = regexp.MustCompile(`^\s*(?P<prefix>(?:(?:public|protected|static|final|abstract|synchronized|native)\s+)*)(?:<[^>]*>\s+)?(?:(?P<return_type>[\w\.\$\[\]\?]+(?:<[^()]*>)?(?:\[\])*)\s+)?(?P<name>[\w\.\$]+)\((?P<params>[^)]*)\)`)
	javapSignatureRe = regexp.MustCompile(`^\s*(?:Signature|descriptor):\s*(\S+)`)
	javapConstantRe  = regexp.MustCompile(`^\s*public\s+static\s+final\s+int\s+(\w+)(?:\s*=\s*(-?\d+))?;`)
	javapValueRe     = regexp.MustCompile(`^\s*ConstantValue:\s*int\s+(-?\d+)`)
)

// Constant is an int constant read from javap output.
type Constant struct {
	Name  string
	Value string
}

// JavapClass holds the methods and constants of a class listed by javap.
type JavapClass struct {
	FullyQualifiedClass string
	CalledByNatives     []CalledByNative
	Constants           []Constant
}

// ExtractFromJavap parses the output of "javap -s -constants" for one class.
// Method types come from the JNI descriptors so that generic declarations resolve.
func ExtractFromJavap(p *JniParams, lines []string) (JavapClass, error) {
	var c JavapClass
	fq, err := javapClassName(lines)
	if err != nil {
		return c, err
	}
	c.FullyQualifiedClass = fq
	simple := c.FullyQualifiedClass[strings.LastIndex(c.FullyQualifiedClass, "/")+1:]

	var methods []CalledByNative
	for i := 0; i < len(lines); i++ {
		l := lines[i]
		if m := javapConstantRe.FindStringSubmatch(l); m != nil {
			if m[2] != "" {
				c.Constants = append(c.Constants, Constant{Name: m[1], Value: m[2]})
				continue
			}
			for j := i + 1; j < len(lines) && j <= i+3; j++ {
				if v := javapValueRe.FindStringSubmatch(lines[j]); v != nil {
					c.Constants = append(c.Constants, Constant{Name: m[1], Value: v[1]})
					break
				}
			}
			continue
		}

		m := javapMethodRe.FindStringSubmatch(l)
		if m == nil || !strings.Contains(l, ";") {
			continue
		}
		g := groups(javapMethodRe, m)
		if !strings.Contains(g["prefix"], "public") {
			continue
		}

		// The descriptor follows the declaration.
		var sig string
		for j := i + 1; j < len(lines) && j <= i+2; j++ {
			if s := javapSignatureRe.FindStringSubmatch(lines[j]); s != nil {
				sig = s[1]
				break
			}
		}
		if sig == "" {
			continue
		}

		params, ret, err := ParseJniSignature(sig)
		if err != nil {
			return c, ParseError{Description: err.Error(), ContextLines: []string{l, sig}}
		}

		name := g["name"]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		method := CalledByNative{
			SystemClass: true,
			Static:      strings.Contains(g["prefix"], "static"),
			Name:        name,
			ReturnType:  ret,
			Params:      params,
			Signature:   sig,
		}
		if name == simple && g["return_type"] == "" {
			method.Constructor = true
			method.ReturnType = c.FullyQualifiedClass
		}
		methods = append(methods, method)
	}

	methods, err = resolveCalledByNatives(p, methods, false)
	if err != nil {
		return c, err
	}
	c.CalledByNatives = methods
	return c, nil
}

// javapClassName returns the slash separated name of the class listed by javap.
func javapClassName(lines []string) (string, error) {
	for _, l := range lines {
		if m := javapClassRe.FindStringSubmatch(l); m != nil {
			return strings.ReplaceAll(stripGenerics(m[1]), ".", "/"), nil
		}
	}
	return "", ParseError{Description: "unable to find the class declaration in javap output"}
}

// ParseJniSignature returns the Java parameter and return types of a JNI method descriptor.
// Class types are returned slash separated, generic parts are dropped.
func ParseJniSignature(sig string) ([]Param, string, error) {
	if !strings.HasPrefix(sig, "(") {
		return nil, "", fmt.Errorf("invalid JNI signature %q", sig)
	}
	end := strings.Index(sig, ")")
	if end < 0 {
		return nil, "", fmt.Errorf("invalid JNI signature %q", sig)
	}

	var params []Param
	rest := sig[1:end]
	for rest != "" {
		t, n, err := parseJniType(rest)
		if err != nil {
			return nil, "", fmt.Errorf("invalid JNI signature %q: %v", sig, err)
		}
		params = append(params, Param{Type: t, Name: fmt.Sprintf("p%d", len(params))})
		rest = rest[n:]
	}

	ret, n, err := parseJniType(sig[end+1:])
	if err != nil || n != len(sig[end+1:]) {
		return nil, "", fmt.Errorf("invalid JNI return type in %q", sig)
	}
	return params, ret, nil
}

// parseJniType reads one type at the start of s and returns it with the consumed length.
func parseJniType(s string) (string, int, error) {
	if s == "" {
		return "", 0, fmt.Errorf("missing type")
	}
	switch s[0] {
	case '[':
		t, n, err := parseJniType(s[1:])
		return t + "[]", n + 1, err
	case 'L':
		depth := 0
		for i := 1; i < len(s); i++ {
			switch s[i] {
			case '<':
				depth++
			case '>':
				depth--
			case ';':
				if depth == 0 {
					return stripGenerics(s[1:i]), i + 1, nil
				}
			}
		}
		return "", 0, fmt.Errorf("unterminated class type %q", s)
	}
	for java, jni := range primitiveSignatures {
		if jni[0] == s[0] {
			return java, 1, nil
		}
	}
	return "", 0, fmt.Errorf("unknown type %q", s[:1])
}
