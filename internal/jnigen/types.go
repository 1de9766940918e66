package jnigen

import (
	"fmt"
	"strings"
)

// Param is a Java method parameter.
type Param struct {
	Annotations []string
	Type        string
	Name        string
}

// NativeMethodType tells how a native method reaches its C++ implementation.
type NativeMethodType string

const (
	// NativeFunction is a free C++ function.
	NativeFunction NativeMethodType = "function"
	// NativeMethodOnObject dispatches to a method of the C++ object held by the first parameter.
	NativeMethodOnObject NativeMethodType = "method"
)

// NativeMethod is a Java method declared native, implemented in C++.
type NativeMethod struct {
	Static bool
	// JavaClassName is the inner class declaring the method, empty for the outer class.
	JavaClassName string
	ReturnType    string
	// Name is the Java name without its "native" prefix.
	Name   string
	Params []Param

	Type NativeMethodType
	// PType is the C++ class of the object behind the first parameter of a NativeMethodOnObject.
	PType string
}

// newNativeMethod sets the dispatch type of a native method.
// A first parameter of type ptrType named native<Class> designates the C++ object of type Class.
func newNativeMethod(m NativeMethod, ptrType, nativeClassName string) NativeMethod {
	m.Type = NativeFunction
	if len(m.Params) > 0 && m.Params[0].Type == ptrType && strings.HasPrefix(m.Params[0].Name, "native") {
		m.Type = NativeMethodOnObject
		m.PType = nativeClassName
		if m.PType == "" {
			m.PType = strings.TrimPrefix(m.Params[0].Name, "native")
		}
	}
	return m
}

// CalledByNative is a Java method that C++ code calls through JNI.
type CalledByNative struct {
	// SystemClass is set for methods of classes read from javap output.
	SystemClass   bool
	Unchecked     bool
	Static        bool
	Constructor   bool
	JavaClassName string
	ReturnType    string
	Name          string
	// MethodIDVarName is the name used in generated identifiers, mangled for overloads.
	MethodIDVarName string
	Params          []Param
	// Signature is the JNI signature, filled when the method is resolved.
	Signature string
}

// EnvCallName returns the JNIEnv function used to call the method.
func (c CalledByNative) EnvCallName() string {
	if c.Constructor {
		return "NewObject"
	}
	call := "Call"
	if c.Static {
		call += "Static"
	}
	return call + envCallKind(c.ReturnType) + "Method"
}

// ParseError is returned when the Java input cannot be understood.
// ContextLines holds the offending lines.
type ParseError struct {
	Description  string
	ContextLines []string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s\n%s", e.Description, strings.Join(e.ContextLines, "\n"))
}
