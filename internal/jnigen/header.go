package jnigen

import (
	"fmt"
	"strings"
)

// headerWriter renders the C++ glue of one Java class.
type headerWriter struct {
	params              *JniParams
	fullyQualifiedClass string
	natives             []NativeMethod
	calledByNatives     []CalledByNative
	constants           []Constant
	generator           string
}

func (w headerWriter) write() (string, error) {
	var b strings.Builder
	guard := strings.NewReplacer("/", "_", "$", "_").Replace(w.fullyQualifiedClass) + "_JNI"

	fmt.Fprintf(&b, "// This file is autogenerated by\n//     %s\n// For\n//     %s\n\n", w.generator, w.fullyQualifiedClass)
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", guard, guard)
	b.WriteString(`#include <jni.h>

#include "base/android/jni_android.h"
#include "base/android/scoped_java_ref.h"
#include "base/basictypes.h"
#include "base/logging.h"

using base::android::ScopedJavaLocalRef;

`)

	b.WriteString("// Step 1: forward declarations.\nnamespace {\n")
	classes := w.classPaths()
	for _, name := range sortedKeys(classes) {
		fmt.Fprintf(&b, "const char k%sClassPath[] = %q;\n", name, classes[name])
	}
	b.WriteString("// Leaking this jclass as we cannot use LazyInstance from some threads.\n")
	for _, name := range sortedKeys(classes) {
		fmt.Fprintf(&b, "jclass g_%s_clazz = NULL;\n", name)
	}
	b.WriteString("}  // namespace\n\n")

	for _, n := range w.natives {
		if n.Type == NativeFunction {
			fmt.Fprintf(&b, "static %s %s(%s);\n\n", JavaTypeToC(n.ReturnType), n.Name, nativeParamList(n))
		}
	}

	if len(w.constants) > 0 {
		fmt.Fprintf(&b, "// Constants\nenum Java_%s_constant_fields {\n", w.className(""))
		for _, c := range w.constants {
			fmt.Fprintf(&b, "  %s = %s,\n", c.Name, c.Value)
		}
		b.WriteString("};\n\n")
	}

	b.WriteString("// Step 2: method stubs.\n")
	for _, n := range w.natives {
		if n.Type == NativeMethodOnObject {
			writeMethodStub(&b, n)
		}
	}
	for _, c := range w.calledByNatives {
		w.writeCalledByNativeStub(&b, c)
	}

	b.WriteString("// Step 3: GetMethodIDs and RegisterNatives.\n")
	b.WriteString("static void GetMethodIDsImpl(JNIEnv* env) {\n")
	for _, name := range sortedKeys(classes) {
		fmt.Fprintf(&b, "  g_%s_clazz = reinterpret_cast<jclass>(env->NewGlobalRef(\n      base::android::GetClass(env, k%sClassPath).obj()));\n", name, name)
	}
	for _, c := range w.calledByNatives {
		get, name := "GetMethodID", c.Name
		if c.Static {
			get = "GetStaticMethodID"
		}
		if c.Constructor {
			name = "<init>"
		}
		cls := w.className(c.JavaClassName)
		fmt.Fprintf(&b, "  g_%s_%s =\n      base::android::%s(\n          env, g_%s_clazz,\n          %q,\n          %q);\n",
			cls, c.MethodIDVarName, get, cls, name, c.Signature)
	}
	b.WriteString("}\n\n")

	if err := w.writeRegisterNatives(&b); err != nil {
		return "", err
	}

	fmt.Fprintf(&b, "#endif  // %s\n", guard)
	return b.String(), nil
}

func (w headerWriter) writeRegisterNatives(b *strings.Builder) error {
	b.WriteString("static bool RegisterNativesImpl(JNIEnv* env) {\n  GetMethodIDsImpl(env);\n\n")

	byClass := make(map[string][]NativeMethod)
	for _, n := range w.natives {
		cls := w.className(n.JavaClassName)
		byClass[cls] = append(byClass[cls], n)
	}
	for _, cls := range sortedKeys(byClass) {
		fmt.Fprintf(b, "  static const JNINativeMethod kMethods%s[] = {\n", cls)
		for _, n := range byClass[cls] {
			sig, err := w.params.Signature(n.Params, n.ReturnType)
			if err != nil {
				return err
			}
			fmt.Fprintf(b, "    { %q, %q, reinterpret_cast<void*>(%s) },\n", "native"+n.Name, sig, n.Name)
		}
		fmt.Fprintf(b, "  };\n  const int kMethods%sSize = arraysize(kMethods%s);\n\n", cls, cls)
		fmt.Fprintf(b, "  if (env->RegisterNatives(g_%s_clazz,\n                           kMethods%s,\n                           kMethods%sSize) < 0) {\n", cls, cls, cls)
		b.WriteString("    LOG(ERROR) << \"RegisterNatives failed in \" << __FILE__;\n    return false;\n  }\n\n")
	}
	b.WriteString("  return true;\n}\n\n")
	return nil
}

// classPaths returns the JNI class path of every class the glue references, keyed by C name.
func (w headerWriter) classPaths() map[string]string {
	paths := map[string]string{w.className(""): w.fullyQualifiedClass}
	add := func(inner string) {
		if inner == "" {
			return
		}
		paths[w.className(inner)] = w.fullyQualifiedClass + "$" + strings.ReplaceAll(inner, ".", "$")
	}
	for _, n := range w.natives {
		add(n.JavaClassName)
	}
	for _, c := range w.calledByNatives {
		add(c.JavaClassName)
	}
	return paths
}

// className is the C name of the outer class, or of the inner class when set.
func (w headerWriter) className(inner string) string {
	if inner != "" {
		return strings.ReplaceAll(inner, ".", "_")
	}
	name := w.fullyQualifiedClass[strings.LastIndex(w.fullyQualifiedClass, "/")+1:]
	return strings.ReplaceAll(name, "$", "_")
}

func nativeParamList(n NativeMethod) string {
	items := []string{"JNIEnv* env"}
	if n.Static {
		items = append(items, "jclass clazz")
	} else {
		items = append(items, "jobject obj")
	}
	for _, p := range n.Params {
		items = append(items, JavaTypeToC(p.Type)+" "+p.Name)
	}
	return strings.Join(items, ", ")
}

func writeMethodStub(b *strings.Builder, n NativeMethod) {
	ret := JavaTypeToC(n.ReturnType)
	fmt.Fprintf(b, "static %s %s(%s) {\n", ret, n.Name, nativeParamList(n))

	holder := n.Params[0].Name
	fmt.Fprintf(b, "  DCHECK(%s) << %q;\n", holder, n.Name)
	fmt.Fprintf(b, "  %s* native = reinterpret_cast<%s*>(%s);\n", n.PType, n.PType, holder)

	args := []string{"env"}
	if n.Static {
		args = append(args, "clazz")
	} else {
		args = append(args, "obj")
	}
	for _, p := range n.Params[1:] {
		args = append(args, p.Name)
	}
	call := fmt.Sprintf("native->%s(%s)", n.Name, strings.Join(args, ", "))

	switch {
	case ret == "void":
		fmt.Fprintf(b, "  %s;\n", call)
	case isPrimitive(n.ReturnType):
		fmt.Fprintf(b, "  return %s;\n", call)
	default:
		fmt.Fprintf(b, "  return %s.Release();\n", call)
	}
	b.WriteString("}\n\n")
}

func (w headerWriter) writeCalledByNativeStub(b *strings.Builder, c CalledByNative) {
	cls := w.className(c.JavaClassName)
	idVar := fmt.Sprintf("g_%s_%s", cls, c.MethodIDVarName)

	cRet := JavaTypeToC(c.ReturnType)
	primitive := isPrimitive(c.ReturnType)
	if c.Constructor {
		cRet, primitive = "jobject", false
	}
	fnRet := cRet
	if !primitive {
		fnRet = fmt.Sprintf("ScopedJavaLocalRef<%s>", cRet)
	}

	params := []string{"JNIEnv* env"}
	if !c.Static && !c.Constructor {
		params = append(params, "jobject obj")
	}
	args := []string{idVar}
	for _, p := range c.Params {
		params = append(params, JavaTypeToC(p.Type)+" "+p.Name)
		args = append(args, p.Name)
	}
	receiver := "obj"
	if c.Static || c.Constructor {
		receiver = fmt.Sprintf("g_%s_clazz", cls)
	}

	fmt.Fprintf(b, "static jmethodID %s = 0;\n", idVar)
	fmt.Fprintf(b, "static %s Java_%s_%s(%s) {\n", fnRet, cls, c.MethodIDVarName, strings.Join(params, ", "))
	fmt.Fprintf(b, "  /* Must call RegisterNativesImpl() */\n  DCHECK(g_%s_clazz);\n  DCHECK(%s);\n", cls, idVar)

	call := fmt.Sprintf("env->%s(%s,\n      %s)", c.EnvCallName(), receiver, strings.Join(args, ", "))
	switch {
	case cRet == "void":
		fmt.Fprintf(b, "  %s;\n", call)
	case primitive:
		fmt.Fprintf(b, "  %s ret =\n    %s;\n", cRet, call)
	case cRet == "jobject":
		fmt.Fprintf(b, "  jobject ret =\n    %s;\n", call)
	default:
		fmt.Fprintf(b, "  %s ret =\n    static_cast<%s>(%s);\n", cRet, cRet, call)
	}
	if !c.Unchecked {
		b.WriteString("  base::android::CheckException(env);\n")
	}
	switch {
	case cRet == "void":
	case primitive:
		b.WriteString("  return ret;\n")
	default:
		fmt.Fprintf(b, "  return %s(env, ret);\n", fnRet)
	}
	b.WriteString("}\n\n")
}
