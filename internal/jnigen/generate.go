// Package jnigen generates the C++ JNI glue of Java classes.
//
// Sources are scanned for native method declarations and for methods annotated
// @CalledByNative. Classes without sources, such as system classes, are read from the
// output of javap. The result is a header registering the natives and exposing typed stubs
// calling into Java.
package jnigen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/browser-infra/buildtools/internal/cmdutils"
	"github.com/ubuntu/decorate"
)

// DefaultPtrType is the Java type holding C++ pointers in native method parameters.
const DefaultPtrType = "int"

// Generator turns Java classes into JNI headers.
type Generator struct {
	ptrType      string
	alwaysMangle bool
	classes      ClassTable
	runner       cmdutils.Runner
	name         string

	log *slog.Logger
}

type options struct {
	ptrType      string
	alwaysMangle bool
	classes      ClassTable
	runner       cmdutils.Runner
	name         string
	log          *slog.Logger
}

// Options represents an optional function to override Generator default values.
type Options func(*options)

// WithLogger sets the logger used by the generator.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// WithPtrType sets the Java type holding C++ pointers.
func WithPtrType(t string) Options {
	return func(o *options) {
		o.ptrType = t
	}
}

// WithAlwaysMangle mangles every called-by-native identifier, not only overloaded ones.
func WithAlwaysMangle() Options {
	return func(o *options) {
		o.alwaysMangle = true
	}
}

// WithClasses adds fully qualified classes resolvable without an import.
func WithClasses(qualified ...string) Options {
	return func(o *options) {
		for _, q := range qualified {
			o.classes.Add(q)
		}
	}
}

// New returns a Generator.
func New(args ...Options) Generator {
	opts := options{
		ptrType: DefaultPtrType,
		classes: DefaultClassTable(),
		runner:  cmdutils.ExecRunner{},
		name:    "buildtools jni-generate",
		log:     slog.Default(),
	}
	for _, f := range args {
		f(&opts)
	}

	return Generator{
		ptrType:      opts.ptrType,
		alwaysMangle: opts.alwaysMangle,
		classes:      opts.classes,
		runner:       opts.runner,
		name:         opts.name,
		log:          opts.log,
	}
}

// Input designates the class to generate glue for. Exactly one field is set.
type Input struct {
	// JavaFile is the path of a Java source file.
	JavaFile string
	// JavapClass is a class name passed to javap, for classes without sources.
	JavapClass string
	// Classpath is given to javap.
	Classpath string
}

// ErrInvalidInput is returned when an Input sets none or both of its sources.
var ErrInvalidInput = errors.New("exactly one of a Java file or a javap class is required")

// Generate returns the header for in.
func (g Generator) Generate(ctx context.Context, in Input) (header string, err error) {
	if (in.JavaFile == "") == (in.JavapClass == "") {
		return "", ErrInvalidInput
	}
	if in.JavaFile != "" {
		defer decorate.OnError(&err, "could not generate JNI glue for %s", in.JavaFile)
		return g.fromSource(ctx, in.JavaFile)
	}
	defer decorate.OnError(&err, "could not generate JNI glue for %s", in.JavapClass)
	return g.fromJavap(ctx, in.JavapClass, in.Classpath)
}

func (g Generator) fromSource(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	fq, err := ExtractFullyQualifiedJavaClassName(path, string(data))
	if err != nil {
		return "", err
	}

	contents, err := g.removeComments(ctx, string(data))
	if err != nil {
		return "", err
	}
	return g.FromContents(fq, contents)
}

// FromContents returns the header of the class fullyQualifiedClass whose comment free
// source is contents.
func (g Generator) FromContents(fullyQualifiedClass, contents string) (string, error) {
	p := NewJniParams(fullyQualifiedClass, g.classes, g.log)
	p.ExtractImportsAndInnerClasses(contents)

	natives, err := ExtractNatives(contents, g.ptrType)
	if err != nil {
		return "", err
	}
	calledByNatives, err := ExtractCalledByNatives(p, contents, g.alwaysMangle)
	if err != nil {
		return "", err
	}
	if len(natives) == 0 && len(calledByNatives) == 0 {
		return "", fmt.Errorf("no native methods nor @CalledByNative methods found in %s", fullyQualifiedClass)
	}
	g.log.Debug("Parsed Java class", "class", fullyQualifiedClass, "natives", len(natives), "called_by_natives", len(calledByNatives))

	return headerWriter{
		params:              p,
		fullyQualifiedClass: fullyQualifiedClass,
		natives:             natives,
		calledByNatives:     calledByNatives,
		generator:           g.name,
	}.write()
}

func (g Generator) fromJavap(ctx context.Context, class, classpath string) (string, error) {
	args := []string{"-s", "-constants"}
	if classpath != "" {
		args = append(args, "-classpath", classpath)
	}
	res, err := g.runner.Run(ctx, cmdutils.Command{Name: "javap", Args: append(args, class)})
	if err != nil {
		return "", err
	}
	return g.FromJavapOutput(res.Stdout.String())
}

// FromJavapOutput returns the header of the class listed by javap.
func (g Generator) FromJavapOutput(output string) (string, error) {
	lines := strings.Split(output, "\n")

	fq, err := javapClassName(lines)
	if err != nil {
		return "", err
	}

	p := NewJniParams(fq, g.classes, g.log)
	c, err := ExtractFromJavap(p, lines)
	if err != nil {
		return "", err
	}

	return headerWriter{
		params:              p,
		fullyQualifiedClass: c.FullyQualifiedClass,
		calledByNatives:     c.CalledByNatives,
		constants:           c.Constants,
		generator:           g.name,
	}.write()
}

// removeComments strips Java comments with the C preprocessor.
func (g Generator) removeComments(ctx context.Context, contents string) (string, error) {
	res, err := g.runner.Run(ctx, cmdutils.Command{
		Name:  "cpp",
		Args:  []string{"-fpreprocessed"},
		Stdin: bytes.NewBufferString(contents),
	})
	if err != nil {
		return "", fmt.Errorf("could not strip comments: %v", err)
	}

	var kept []string
	for _, l := range strings.Split(res.Stdout.String(), "\n") {
		// Line markers.
		if strings.HasPrefix(l, "#") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n"), nil
}
