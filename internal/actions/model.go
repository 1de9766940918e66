// Package actions keeps the actions.xml registry of user actions in sync with the
// action names recorded across the source tree.
package actions

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/ubuntu/decorate"
)

const (
	// PlaceholderOwner is the owner given to newly discovered actions.
	PlaceholderOwner = "Please list the metric's owners. Add more owner tags as needed."
	// PlaceholderDescription is the description given to newly discovered actions.
	PlaceholderDescription = "Please enter the description of the metric."
)

// ErrDuplicate is returned when an action or a variants block is defined twice.
var ErrDuplicate = errors.New("duplicated definition")

// Variant is one value a token can take.
type Variant struct {
	Name    string `xml:"name,attr"`
	Summary string `xml:"summary,attr"`
}

// Variants is a named list of variants shared by several tokens.
type Variants struct {
	Name     string    `xml:"name,attr"`
	Variants []Variant `xml:"variant"`
}

// Token is a placeholder of an action name, expanded with each of its variants.
// The variants are either listed inline or referenced by name.
type Token struct {
	Key         string    `xml:"key,attr"`
	VariantsRef string    `xml:"variants,attr,omitempty"`
	Variants    []Variant `xml:"variant"`
}

// Action is one user action of the registry.
type Action struct {
	Name string `xml:"name,attr"`
	// Obsolete is nil for live actions.
	Obsolete    *string  `xml:"obsolete"`
	Owners      []string `xml:"owner"`
	Description string   `xml:"description"`
	Tokens      []Token  `xml:"token"`
}

// Document is a parsed actions.xml.
type Document struct {
	// Header holds the comments before the root element.
	Header []string
	// Comments holds the comments directly under the root element.
	Comments []string
	Variants map[string]Variants
	Actions  map[string]*Action
}

// ParseActionsXML parses an actions.xml document.
func ParseActionsXML(r io.Reader) (doc Document, err error) {
	defer decorate.OnError(&err, "could not parse actions")

	doc = Document{Variants: make(map[string]Variants), Actions: make(map[string]*Action)}
	dec := xml.NewDecoder(r)

	var root xml.StartElement
	for {
		tok, err := tokenSkipWhitespace(dec)
		if err != nil {
			return doc, err
		}
		switch v := tok.(type) {
		case xml.ProcInst, xml.Directive:
			continue
		case xml.Comment:
			doc.Header = append(doc.Header, string(v))
			continue
		case xml.StartElement:
			root = v
		default:
			return doc, fmt.Errorf("unexpected content before the root element: %v", v)
		}
		break
	}
	if root.Name.Local != "actions" {
		return doc, fmt.Errorf("root element is <%s>, expected <actions>", root.Name.Local)
	}

	for {
		tok, err := tokenSkipWhitespace(dec)
		if err != nil {
			return doc, err
		}
		switch v := tok.(type) {
		case xml.Comment:
			doc.Comments = append(doc.Comments, string(v))
		case xml.EndElement:
			return doc, nil
		case xml.StartElement:
			if err := doc.decodeChild(dec, v); err != nil {
				return doc, err
			}
		default:
			return doc, fmt.Errorf("unexpected content in <actions>: %v", v)
		}
	}
}

func (doc *Document) decodeChild(dec *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "variants":
		var v Variants
		if err := dec.DecodeElement(&v, &start); err != nil {
			return err
		}
		if _, ok := doc.Variants[v.Name]; ok {
			return fmt.Errorf("%w: variants %q", ErrDuplicate, v.Name)
		}
		doc.Variants[v.Name] = v
	case "action":
		var a Action
		if err := dec.DecodeElement(&a, &start); err != nil {
			return err
		}
		if _, ok := doc.Actions[a.Name]; ok {
			return fmt.Errorf("%w: action %q", ErrDuplicate, a.Name)
		}
		doc.Actions[a.Name] = &a
	default:
		return fmt.Errorf("unexpected element <%s> in <actions>", start.Name.Local)
	}
	return nil
}

// tokenSkipWhitespace returns the next token from dec that is not whitespace.
func tokenSkipWhitespace(dec *xml.Decoder) (xml.Token, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if str, ok := tok.(xml.CharData); ok && strings.TrimSpace(string(str)) == "" {
			continue
		}
		return xml.CopyToken(tok), nil
	}
}

// Merge inserts every name missing from the document with placeholder metadata.
// Existing actions are left untouched. It returns the sorted inserted names.
func (doc *Document) Merge(names map[string]struct{}) []string {
	var added []string
	for name := range names {
		if _, ok := doc.Actions[name]; ok {
			continue
		}
		doc.Actions[name] = &Action{
			Name:        name,
			Owners:      []string{PlaceholderOwner},
			Description: PlaceholderDescription,
		}
		added = append(added, name)
	}
	slices.Sort(added)
	return added
}

// Lint returns the problems of the tokens of the document: keys missing from their
// action name, keys declared twice in an action and references to unknown variants.
func (doc Document) Lint() []string {
	var problems []string
	for _, name := range slices.Sorted(maps.Keys(doc.Actions)) {
		seen := make(map[string]bool)
		for _, t := range doc.Actions[name].Tokens {
			if seen[t.Key] {
				problems = append(problems, fmt.Sprintf("action %q declares token %q twice", name, t.Key))
			}
			seen[t.Key] = true
			if !strings.Contains(name, "{"+t.Key+"}") {
				problems = append(problems, fmt.Sprintf("action %q does not use token %q", name, t.Key))
			}
			if _, ok := doc.Variants[t.VariantsRef]; t.VariantsRef != "" && !ok {
				problems = append(problems, fmt.Sprintf("action %q references unknown variants %q", name, t.VariantsRef))
			}
		}
	}
	return problems
}
