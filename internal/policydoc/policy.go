package policydoc

import (
	"encoding/json"
	"fmt"
	"io"
)

// Kind is the type of a policy.
type Kind string

// Policy kinds.
const (
	KindMain           Kind = "main"
	KindInt            Kind = "int"
	KindIntEnum        Kind = "int-enum"
	KindString         Kind = "string"
	KindStringEnum     Kind = "string-enum"
	KindList           Kind = "list"
	KindStringEnumList Kind = "string-enum-list"
	KindDict           Kind = "dict"
	KindExternal       Kind = "external"
	KindGroup          Kind = "group"
)

var kindNames = map[Kind]string{
	KindMain:           "Boolean",
	KindInt:            "Integer",
	KindIntEnum:        "Integer",
	KindString:         "String",
	KindStringEnum:     "String",
	KindList:           "List of strings",
	KindStringEnumList: "List of strings",
	KindDict:           "Dictionary",
	KindExternal:       "External data reference",
	KindGroup:          "Group",
}

// UnmarshalText rejects unknown kinds.
func (k *Kind) UnmarshalText(b []byte) error {
	kind := Kind(b)
	if _, ok := kindNames[kind]; !ok {
		return fmt.Errorf("unknown policy type %q", string(b))
	}
	*k = kind
	return nil
}

// registryType is the Windows registry value type holding the policy.
func (k Kind) registryType() string {
	switch k {
	case KindMain, KindInt, KindIntEnum:
		return "REG_DWORD"
	case KindString, KindStringEnum, KindDict, KindExternal:
		return "REG_SZ"
	}
	return ""
}

func (k Kind) isEnum() bool {
	return k == KindIntEnum || k == KindStringEnum || k == KindStringEnumList
}

func (k Kind) isComplex() bool {
	return k == KindDict || k == KindExternal
}

// Item is one choice of an enumerated policy.
type Item struct {
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Caption string `json:"caption"`
}

// Support is a product and platform a policy is available on.
type Support struct {
	Product      string `json:"product"`
	Platform     string `json:"platform"`
	SinceVersion string `json:"since_version"`
	UntilVersion string `json:"until_version"`
}

// Policy is a policy definition, or a group of them.
type Policy struct {
	Name              string          `json:"name"`
	Type              Kind            `json:"type"`
	Caption           string          `json:"caption"`
	Desc              string          `json:"desc"`
	Items             []Item          `json:"items"`
	SupportedOn       []Support       `json:"supported_on"`
	Features          map[string]bool `json:"features"`
	ExampleValue      any             `json:"example_value"`
	Schema            any             `json:"schema"`
	DescriptionSchema any             `json:"description_schema"`
	URLSchema         string          `json:"url_schema"`
	ArcSupport        string          `json:"arc_support"`
	AtomicGroup       string          `json:"atomic_group"`
	Policies          []Policy        `json:"policies"`
}

// Message is a localized string.
type Message struct {
	Text string `json:"text"`
}

// Templates are the policy definitions with their localized messages.
type Templates struct {
	Policies []Policy           `json:"policy_definitions"`
	Messages map[string]Message `json:"messages"`
}

// LoadTemplates decodes policy templates. Numbers are kept as json.Number so that
// integer examples print without a fraction.
func LoadTemplates(r io.Reader) (Templates, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var t Templates
	if err := dec.Decode(&t); err != nil {
		return Templates{}, fmt.Errorf("could not decode policy templates: %v", err)
	}
	return t, nil
}

// supportedOn reports if p is available on platform. "win" also covers "win7".
func (p Policy) supportedOn(platform string) bool {
	for _, s := range p.SupportedOn {
		if s.Platform == platform || (platform == "win" && s.Platform == "win7") {
			return true
		}
	}
	return false
}

func (p Policy) supportedOnProduct(platform, product string) bool {
	for _, s := range p.SupportedOn {
		if s.Platform == platform && s.Product == product {
			return true
		}
	}
	return false
}

// recommendedOnly is true when the policy explicitly can not be mandatory.
func (p Policy) recommendedOnly() bool {
	mandatory, ok := p.Features["can_be_mandatory"]
	return ok && !mandatory
}
