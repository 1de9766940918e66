package policydoc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const omaPrefix = `.\Device\Vendor\MSFT\Policy\Config\Chrome~Policy~chromium\`

func TestSkeleton(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		version string

		wantPrefix string
	}{
		"Without version":                 {},
		"With version annotation comment": {version: "39.0.0.0", wantPrefix: "<!--test_product version: 39.0.0.0-->"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.Version = tc.version
			d := New(cfg, testMessages(), WithTestStyles()).newDocument(nil)

			want := "<div>" + tc.wantPrefix +
				`<div style="style_div.banner;"><p>_test_banner</p></div>` +
				`<div>` +
				`<a name="top"/><br/><p>_test_intro</p><br/><br/><br/>` +
				`<table style="style_table;">` +
				`<thead><tr style="style_tr;">` +
				`<td style="style_td;style_td.left;style_thead td;">_test_name_column_title</td>` +
				`<td style="style_td;style_td.right;style_thead td;">_test_description_column_title</td>` +
				`</tr></thead>` +
				`<tbody/>` +
				`</table>` +
				`</div>` +
				`<div/>` +
				`</div>`
			assert.Equal(t, want, d.beginTemplate().String(), "Unexpected document skeleton")
			assert.Empty(t, d.missing, "No message should be missing")
		})
	}
}

func TestStyled(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		styles []string

		want string
	}{
		"No style":   {want: `<z a="b">text</z>`},
		"One style":  {styles: []string{"key1"}, want: `<z a="b" style="style1;">text</z>`},
		"Two styles": {styles: []string{"key1", "key2"}, want: `<z a="b" style="style1;style2;">text</z>`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d, root := newTestDocument()
			e := d.styled(root, "z", tc.styles, map[string]string{"a": "b"}, "text")
			assert.Equal(t, tc.want, e.String(), "Unexpected styled element")
		})
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()

	d := New(testConfig(), map[string]Message{"doc_hello_world": {Text: "hello, vilag!"}}).newDocument(nil)
	assert.Equal(t, "hello, vilag!", d.msg("hello_world"), "Unexpected localized message")
	assert.Empty(t, d.missing, "Found messages should not be reported")

	assert.Empty(t, d.msg("goodbye"), "Missing messages should be empty")
	assert.Equal(t, map[string]bool{"doc_goodbye": true}, d.missing, "Missing messages should be reported")
}

func TestAddDescription(t *testing.T) {
	t.Parallel()

	const desc = "This policy disables foo, except in case of bar.\nSee http://policy-explanation.example.com for more details.\n"
	const wantDesc = "<p>This policy disables foo, except in case of bar.\n" +
		`See <a href="http://policy-explanation.example.com">http://policy-explanation.example.com</a> for more details.` + "\n</p>"

	tests := map[string]struct {
		policy Policy

		want string
	}{
		"Integer choices are listed": {
			policy: Policy{Type: KindIntEnum, Desc: desc, Items: []Item{
				{Value: 0, Caption: "Disable foo"}, {Value: 2, Caption: "Solve your problem"}, {Value: 5, Caption: "Enable bar"}}},
			want: wantDesc + "<ul><li>0 = Disable foo</li><li>2 = Solve your problem</li><li>5 = Enable bar</li></ul>",
		},
		"String choices are quoted": {
			policy: Policy{Type: KindStringEnum, Desc: desc, Items: []Item{
				{Value: "one", Caption: "Disable foo"}, {Value: "two", Caption: "Solve your problem"}, {Value: "three", Caption: "Enable bar"}}},
			want: wantDesc + "<ul><li>&quot;one&quot; = Disable foo</li><li>&quot;two&quot; = Solve your problem</li><li>&quot;three&quot; = Enable bar</li></ul>",
		},
		"Integer range is listed": {
			policy: Policy{Type: KindInt, Desc: "Delay.", Schema: map[string]any{"type": "integer", "minimum": 1, "maximum": 10}},
			want:   `<p>Delay.</p><ul style="style_ul;"><li>Minimum: 1</li><li>Maximum: 10</li></ul>`,
		},
		"Zero minimum is omitted": {
			policy: Policy{Type: KindInt, Desc: "Delay.", Schema: map[string]any{"type": "integer", "minimum": 0, "maximum": 10}},
			want:   `<p>Delay.</p><ul style="style_ul;"><li>Maximum: 10</li></ul>`,
		},
		"Integer without range": {
			policy: Policy{Type: KindInt, Desc: "Delay.", Schema: map[string]any{"type": "integer"}},
			want:   `<p>Delay.</p>`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d, root := newTestDocument()
			d.addDescription(root, tc.policy)
			assert.Equal(t, "<root>"+tc.want+"</root>", root.String(), "Unexpected description")
		})
	}
}

func TestAddSchema(t *testing.T) {
	t.Parallel()

	d, root := newTestDocument()
	d.addSchema(root, map[string]any{
		"properties": map[string]any{"foo": map[string]any{"type": "integer"}},
		"type":       "object",
	})

	assert.Equal(t, "<root>"+dt("_test_schema")+pre(schemaFoo)+"</root>", root.String(), "Unexpected schema")
	assert.NoError(t, d.err, "Schema without references should not fail")
}

func TestAddSchemaResolvesReferences(t *testing.T) {
	t.Parallel()

	w := New(testConfig(), testMessages(), WithTestStyles())
	d := w.newDocument(map[string]any{"Foo": map[string]any{"id": "Foo", "type": "integer"}})
	root := element("root")
	d.addSchema(root, map[string]any{"properties": map[string]any{"foo": map[string]any{"$ref": "Foo"}}})

	want := "{\n" +
		"  &quot;properties&quot;: {\n" +
		"    &quot;foo&quot;: {\n" +
		"      &quot;id&quot;: &quot;Foo&quot;, \n" +
		"      &quot;type&quot;: &quot;integer&quot;\n" +
		"    }\n" +
		"  }\n" +
		"}"
	assert.Equal(t, "<root>"+dt("_test_schema")+pre(want)+"</root>", root.String(), "Unexpected resolved schema")
}

func TestAddTextWithLinks(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		text string

		want string
	}{
		"Only a URL":           {text: "https://example.com/details", want: `<a href="https://example.com/details">https://example.com/details</a>`},
		"URL inside text":      {text: "See http://a.example.com/x for more.", want: `See <a href="http://a.example.com/x">http://a.example.com/x</a> for more.`},
		"Trailing dot dropped": {text: "Go to https://example.com.", want: `Go to <a href="https://example.com">https://example.com</a>.`},
		"No URL":               {text: "Plain text", want: "Plain text"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d, root := newTestDocument()
			d.addTextWithLinks(root, tc.text)
			assert.Equal(t, "<root>"+tc.want+"</root>", root.String(), "Unexpected linkified text")
		})
	}
}

func TestAddFeatures(t *testing.T) {
	t.Parallel()

	d, root := newTestDocument()
	d.addFeatures(root, Policy{Features: map[string]bool{
		"spaceship_docking":  false,
		"dynamic_refresh":    true,
		"can_be_recommended": true,
	}})

	assert.Equal(t, "<root>"+
		"_test_feature_recommended: _test_supported, "+
		"_test_feature_dynamic_refresh: _test_supported, "+
		"Spaceship Docking: _test_not_supported"+
		"</root>", root.String(), "Unexpected features")
}

func TestAddExample(t *testing.T) {
	t.Parallel()

	allPlatforms := supportedOn("chrome.win:1", "chrome.mac:1", "chrome.linux:1", "chrome.android:1")

	tests := map[string]struct {
		policy Policy

		want string
	}{
		"Enabled boolean": {
			policy: Policy{Name: "PolicyName", Type: KindMain, ExampleValue: true, SupportedOn: allPlatforms},
			want:   "0x00000001 (Windows), true (Linux), true (Android), &lt;true /&gt; (Mac)" + intuneExample("enabled"),
		},
		"Disabled boolean": {
			policy: Policy{Name: "PolicyName", Type: KindMain, ExampleValue: false, SupportedOn: allPlatforms},
			want:   "0x00000000 (Windows), false (Linux), false (Android), &lt;false /&gt; (Mac)" + intuneExample("disabled"),
		},
		"Integer choice": {
			policy: Policy{Name: "PolicyName", Type: KindIntEnum, ExampleValue: 16, SupportedOn: allPlatforms},
			want:   "0x00000010 (Windows), 16 (Linux), 16 (Android), 16 (Mac)" + intuneExample("enabled", "PolicyName", "16"),
		},
		"Integer": {
			policy: Policy{Name: "PolicyName", Type: KindInt, ExampleValue: 26, SupportedOn: allPlatforms},
			want:   "0x0000001a (Windows), 26 (Linux), 26 (Android), 26 (Mac)" + intuneExample("enabled", "PolicyName", "26"),
		},
		"String choice": {
			policy: Policy{Name: "PolicyName", Type: KindStringEnum, ExampleValue: "wacky"},
			want:   "&quot;wacky&quot;",
		},
		"String": {
			policy: Policy{Name: "PolicyName", Type: KindString, ExampleValue: "awesome-example"},
			want:   "&quot;awesome-example&quot;",
		},
		"String on Windows": {
			policy: Policy{Name: "PolicyName", Type: KindString, ExampleValue: "False", SupportedOn: supportedOn("chrome.win:1")},
			want:   "&quot;False&quot;" + intuneExample("enabled", "PolicyName", "False"),
		},
		"List": {
			policy: Policy{Name: "PolicyName", Type: KindList, ExampleValue: []any{"one", "two"}, SupportedOn: supportedOn("chrome.linux:1")},
			want:   `<dl style="style_dd dl;"><dt>Android/Linux:</dt>` + pre("[\n  &quot;one&quot;,\n  &quot;two&quot;\n]") + "</dl>",
		},
		"List of string choices": {
			policy: Policy{Name: "PolicyName", Type: KindStringEnumList, ExampleValue: []any{"one", "two"}, SupportedOn: supportedOn("chrome.linux:1")},
			want:   `<dl style="style_dd dl;"><dt>Android/Linux:</dt>` + pre("[\n  &quot;one&quot;,\n  &quot;two&quot;\n]") + "</dl>",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d, root := newTestDocument()
			d.addExample(root, tc.policy)
			assert.Equal(t, "<root>"+tc.want+"</root>", root.String(), "Unexpected example")
		})
	}
}

func TestAddListExample(t *testing.T) {
	t.Parallel()

	d, root := newTestDocument()
	d.addListExample(root, Policy{
		Name:         "PolicyName",
		ExampleValue: []any{"Foo", "Bar"},
		SupportedOn:  supportedOn("chrome.win:1", "chrome.mac:1", "chrome.linux:1", "chrome.chrome_os:1"),
	})

	assert.Equal(t, "<root>"+
		`<dl style="style_dd dl;">`+
		"<dt>_test_example_value_win</dt>"+
		pre(`MockKey\PolicyName\1 = &quot;Foo&quot;`+"\n"+`MockKey\PolicyName\2 = &quot;Bar&quot;`)+
		"<dt>Android/Linux:</dt>"+
		pre("[\n  &quot;Foo&quot;,\n  &quot;Bar&quot;\n]")+
		"<dt>Mac:</dt>"+
		pre("&lt;array&gt;\n  &lt;string&gt;Foo&lt;/string&gt;\n  &lt;string&gt;Bar&lt;/string&gt;\n&lt;/array&gt;")+
		"</dl>"+
		"</root>", root.String(), "Unexpected list example")
}

func TestAddDictionaryExample(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		policy Policy

		wantJSON  string
		wantPlist string
	}{
		"Nested dictionary": {
			policy: Policy{Type: KindDict, ExampleValue: map[string]any{
				"ProxyMode": "direct",
				"List":      []any{"1", "2", "3"},
				"True":      true,
				"False":     false,
				"Integer":   123,
				"DictList":  []any{map[string]any{"A": 1, "B": 2}, map[string]any{"C": 3, "D": 4}},
			}},
			wantJSON: "{\n" +
				"  &quot;DictList&quot;: [\n" +
				"    {\n" +
				"      &quot;A&quot;: 1, \n" +
				"      &quot;B&quot;: 2\n" +
				"    }, \n" +
				"    {\n" +
				"      &quot;C&quot;: 3, \n" +
				"      &quot;D&quot;: 4\n" +
				"    }\n" +
				"  ], \n" +
				"  &quot;False&quot;: false, \n" +
				"  &quot;Integer&quot;: 123, \n" +
				"  &quot;List&quot;: [\n" +
				"    &quot;1&quot;, \n" +
				"    &quot;2&quot;, \n" +
				"    &quot;3&quot;\n" +
				"  ], \n" +
				"  &quot;ProxyMode&quot;: &quot;direct&quot;, \n" +
				"  &quot;True&quot;: true\n" +
				"}",
			wantPlist: "&lt;dict&gt;\n" +
				"  &lt;key&gt;DictList&lt;/key&gt;\n" +
				"  &lt;array&gt;\n" +
				"    &lt;dict&gt;\n" +
				"      &lt;key&gt;A&lt;/key&gt;\n" +
				"      &lt;integer&gt;1&lt;/integer&gt;\n" +
				"      &lt;key&gt;B&lt;/key&gt;\n" +
				"      &lt;integer&gt;2&lt;/integer&gt;\n" +
				"    &lt;/dict&gt;\n" +
				"    &lt;dict&gt;\n" +
				"      &lt;key&gt;C&lt;/key&gt;\n" +
				"      &lt;integer&gt;3&lt;/integer&gt;\n" +
				"      &lt;key&gt;D&lt;/key&gt;\n" +
				"      &lt;integer&gt;4&lt;/integer&gt;\n" +
				"    &lt;/dict&gt;\n" +
				"  &lt;/array&gt;\n" +
				"  &lt;key&gt;False&lt;/key&gt;\n" +
				"  &lt;false/&gt;\n" +
				"  &lt;key&gt;Integer&lt;/key&gt;\n" +
				"  &lt;integer&gt;123&lt;/integer&gt;\n" +
				"  &lt;key&gt;List&lt;/key&gt;\n" +
				"  &lt;array&gt;\n" +
				"    &lt;string&gt;1&lt;/string&gt;\n" +
				"    &lt;string&gt;2&lt;/string&gt;\n" +
				"    &lt;string&gt;3&lt;/string&gt;\n" +
				"  &lt;/array&gt;\n" +
				"  &lt;key&gt;ProxyMode&lt;/key&gt;\n" +
				"  &lt;string&gt;direct&lt;/string&gt;\n" +
				"  &lt;key&gt;True&lt;/key&gt;\n" +
				"  &lt;true/&gt;\n" +
				"&lt;/dict&gt;",
		},
		"External data reference": {
			policy: Policy{Type: KindExternal, ExampleValue: map[string]any{
				"url":  "https://example.com/avatar.jpg",
				"hash": "deadbeef",
			}},
			wantJSON:  externalJSON,
			wantPlist: externalPlist,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tc.policy.Name = "PolicyName"
			tc.policy.SupportedOn = supportedOn("chrome.win:7", "chrome.mac:7", "chrome.linux:7")

			d, root := newTestDocument()
			d.addDictionaryExample(root, tc.policy)
			assert.Equal(t, "<root>"+
				`<dl style="style_dd dl;">`+
				"<dt>_test_example_value_win</dt>"+
				pre(`MockKey\PolicyName = `+tc.wantJSON)+
				"<dt>Android/Linux:</dt>"+
				pre("PolicyName: "+tc.wantJSON)+
				"<dt>Mac:</dt>"+
				pre("&lt;key&gt;PolicyName&lt;/key&gt;\n"+tc.wantPlist)+
				"</dl>"+
				"</root>", root.String(), "Unexpected dictionary example")
		})
	}
}

func TestAddPolicyAttribute(t *testing.T) {
	t.Parallel()

	d, root := newTestDocument()
	d.addPolicyAttribute(root, "bla", "hello, world", []string{"key1"})
	assert.Equal(t, "<root>"+dt("_test_bla")+`<dd style="style1;">hello, world</dd></root>`, root.String(), "Unexpected attribute")
}

func TestAddPolicyDetails(t *testing.T) {
	t.Parallel()

	features := map[string]bool{"dynamic_refresh": false}
	description := dt("_test_description") + "<dd><p>TestPolicyDesc</p></dd>"

	tests := map[string]struct {
		policy Policy

		want string
	}{
		"Boolean on every platform": {
			policy: Policy{
				Type:        KindMain,
				ArcSupport:  "TestArcSupportNote",
				SupportedOn: supportedOn("chrome.win:8", "chrome.mac:8", "chrome.linux:8", "chrome.android:30", "webview.android:47", "chrome.chrome_os:55"),
			},
			want: dt("_test_data_type") + "<dd>Boolean [Windows:REG_DWORD]</dd>" +
				dt("_test_win_reg_loc") + mono(`MockKey\TestPolicyName`) +
				dt("_test_oma_uri") + mono(omaPrefix+"TestPolicyName") +
				dt("_test_mac_linux_pref_name") + mono("TestPolicyName") +
				dt("_test_android_restriction_name") + mono("TestPolicyName") +
				dt("_test_android_webview_restriction_name") + mono("mock.prefix:TestPolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Windows) ..8..", "Chrome (Mac) ..8..", "Chrome (Linux) ..8..", "Chrome (Android) ..30..", "WebView (Android) ..47..", "Chrome (ChromeOS) ..55..") +
				noDynamicRefresh() + description +
				dt("_test_arc_support") + "<dd><p>TestArcSupportNote</p></dd>" +
				dt("_test_example_value") +
				"<dd>0x00000000 (Windows), false (Linux), false (Android), &lt;false /&gt; (Mac)" + intuneExample("disabled") + "</dd>",
		},
		"Boolean on Linux without ARC support": {
			policy: Policy{Type: KindMain, SupportedOn: supportedOn("chrome.linux:8")},
			want: dt("_test_data_type") + "<dd>Boolean</dd>" +
				dt("_test_mac_linux_pref_name") + mono("TestPolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Linux) ..8..") +
				noDynamicRefresh() + description +
				dt("_test_example_value") + "<dd>false (Linux)</dd>",
		},
		"Recommended only": {
			policy: Policy{
				Type:        KindMain,
				Features:    map[string]bool{"dynamic_refresh": false, "can_be_mandatory": false, "can_be_recommended": true},
				SupportedOn: supportedOn("chrome.win:8", "chrome.mac:8", "chrome.linux:8", "chrome.android:30", "chrome.chrome_os:53"),
			},
			want: dt("_test_data_type") + "<dd>Boolean [Windows:REG_DWORD]</dd>" +
				dt("_test_win_reg_loc") + mono(`MockKeyRec\TestPolicyName`) +
				dt("_test_oma_uri") + mono(omaPrefix+"TestPolicyName") +
				dt("_test_mac_linux_pref_name") + mono("TestPolicyName") +
				dt("_test_android_restriction_name") + mono("TestPolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Windows) ..8..", "Chrome (Mac) ..8..", "Chrome (Linux) ..8..", "Chrome (Android) ..30..", "Chrome (ChromeOS) ..53..") +
				dt("_test_supported_features") +
				"<dd>_test_feature_mandatory: _test_not_supported, _test_feature_recommended: _test_supported, _test_feature_dynamic_refresh: _test_not_supported</dd>" +
				description +
				dt("_test_example_value") +
				"<dd>0x00000000 (Windows), false (Linux), false (Android), &lt;false /&gt; (Mac)" + intuneExample("disabled") + "</dd>",
		},
		"Dictionary": {
			policy: Policy{
				Type: KindDict,
				Schema: map[string]any{
					"properties": map[string]any{"foo": map[string]any{"type": "integer"}},
					"type":       "object",
				},
				URLSchema:    "https://example.com/details",
				ExampleValue: map[string]any{"foo": 123},
				SupportedOn:  supportedOn("chrome.win:8", "chrome.mac:8", "chrome.linux:8", "chrome_os.chrome_os:8"),
			},
			want: dt("_test_data_type") + "<dd>Dictionary [Windows:REG_SZ] (_test_complex_policies_win)</dd>" +
				dt("_test_win_reg_loc") + mono(`MockKey\TestPolicyName`) +
				dt("_test_oma_uri") + mono(omaPrefix+"TestPolicyName") +
				dt("_test_mac_linux_pref_name") + mono("TestPolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Windows) ..8..", "Chrome (Mac) ..8..", "Chrome (Linux) ..8..", "ChromeOS (ChromeOS) ..8..") +
				noDynamicRefresh() + description +
				dt("_test_schema") + pre(schemaFoo) +
				dt("_test_url_schema") + `<dd><a href="https://example.com/details">https://example.com/details</a></dd>` +
				dt("_test_example_value") + "<dd>" +
				`<dl style="style_dd dl;">` +
				"<dt>_test_example_value_win</dt>" + pre(`MockKey\TestPolicyName = {`+"\n  &quot;foo&quot;: 123\n}") +
				"<dt>Android/Linux:</dt>" + pre("TestPolicyName: {\n  &quot;foo&quot;: 123\n}") +
				"<dt>Mac:</dt>" + pre("&lt;key&gt;TestPolicyName&lt;/key&gt;\n&lt;dict&gt;\n  &lt;key&gt;foo&lt;/key&gt;\n  &lt;integer&gt;123&lt;/integer&gt;\n&lt;/dict&gt;") +
				"</dl>" +
				intuneExample("enabled", "TestPolicyName", "&quot;foo&quot;: 123") +
				"</dd>",
		},
		"External data reference": {
			policy: Policy{
				Type: KindExternal,
				DescriptionSchema: map[string]any{
					"properties": map[string]any{"url": map[string]any{"type": "string"}, "hash": map[string]any{"type": "string"}},
					"type":       "object",
				},
				ExampleValue: map[string]any{"url": "https://example.com/avatar.jpg", "hash": "deadbeef"},
				SupportedOn:  supportedOn("chrome.win:8", "chrome.mac:8", "chrome.linux:8"),
			},
			want: dt("_test_data_type") + "<dd>External data reference [Windows:REG_SZ] (_test_complex_policies_win)</dd>" +
				dt("_test_win_reg_loc") + mono(`MockKey\TestPolicyName`) +
				dt("_test_oma_uri") + mono(omaPrefix+"TestPolicyName") +
				dt("_test_mac_linux_pref_name") + mono("TestPolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Windows) ..8..", "Chrome (Mac) ..8..", "Chrome (Linux) ..8..") +
				noDynamicRefresh() + description +
				dt("_test_schema") + pre(externalSchema) +
				dt("_test_example_value") + "<dd>" +
				`<dl style="style_dd dl;">` +
				"<dt>_test_example_value_win</dt>" + pre(`MockKey\TestPolicyName = `+externalJSON) +
				"<dt>Android/Linux:</dt>" + pre("TestPolicyName: "+externalJSON) +
				"<dt>Mac:</dt>" + pre("&lt;key&gt;TestPolicyName&lt;/key&gt;\n"+externalPlist) +
				"</dl>" +
				intuneExample("enabled", "TestPolicyName", "&quot;hash&quot;: &quot;deadbeef&quot;, &quot;url&quot;: &quot;https://example.com/avatar.jpg&quot;") +
				"</dd>",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := tc.policy
			p.Name = "TestPolicyName"
			p.Caption = "TestPolicyCaption"
			p.Desc = "TestPolicyDesc"
			if p.Features == nil {
				p.Features = features
			}
			if p.ExampleValue == nil {
				p.ExampleValue = false
			}

			d, root := newTestDocument()
			d.addPolicyDetails(root, p)
			assert.Equal(t, "<root><dl>"+tc.want+"</dl></root>", root.String(), "Unexpected policy details")
			assert.Empty(t, d.missing, "No message should be missing")
		})
	}
}

func TestAddPolicyRow(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		kind   Kind
		indent int

		want string
	}{
		"Policy": {kind: KindString, indent: 3, want: `<tr style="style_tr;">` +
			`<td style="style_td;style_td.left;padding-left: 49px;"><a href="#PolicyName">PolicyName</a></td>` +
			`<td style="style_td;style_td.right;">PolicyCaption</td>` +
			`</tr>`},
		"Group": {kind: KindGroup, indent: 2, want: `<tr style="style_tr;">` +
			`<td colspan="2" style="style_td;style_td.left;padding-left: 35px;"><a href="#PolicyName">PolicyCaption</a></td>` +
			`</tr>`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d, root := newTestDocument()
			d.indent = tc.indent
			d.addPolicyRow(root, Policy{Name: "PolicyName", Caption: "PolicyCaption", Type: tc.kind})
			assert.Equal(t, "<root>"+tc.want+"</root>", root.String(), "Unexpected summary row")
		})
	}
}

func TestAddPolicySection(t *testing.T) {
	t.Parallel()

	features := noDynamicRefresh()
	description := dt("_test_description") + "<dd><p>PolicyDesc</p></dd>"
	stringIntune := intuneExample("enabled", "PolicyName", "False")
	integerIntune := intuneExample("enabled", "PolicyName", "123")
	windowsLocation := dt("_test_win_reg_loc") + mono(`MockKey\PolicyName`) + dt("_test_oma_uri") + mono(omaPrefix+"PolicyName")

	tests := map[string]struct {
		policy Policy

		wantDetails string
	}{
		"String": {
			policy: Policy{Type: KindString, ExampleValue: "False", SupportedOn: supportedOn("chrome.win:7", "chrome.mac:7", "chrome_os.chrome_os:7")},
			wantDetails: dt("_test_data_type") + "<dd>String [Windows:REG_SZ]</dd>" + windowsLocation +
				dt("_test_mac_linux_pref_name") + mono("PolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Windows) ..7..", "Chrome (Mac) ..7..", "ChromeOS (ChromeOS) ..7..") +
				features + description +
				dt("_test_example_value") + "<dd>&quot;False&quot;" + stringIntune + "</dd>",
		},
		"String in an atomic group": {
			policy: Policy{Type: KindString, ExampleValue: "False", AtomicGroup: "PolicyGroup", SupportedOn: supportedOn("chrome.win:7", "chrome.mac:7", "chrome_os.chrome_os:7")},
			wantDetails: dt("_test_data_type") + "<dd>String [Windows:REG_SZ]</dd>" + windowsLocation +
				dt("_test_mac_linux_pref_name") + mono("PolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Windows) ..7..", "Chrome (Mac) ..7..", "ChromeOS (ChromeOS) ..7..") +
				features + description +
				dt("_test_example_value") + "<dd>&quot;False&quot;" + stringIntune + "</dd>" +
				dt("_test_policy_atomic_group") +
				`<dd>_test_policy_in_atomic_group <a href="./policy-list-3/atomic_groups#PolicyGroup">PolicyGroup</a></dd>`,
		},
		"Windows only": {
			policy: Policy{Type: KindInt, ExampleValue: 123, SupportedOn: supportedOn("chrome.win:33")},
			wantDetails: dt("_test_data_type") + "<dd>Integer [Windows:REG_DWORD]</dd>" + windowsLocation +
				dt("_test_supported_on") + supportedList("Chrome (Windows) ..33..") +
				features + description +
				dt("_test_example_value") + "<dd>0x0000007b (Windows)" + integerIntune + "</dd>",
		},
		"Windows 7 only": {
			policy: Policy{Type: KindInt, ExampleValue: 123, SupportedOn: supportedOn("chrome.win7:33")},
			wantDetails: dt("_test_data_type") + "<dd>Integer [Windows:REG_DWORD]</dd>" + windowsLocation +
				dt("_test_supported_on") + supportedList("Chrome (Windows 7) ..33..") +
				features + description +
				dt("_test_example_value") + "<dd>0x0000007b (Windows)" + integerIntune + "</dd>",
		},
		"Mac only": {
			policy: Policy{Type: KindInt, ExampleValue: 123, SupportedOn: supportedOn("chrome.mac:33")},
			wantDetails: dt("_test_data_type") + "<dd>Integer</dd>" +
				dt("_test_mac_linux_pref_name") + mono("PolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Mac) ..33..") +
				features + description +
				dt("_test_example_value") + "<dd>123 (Mac)</dd>",
		},
		"Linux only": {
			policy: Policy{Type: KindInt, ExampleValue: 123, SupportedOn: supportedOn("chrome.linux:33")},
			wantDetails: dt("_test_data_type") + "<dd>Integer</dd>" +
				dt("_test_mac_linux_pref_name") + mono("PolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Linux) ..33..") +
				features + description +
				dt("_test_example_value") + "<dd>123 (Linux)</dd>",
		},
		"Android only": {
			policy: Policy{Type: KindInt, ExampleValue: 123, SupportedOn: supportedOn("chrome.android:33")},
			wantDetails: dt("_test_data_type") + "<dd>Integer</dd>" +
				dt("_test_android_restriction_name") + mono("PolicyName") +
				dt("_test_supported_on") + supportedList("Chrome (Android) ..33..") +
				features + description +
				dt("_test_example_value") + "<dd>123 (Android)</dd>",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := tc.policy
			p.Name = "PolicyName"
			p.Caption = "PolicyCaption"
			p.Desc = "PolicyDesc"
			p.Features = map[string]bool{"dynamic_refresh": false}

			d, root := newTestDocument()
			d.addPolicySection(root, p)
			assert.Equal(t, "<root>"+
				`<div style="margin-left: 0px">`+
				`<h3><a name="PolicyName"/>PolicyName</h3>`+
				"<span>PolicyCaption</span>"+
				"<dl>"+tc.wantDetails+"</dl>"+
				`<a href="#top">_test_back_to_top</a>`+
				"</div>"+
				"</root>", root.String(), "Unexpected policy section")
		})
	}
}

func TestAddGroupSection(t *testing.T) {
	t.Parallel()

	d, root := newTestDocument()
	d.indent = 1
	d.addPolicySection(root, Policy{Name: "PolicyName", Caption: "PolicyCaption", Desc: "PolicyDesc", Type: KindGroup})
	assert.Equal(t, "<root>"+
		`<div style="margin-left: 28px">`+
		`<h2><a name="PolicyName"/>PolicyCaption</h2>`+
		`<div style="style_div.group_desc;">PolicyDesc</div>`+
		`<a href="#top">_test_back_to_top</a>`+
		"</div>"+
		"</root>", root.String(), "Unexpected group section")
}

func TestAddParagraphs(t *testing.T) {
	t.Parallel()

	d, root := newTestDocument()
	d.addParagraphs(root, "Paragraph 1\n\nParagraph 2\n\nParagraph 3")
	assert.Equal(t, "<root><p>Paragraph 1</p><p>Paragraph 2</p><p>Paragraph 3</p></root>", root.String(), "Unexpected paragraphs")
}

const schemaFoo = "{\n" +
	"  &quot;properties&quot;: {\n" +
	"    &quot;foo&quot;: {\n" +
	"      &quot;type&quot;: &quot;integer&quot;\n" +
	"    }\n" +
	"  }, \n" +
	"  &quot;type&quot;: &quot;object&quot;\n" +
	"}"

const externalSchema = "{\n" +
	"  &quot;properties&quot;: {\n" +
	"    &quot;hash&quot;: {\n" +
	"      &quot;type&quot;: &quot;string&quot;\n" +
	"    }, \n" +
	"    &quot;url&quot;: {\n" +
	"      &quot;type&quot;: &quot;string&quot;\n" +
	"    }\n" +
	"  }, \n" +
	"  &quot;type&quot;: &quot;object&quot;\n" +
	"}"

const externalJSON = "{\n" +
	"  &quot;hash&quot;: &quot;deadbeef&quot;, \n" +
	"  &quot;url&quot;: &quot;https://example.com/avatar.jpg&quot;\n" +
	"}"

const externalPlist = "&lt;dict&gt;\n" +
	"  &lt;key&gt;hash&lt;/key&gt;\n" +
	"  &lt;string&gt;deadbeef&lt;/string&gt;\n" +
	"  &lt;key&gt;url&lt;/key&gt;\n" +
	"  &lt;string&gt;https://example.com/avatar.jpg&lt;/string&gt;\n" +
	"&lt;/dict&gt;"

func newTestDocument() (*document, *node) {
	return New(testConfig(), testMessages(), WithTestStyles()).newDocument(nil), element("root")
}

func testConfig() Config {
	return Config{
		AppName:                         "Chrome",
		FrameName:                       "Chrome Frame",
		OSName:                          "ChromeOS",
		WebviewName:                     "WebView",
		AndroidWebviewRestrictionPrefix: "mock.prefix:",
		WinConfig: map[string]RegistryKeys{
			"win":       {Mandatory: "MockKey", Recommended: "MockKeyRec"},
			"chrome_os": {Mandatory: "MockKeyCrOS", Recommended: "MockKeyCrOSRec"},
		},
		Build: "test_product",
	}
}

func testMessages() map[string]Message {
	texts := map[string]string{
		"back_to_top":                      "_test_back_to_top",
		"complex_policies_on_windows":      "_test_complex_policies_win",
		"data_type":                        "_test_data_type",
		"description":                      "_test_description",
		"schema":                           "_test_schema",
		"url_schema":                       "_test_url_schema",
		"arc_support":                      "_test_arc_support",
		"description_column_title":         "_test_description_column_title",
		"example_value":                    "_test_example_value",
		"win_example_value":                "_test_example_value_win",
		"feature_dynamic_refresh":          "_test_feature_dynamic_refresh",
		"feature_can_be_recommended":       "_test_feature_recommended",
		"feature_can_be_mandatory":         "_test_feature_mandatory",
		"banner":                           "_test_banner",
		"intro":                            "_test_intro",
		"mac_linux_pref_name":              "_test_mac_linux_pref_name",
		"android_restriction_name":         "_test_android_restriction_name",
		"android_webview_restriction_name": "_test_android_webview_restriction_name",
		"note":                             "_test_note",
		"name_column_title":                "_test_name_column_title",
		"not_supported":                    "_test_not_supported",
		"since_version":                    "..$6..",
		"until_version":                    "until $6",
		"supported":                        "_test_supported",
		"supported_features":               "_test_supported_features",
		"supported_on":                     "_test_supported_on",
		"win_reg_loc":                      "_test_win_reg_loc",
		"chrome_os_reg_loc":                "_test_chrome_os_reg_loc",
		"oma_uri":                          "_test_oma_uri",
		"bla":                              "_test_bla",
		"policy_atomic_group":              "_test_policy_atomic_group",
		"policy_in_atomic_group":           "_test_policy_in_atomic_group",
	}
	messages := make(map[string]Message)
	for k, v := range texts {
		messages["doc_"+k] = Message{Text: v}
	}
	return messages
}

// supportedOn parses "product.platform:since" entries.
func supportedOn(entries ...string) []Support {
	var s []Support
	for _, e := range entries {
		product, rest, _ := strings.Cut(e, ".")
		platform, since, _ := strings.Cut(rest, ":")
		s = append(s, Support{Product: product, Platform: platform, SinceVersion: since})
	}
	return s
}

func dt(text string) string {
	return `<dt style="style_dt;">` + text + "</dt>"
}

func mono(text string) string {
	return `<dd style="style_.monospace;">` + text + "</dd>"
}

func pre(text string) string {
	return `<dd style="style_.monospace;style_.pre-wrap;">` + text + "</dd>"
}

func supportedList(items ...string) string {
	s := `<dd><ul style="style_ul;">`
	for _, i := range items {
		s += "<li>" + i + "</li>"
	}
	return s + "</ul></dd>"
}

func noDynamicRefresh() string {
	return dt("_test_supported_features") + "<dd>_test_feature_dynamic_refresh: _test_not_supported</dd>"
}

// intuneExample is the Intune payload with an optional id and escaped value pair.
func intuneExample(state string, data ...string) string {
	s := "<dl><dt>Windows (Intune):</dt>" + pre("&lt;"+state+"/&gt;")
	if len(data) == 2 {
		s += pre(fmt.Sprintf("&lt;data id=&quot;%s&quot; value=&quot;%s&quot;/&gt;", data[0], data[1]))
	}
	return s + "</dl>"
}
