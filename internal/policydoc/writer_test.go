package policydoc_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/browser-infra/buildtools/internal/policydoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const templates = `{
  "policy_definitions": [
    {
      "name": "Proxy",
      "type": "group",
      "caption": "Proxy server",
      "desc": "Configures the proxy.",
      "policies": [
        {
          "name": "ProxyMode",
          "type": "string-enum",
          "caption": "Choose how to specify proxy server settings",
          "desc": "See https://example.com/proxy.",
          "items": [{"name": "Direct", "value": "direct", "caption": "Never use a proxy"}],
          "supported_on": [{"product": "chrome", "platform": "linux", "since_version": "10"}],
          "example_value": "direct"
        }
      ]
    },
    {
      "name": "MaxConnections",
      "type": "int",
      "caption": "Maximal number of connections",
      "desc": "Limits connections.",
      "schema": {"type": "integer", "minimum": 1, "maximum": 99},
      "supported_on": [{"product": "chrome", "platform": "win", "since_version": "14", "until_version": "90"}],
      "features": {"dynamic_refresh": true},
      "example_value": 32
    }
  ],
  "messages": {
    "doc_back_to_top": {"text": "Back to top"},
    "doc_banner": {"text": "Banner"},
    "doc_data_type": {"text": "Data type:"},
    "doc_description": {"text": "Description:"},
    "doc_description_column_title": {"text": "Description"},
    "doc_example_value": {"text": "Example value:"},
    "doc_feature_dynamic_refresh": {"text": "Dynamic Policy Refresh"},
    "doc_intro": {"text": "Intro"},
    "doc_mac_linux_pref_name": {"text": "Preference name:"},
    "doc_name_column_title": {"text": "Policy name"},
    "doc_not_supported": {"text": "No"},
    "doc_oma_uri": {"text": "OMA-URI:"},
    "doc_since_version": {"text": "since version $6"},
    "doc_until_version": {"text": "until version $6"},
    "doc_supported": {"text": "Yes"},
    "doc_supported_features": {"text": "Supported features:"},
    "doc_supported_on": {"text": "Supported on:"},
    "doc_win_reg_loc": {"text": "Windows registry location:"}
  }
}`

func TestWrite(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		dropMessage string
		schemaRef   string

		wantInOutput []string
		wantErr      bool
	}{
		"Groups and policies": {wantInOutput: []string{
			`<td colspan="2" style="style_td;style_td.left;padding-left: 7px;"><a href="#Proxy">Proxy server</a></td>`,
			`<td style="style_td;style_td.left;padding-left: 21px;"><a href="#ProxyMode">ProxyMode</a></td>`,
			`<td style="style_td;style_td.left;padding-left: 7px;"><a href="#MaxConnections">MaxConnections</a></td>`,
			`<div style="margin-left: 0px"><h2><a name="Proxy"/>Proxy server</h2>`,
			`<div style="margin-left: 28px"><h3><a name="ProxyMode"/>ProxyMode</h3>`,
			`<p>See <a href="https://example.com/proxy">https://example.com/proxy</a>.</p><ul><li>&quot;direct&quot; = Never use a proxy</li></ul>`,
			`<li>Chrome (Windows) since version 14 until version 90</li>`,
			`<dd>Dynamic Policy Refresh: Yes</dd>`,
			`<li>Minimum: 1</li><li>Maximum: 99</li>`,
			`<dd>0x00000020 (Windows)<dl><dt>Windows (Intune):</dt>`,
			`<dd style="style_.monospace;">HKEY_LOCAL_MACHINE\Software\Policies\Chrome\MaxConnections</dd>`,
		}},

		"Error on missing message":             {dropMessage: "doc_banner", wantErr: true},
		"Error on undeclared schema reference": {schemaRef: "Nowhere", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tmpl, err := policydoc.LoadTemplates(strings.NewReader(templates))
			require.NoError(t, err, "Setup: templates should load")
			delete(tmpl.Messages, tc.dropMessage)
			if tc.schemaRef != "" {
				tmpl.Policies = append(tmpl.Policies, policydoc.Policy{
					Name:   "Bookmarks",
					Type:   policydoc.KindDict,
					Schema: map[string]any{"$ref": tc.schemaRef},
				})
			}

			cfg := policydoc.Config{
				AppName:   "Chrome",
				WinConfig: map[string]policydoc.RegistryKeys{"win": {Mandatory: `HKEY_LOCAL_MACHINE\Software\Policies\Chrome`}},
			}
			got, err := policydoc.New(cfg, tmpl.Messages, policydoc.WithTestStyles()).Write(tmpl.Policies)
			if tc.wantErr {
				require.Error(t, err, "Write should fail")
				return
			}
			require.NoError(t, err, "Write should not fail")

			assert.True(t, strings.HasPrefix(got, "<div>"), "Documentation should be a single div")
			for _, want := range tc.wantInOutput {
				assert.Contains(t, got, want, "Documentation should contain the expected fragment")
			}
		})
	}
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string

		wantErr bool
	}{
		"Valid templates":            {content: templates},
		"Error on unknown type":      {content: `{"policy_definitions": [{"name": "A", "type": "float"}]}`, wantErr: true},
		"Error on malformed content": {content: `{"policy_definitions": [`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tmpl, err := policydoc.LoadTemplates(strings.NewReader(tc.content))
			if tc.wantErr {
				require.Error(t, err, "LoadTemplates should fail")
				return
			}
			require.NoError(t, err, "LoadTemplates should not fail")
			require.Len(t, tmpl.Policies, 2, "Unexpected number of top level policies")
			assert.Equal(t, policydoc.KindGroup, tmpl.Policies[0].Type, "First policy should be a group")
			assert.Equal(t, json.Number("32"), tmpl.Policies[1].ExampleValue, "Numbers should be kept as written")
		})
	}
}

func TestResolveRefs(t *testing.T) {
	t.Parallel()

	node := map[string]any{
		"id":    "Node",
		"type":  "object",
		"items": map[string]any{"$ref": "Node"},
	}
	ids := policydoc.SchemaIDs([]policydoc.Policy{{Name: "Tree", Type: policydoc.KindDict, Schema: node}})
	require.Contains(t, ids, "Node", "Declared schemas should be indexed")

	tests := map[string]struct {
		schema any

		want    any
		wantErr bool
	}{
		"Schema without reference": {schema: map[string]any{"type": "string"}, want: map[string]any{"type": "string"}},
		"Reference is expanded once": {schema: map[string]any{"$ref": "Node"}, want: map[string]any{
			"id":    "Node",
			"type":  "object",
			"items": map[string]any{"$ref": "Node"},
		}},
		"References in lists are expanded": {schema: []any{map[string]any{"$ref": "Node"}}, want: []any{map[string]any{
			"id":    "Node",
			"type":  "object",
			"items": map[string]any{"$ref": "Node"},
		}}},

		"Error on undeclared reference": {schema: map[string]any{"$ref": "Leaf"}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := policydoc.ResolveRefs(tc.schema, ids)
			if tc.wantErr {
				require.Error(t, err, "ResolveRefs should fail")
				return
			}
			require.NoError(t, err, "ResolveRefs should not fail")
			assert.Equal(t, tc.want, got, "Unexpected resolved schema")
		})
	}
}
