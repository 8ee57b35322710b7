package settings_test

import (
	"testing"

	settings "github.com/goliatone/go-settings"
	openapi "github.com/goliatone/go-settings/schema/openapi"
)

func TestOpenAPIGeneratorIntegration(t *testing.T) {
	catalog := settings.MustCatalog(settings.Declaration{
		Identity: "service.FeatureSettings",
		Parameters: []settings.ParameterDecl{
			{Name: "enabled", Type: settings.TypeBool, Default: true},
			{Name: "name", Type: settings.TypeString, Default: "service"},
		},
	})
	manager, err := settings.NewManager(catalog, openapi.Option())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	doc, err := manager.Describe("feature")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if doc.Format != settings.SchemaFormatOpenAPI {
		t.Fatalf("expected format %q, got %q", settings.SchemaFormatOpenAPI, doc.Format)
	}
	schema, ok := doc.Document.(map[string]any)
	if !ok {
		t.Fatalf("expected schema map, got %T", doc.Document)
	}
	paths, ok := schema["paths"].(map[string]any)
	if !ok {
		t.Fatalf("expected paths map, got %T", schema["paths"])
	}
	pathItem, ok := paths["/settings/feature"].(map[string]any)
	if !ok {
		t.Fatalf("expected /settings/feature path map, got %v", paths)
	}
	operation, ok := pathItem["put"].(map[string]any)
	if !ok {
		t.Fatalf("expected put operation map, got %T", pathItem["put"])
	}
	requestBody, ok := operation["requestBody"].(map[string]any)
	if !ok {
		t.Fatalf("expected requestBody map, got %T", operation["requestBody"])
	}
	content, ok := requestBody["content"].(map[string]any)
	if !ok {
		t.Fatalf("expected content map, got %T", requestBody["content"])
	}
	media, ok := content["application/json"].(map[string]any)
	if !ok {
		t.Fatalf("expected application/json content, got %T", content["application/json"])
	}
	bodySchema, ok := media["schema"].(map[string]any)
	if !ok {
		t.Fatalf("expected schema map, got %T", media["schema"])
	}
	properties, ok := bodySchema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties map, got %T", bodySchema["properties"])
	}
	for _, key := range []string{"enabled", "name"} {
		if _, exists := properties[key]; !exists {
			t.Fatalf("expected properties to include %s", key)
		}
	}
}

func TestDescribeDefaultsToDescriptors(t *testing.T) {
	catalog := settings.MustCatalog(
		settings.Declaration{
			Identity:   "app.OuterSettings",
			Parameters: []settings.ParameterDecl{{Name: "title", Type: settings.TypeString, Default: "outer"}},
			Embeds:     []settings.EmbedDecl{{Name: "inner", Target: "app.InnerSettings"}},
		},
		settings.Declaration{
			Identity:   "app.InnerSettings",
			Parameters: []settings.ParameterDecl{{Name: "value", Type: settings.TypeInt, Default: 1}},
			Embeds:     []settings.EmbedDecl{{Name: "outer", Target: "app.OuterSettings"}},
		},
	)
	manager, err := settings.NewManager(catalog)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	doc, err := manager.Describe("outer")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if doc.Format != settings.SchemaFormatDescriptors {
		t.Fatalf("expected descriptors, got %q", doc.Format)
	}
	fields, ok := doc.Document.([]settings.FieldDescriptor)
	if !ok {
		t.Fatalf("expected descriptors slice, got %T", doc.Document)
	}
	want := []struct {
		path string
		typ  string
	}{
		{"title", settings.TypeString},
		{"inner.value", settings.TypeInt},
		{"inner.outer", "embed"},
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d descriptors, got %#v", len(want), fields)
	}
	for i, w := range want {
		if fields[i].Path != w.path || fields[i].Type != w.typ {
			t.Fatalf("descriptor %d: want %s/%s, got %s/%s", i, w.path, w.typ, fields[i].Path, fields[i].Type)
		}
	}
	if fields[1].Default != int64(1) {
		t.Fatalf("expected normalized default, got %#v", fields[1].Default)
	}
	if fields[2].Target != "app.OuterSettings" {
		t.Fatalf("expected cycle target, got %q", fields[2].Target)
	}
}
