package openapi

import (
	"reflect"
	"sync"
	"testing"
	"time"

	settings "github.com/goliatone/go-settings"
)

func TestNewGeneratorOptions(t *testing.T) {
	custom := NewGenerator(
		WithOpenAPIVersion("3.1.0"),
		WithInfo("Custom Service", "2.0.0", WithInfoDescription("custom schema")),
		WithOperation("/settings", "PUT", "updateSettings", WithOperationSummary("Update settings")),
		WithContentType("application/x-www-form-urlencoded"),
		WithResponse("201", "Created"),
	)

	internal, ok := custom.(generator)
	if !ok {
		t.Fatalf("expected generator implementation, got %T", custom)
	}

	if got := internal.config.openAPIVersion; got != "3.1.0" {
		t.Fatalf("expected openapi version 3.1.0, got %q", got)
	}
	if got := internal.config.info.Title; got != "Custom Service" {
		t.Fatalf("expected info title Custom Service, got %q", got)
	}
	if got := internal.config.info.Description; got != "custom schema" {
		t.Fatalf("expected info description custom schema, got %q", got)
	}
	if got := internal.config.write.Path; got != "/settings" {
		t.Fatalf("expected operation path /settings, got %q", got)
	}
	if got := internal.config.write.Method; got != "put" {
		t.Fatalf("expected method put, got %q", got)
	}
	if got := internal.config.write.OperationID; got != "updateSettings" {
		t.Fatalf("expected operation id updateSettings, got %q", got)
	}
	if got := internal.config.write.Summary; got != "Update settings" {
		t.Fatalf("expected operation summary Update settings, got %q", got)
	}
	if got := internal.config.contentType; got != "application/x-www-form-urlencoded" {
		t.Fatalf("expected content type application/x-www-form-urlencoded, got %q", got)
	}
	if got := internal.config.responses["201"].Description; got != "Created" {
		t.Fatalf("expected response description Created, got %q", got)
	}
	if _, exists := internal.config.responses["204"]; !exists {
		t.Fatalf("expected default 204 response to remain configured")
	}
	if internal.config.read != nil {
		t.Fatalf("expected no read operation unless requested")
	}
}

func TestGeneratorReadOperationAndInstanceKey(t *testing.T) {
	manager := newTestManager(t, Option(
		WithBasePath("admin/config/"),
		WithInstanceKeyParameter("tenant"),
		WithReadOperation("", "", "readMailer", WithOperationSummary("Read mailer settings")),
	))
	doc, err := manager.Describe("mailer")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	document := doc.Document.(map[string]any)
	if err := validateDocument(document); err != nil {
		t.Fatalf("invalid document: %v", err)
	}

	const path = "/admin/config/mailer/{tenant}"
	body := requestSchema(t, document, path, "put")
	if body["x-settings-identity"] != "app.MailerSettings" {
		t.Fatalf("expected write body for the mailer schema, got %v", body)
	}

	item := document["paths"].(map[string]any)[path].(map[string]any)
	write := item["put"].(map[string]any)
	if write["operationId"] != "put:"+path {
		t.Fatalf("expected derived write operation id, got %v", write["operationId"])
	}
	responses := write["responses"].(map[string]any)
	if _, ok := responses["422"]; !ok {
		t.Fatalf("expected validation failure response, got %v", responses)
	}

	read, ok := item["get"].(map[string]any)
	if !ok {
		t.Fatalf("expected get operation on %s, got %v", path, item)
	}
	if read["operationId"] != "readMailer" || read["summary"] != "Read mailer settings" {
		t.Fatalf("unexpected read operation %v", read)
	}
	if _, ok := read["requestBody"]; ok {
		t.Fatalf("expected read operation without request body")
	}
	ok200 := read["responses"].(map[string]any)["200"].(map[string]any)
	media := ok200["content"].(map[string]any)["application/json"].(map[string]any)
	if media["schema"].(map[string]any)["x-settings-identity"] != "app.MailerSettings" {
		t.Fatalf("expected read response to describe the normalized map, got %v", media)
	}
	params, _ := read["parameters"].([]any)
	if len(params) != 1 || params[0].(map[string]any)["name"] != "tenant" {
		t.Fatalf("expected tenant path parameter, got %v", read["parameters"])
	}
}

func TestGeneratorDescribesParameters(t *testing.T) {
	manager := newTestManager(t)
	doc, err := manager.Describe("mailer")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if doc.Format != settings.SchemaFormatOpenAPI {
		t.Fatalf("expected format %q, got %q", settings.SchemaFormatOpenAPI, doc.Format)
	}
	document, ok := doc.Document.(map[string]any)
	if !ok {
		t.Fatalf("expected map document, got %T", doc.Document)
	}
	if err := validateDocument(document); err != nil {
		t.Fatalf("invalid document: %v", err)
	}

	body := requestSchema(t, document, "/settings/mailer", "put")
	if body["x-settings-identity"] != "app.MailerSettings" {
		t.Fatalf("expected identity extension, got %v", body["x-settings-identity"])
	}
	if body["x-settings-version"] != 2 {
		t.Fatalf("expected version extension, got %v", body["x-settings-version"])
	}
	props := body["properties"].(map[string]any)

	host := props["host"].(map[string]any)
	if host["type"] != "string" || host["default"] != "localhost" || host["title"] != "SMTP host" {
		t.Fatalf("unexpected host schema: %v", host)
	}
	if host["minLength"] != 1 {
		t.Fatalf("expected host minLength 1, got %v", host["minLength"])
	}

	port := props["smtp_port"].(map[string]any)
	if port["type"] != "integer" || port["default"] != int64(25) {
		t.Fatalf("unexpected port schema: %v", port)
	}
	if port["minimum"] != float64(1) || port["maximum"] != float64(65535) {
		t.Fatalf("expected port bounds, got %v", port)
	}
	if port["x-settings-name"] != "port" {
		t.Fatalf("expected renamed key to publish parameter name, got %v", port["x-settings-name"])
	}

	mode := props["mode"].(map[string]any)
	if !reflect.DeepEqual(mode["enum"], []any{"smtp", "sendmail"}) {
		t.Fatalf("expected choice enum, got %v", mode["enum"])
	}

	timeout := props["timeout"].(map[string]any)
	if timeout["format"] != "duration" || timeout["default"] != "30s" {
		t.Fatalf("unexpected timeout schema: %v", timeout)
	}

	tags := props["tags"].(map[string]any)
	items := tags["items"].(map[string]any)
	if tags["type"] != "array" || items["type"] != "string" {
		t.Fatalf("unexpected list schema: %v", tags)
	}

	reply := props["reply_to"].(map[string]any)
	if reply["nullable"] != true {
		t.Fatalf("expected nullable reply_to, got %v", reply)
	}

	required, _ := body["required"].([]string)
	if !reflect.DeepEqual(required, []string{"host", "mode", "smtp_port", "tags", "timeout"}) {
		t.Fatalf("unexpected required list: %v", required)
	}
}

func TestGeneratorPublishesCyclicEmbedsAsComponents(t *testing.T) {
	manager := newTestManager(t)
	doc, err := manager.Describe("app.MailerSettings")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	document := doc.Document.(map[string]any)
	body := requestSchema(t, document, "/settings/mailer", "put")
	props := body["properties"].(map[string]any)
	creds := props["credentials"].(map[string]any)
	if creds["$ref"] != "#/components/schemas/Credentials" {
		t.Fatalf("expected credentials ref, got %v", creds)
	}

	components := document["components"].(map[string]any)["schemas"].(map[string]any)
	credentials, ok := components["Credentials"].(map[string]any)
	if !ok {
		t.Fatalf("expected Credentials component, got %v", components)
	}
	back := credentials["properties"].(map[string]any)["mailer"].(map[string]any)
	if back["$ref"] != "#/components/schemas/Mailer" {
		t.Fatalf("expected cycle to close with a ref, got %v", back)
	}
	if _, ok := components["Mailer"]; !ok {
		t.Fatalf("expected Mailer component for the back reference")
	}
}

func TestGeneratorRootComponent(t *testing.T) {
	manager := newTestManager(t, Option(WithRootComponent("MailerRoot")))
	doc, err := manager.Describe("mailer")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	document := doc.Document.(map[string]any)
	body := requestSchema(t, document, "/settings/mailer", "put")
	if body["$ref"] != "#/components/schemas/MailerRoot" {
		t.Fatalf("expected root ref, got %v", body)
	}
	components := document["components"].(map[string]any)["schemas"].(map[string]any)
	if _, ok := components["MailerRoot"]; !ok {
		t.Fatalf("expected MailerRoot component, got %v", components)
	}
	if _, ok := components["Mailer"]; ok {
		t.Fatalf("expected cycle back to root to reuse MailerRoot")
	}
}

func TestGeneratorConcurrentAccess(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)
	const goroutines = 16
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			doc, err := manager.Describe("mailer")
			if err != nil {
				t.Errorf("Describe returned error: %v", err)
				return
			}
			if doc.Document == nil {
				t.Errorf("expected document payload")
			}
		}()
	}
	wg.Wait()
}

func newTestManager(t *testing.T, opts ...settings.Option) *settings.Manager {
	t.Helper()
	catalog := settings.MustCatalog(
		settings.Declaration{
			Identity:  "app.MailerSettings",
			Version:   2,
			Migration: "mailer",
			Parameters: []settings.ParameterDecl{
				{Name: "host", Type: settings.TypeString, Default: "localhost", Label: "SMTP host", Options: map[string]any{"minLength": 1}},
				{Name: "port", Type: settings.TypeInt, Key: "smtp_port", Default: 25, Options: map[string]any{"minimum": 1, "maximum": 65535}},
				{Name: "mode", Type: settings.TypeChoice, Default: "smtp", Options: map[string]any{"choices": []string{"smtp", "sendmail"}}},
				{Name: "timeout", Type: settings.TypeDuration, Default: 30 * time.Second},
				{Name: "tags", Type: settings.TypeList, Default: []string{}},
				{Name: "reply_to", Type: settings.TypeString},
			},
			Embeds: []settings.EmbedDecl{{Name: "credentials", Target: "app.Credentials"}},
		},
		settings.Declaration{
			Identity:   "app.Credentials",
			Parameters: []settings.ParameterDecl{{Name: "username", Type: settings.TypeString, Default: "admin"}},
			Embeds:     []settings.EmbedDecl{{Name: "mailer", Target: "app.MailerSettings"}},
		},
	)
	manager, err := settings.NewManager(catalog, append([]settings.Option{Option()}, opts...)...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func requestSchema(t *testing.T, document map[string]any, path, method string) map[string]any {
	t.Helper()
	paths, ok := document["paths"].(map[string]any)
	if !ok {
		t.Fatalf("expected paths map, got %T", document["paths"])
	}
	item, ok := paths[path].(map[string]any)
	if !ok {
		t.Fatalf("expected path %s, got %v", path, paths)
	}
	operation, ok := item[method].(map[string]any)
	if !ok {
		t.Fatalf("expected %s operation, got %v", method, item)
	}
	content := operation["requestBody"].(map[string]any)["content"].(map[string]any)
	media := content["application/json"].(map[string]any)
	schema, ok := media["schema"].(map[string]any)
	if !ok {
		t.Fatalf("expected schema map, got %T", media["schema"])
	}
	return schema
}
