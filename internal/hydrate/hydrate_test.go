package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestDecoderFromFixtures(t *testing.T) {
	fx := loadFixture(t, "hydrate_mailer.json")

	for _, tc := range fx.Cases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			options := buildOptions(tc)
			decoder := NewDecoder[mailerSettings](options...)

			ctx := Context{
				Identity:    tc.Identity,
				InstanceKey: tc.InstanceKey,
			}

			result, err := decoder.Decode(ctx, tc.Input)

			if tc.ExpectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.ExpectErr)
				}
				if !strings.Contains(err.Error(), tc.ExpectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.ExpectErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}

			if !reflect.DeepEqual(tc.Expect, result) {
				t.Fatalf("decoded snapshot mismatch:\nwant: %#v\n got: %#v", tc.Expect, result)
			}
		})
	}
}

func TestDecoderBindsTypedValues(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	payload := map[string]any{
		"timeout":    90 * time.Second,
		"started_at": at,
		"recipients": []any{"a@example.com"},
	}
	type withTime struct {
		mailerSettings `settings:",squash"`
		StartedAt      time.Time `settings:"started_at"`
	}

	got, err := NewDecoder[withTime]().Decode(Context{Identity: "app.MailerSettings"}, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Timeout != 90*time.Second || !got.StartedAt.Equal(at) {
		t.Fatalf("typed values not preserved: %+v", got)
	}
	if len(got.Recipients) != 1 || got.Recipients[0] != "a@example.com" {
		t.Fatalf("unexpected recipients: %v", got.Recipients)
	}
}

func TestDecoderDoesNotMutatePayload(t *testing.T) {
	payload := map[string]any{"endpoint": "mail.example.com:25"}
	_, err := NewDecoder[mailerSettings](WithPreHook[mailerSettings](splitEndpointPreHook)).Decode(Context{}, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := payload["host"]; ok {
		t.Fatalf("expected caller payload untouched, got %v", payload)
	}
}

func TestDecoderRejectsNilPayload(t *testing.T) {
	_, err := NewDecoder[mailerSettings]().Decode(Context{Identity: "app.MailerSettings"}, nil)
	if err == nil || !strings.Contains(err.Error(), "app.MailerSettings") {
		t.Fatalf("expected nil payload error naming the identity, got %v", err)
	}
}

func TestIntoRequiresPointer(t *testing.T) {
	var out mailerSettings
	if err := Into(Context{}, map[string]any{}, out); err == nil {
		t.Fatalf("expected error for non-pointer target")
	}
	if err := Into(Context{}, map[string]any{"host": "h"}, &out); err != nil {
		t.Fatalf("into: %v", err)
	}
	if out.Host != "h" {
		t.Fatalf("expected host bound, got %+v", out)
	}
}

func buildOptions(tc fixtureCase) []DecoderOption[mailerSettings] {
	options := []DecoderOption[mailerSettings]{}

	for _, optName := range tc.Options {
		switch optName {
		case "error_unused":
			options = append(options, WithErrorUnused[mailerSettings]())
		case "weak":
			options = append(options, WithWeaklyTypedInput[mailerSettings]())
		}
	}

	for _, hookName := range tc.PreHooks {
		switch hookName {
		case "split_endpoint":
			options = append(options, WithPreHook[mailerSettings](splitEndpointPreHook))
		}
	}

	for _, hookName := range tc.PostHooks {
		switch hookName {
		case "default_recipients":
			options = append(options, WithPostHook[mailerSettings](defaultRecipientsPostHook))
		}
	}

	if tc.CustomDecoder != "" {
		switch tc.CustomDecoder {
		case "dsn":
			options = append(options, WithCustomDecoder[mailerSettings](dsnDecoder))
		}
	}

	return options
}

func splitEndpointPreHook(_ Context, payload map[string]any) (map[string]any, error) {
	value, ok := payload["endpoint"].(string)
	if !ok || value == "" {
		return payload, nil
	}
	host, port, found := strings.Cut(value, ":")
	if !found {
		return nil, fmt.Errorf("invalid endpoint %q", value)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint port %q: %w", port, err)
	}
	delete(payload, "endpoint")
	payload["host"] = host
	payload["port"] = n
	return payload, nil
}

func defaultRecipientsPostHook(ctx Context, snapshot *mailerSettings) error {
	if snapshot == nil {
		return errors.New("snapshot is nil")
	}
	if len(snapshot.Recipients) > 0 {
		return nil
	}
	snapshot.Recipients = []string{fmt.Sprintf("%s@%s", ctx.InstanceKey, ctx.Identity)}
	return nil
}

func dsnDecoder(ctx Context, payload map[string]any) (mailerSettings, error) {
	var zero mailerSettings
	raw, ok := payload["dsn"].(string)
	if !ok || raw == "" {
		return zero, fmt.Errorf("missing dsn for %q", ctx.Identity)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return zero, err
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return zero, err
	}
	return mailerSettings{Host: u.Hostname(), Port: port, TLS: port == 465}, nil
}

type fixture struct {
	Description string        `json:"description"`
	Cases       []fixtureCase `json:"cases"`
}

type fixtureCase struct {
	Name          string         `json:"name"`
	Identity      string         `json:"identity"`
	InstanceKey   string         `json:"instanceKey"`
	Input         map[string]any `json:"input"`
	Expect        mailerSettings `json:"expect"`
	ExpectErr     string         `json:"expectErr"`
	PreHooks      []string       `json:"preHooks"`
	PostHooks     []string       `json:"postHooks"`
	Options       []string       `json:"options"`
	CustomDecoder string         `json:"customDecoder"`
}

type mailerSettings struct {
	Host       string        `json:"host" settings:"host"`
	Port       int           `json:"port" settings:"port"`
	Timeout    time.Duration `json:"timeout" settings:"timeout"`
	TLS        bool          `json:"tls" settings:"tls"`
	Recipients []string      `json:"recipients" settings:"recipients"`
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	path := filepath.Join("..", "..", "testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read hydrate fixture %q: %v", name, err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("failed to unmarshal hydrate fixture %q: %v", name, err)
	}
	return fx
}
