package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func versionedSchema(t *testing.T, version int) *Schema {
	t.Helper()
	decl := Declaration{
		Identity:   "app.Profile",
		Parameters: []ParameterDecl{{Name: "name", Type: TypeString, Default: "anon"}},
	}
	if version > 0 {
		decl.Version = version
		decl.Migration = "profile"
	}
	schema, err := testBuilder(t, decl).Build("app.Profile")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return schema
}

func mapOf(t *testing.T, values map[string]any) *NormalizedMap {
	t.Helper()
	m := NewNormalizedMap()
	for _, key := range sortedKeys(values) {
		if err := m.Set(key, values[key]); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
	return m
}

func TestMigratorPassThrough(t *testing.T) {
	cases := []struct {
		name    string
		version int
		data    *NormalizedMap
		want    LoadReport
	}{
		{
			name: "unversioned schema",
			data: mapOf(t, map[string]any{"name": "a"}),
			want: LoadReport{Identity: "app.Profile", State: AtCurrentVersion},
		},
		{
			name:    "empty data",
			version: 3,
			data:    NewNormalizedMap(),
			want:    LoadReport{Identity: "app.Profile", From: 3, To: 3, State: AtCurrentVersion},
		},
		{
			name:    "current version",
			version: 2,
			data:    mapOf(t, map[string]any{"name": "a"}).WithVersion(2),
			want:    LoadReport{Identity: "app.Profile", From: 2, To: 2, State: AtCurrentVersion},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &countingMigration{}
			m := Migrator{Services: map[string]MigrationService{"profile": service}}
			out, report, err := m.Run(context.Background(), versionedSchema(t, tc.version), tc.data)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out != tc.data {
				t.Fatalf("expected data to pass through untouched")
			}
			if report != tc.want {
				t.Fatalf("unexpected report\nwant: %+v\n got: %+v", tc.want, report)
			}
			if service.calls != 0 {
				t.Fatalf("expected migration service to stay idle, got %d calls", service.calls)
			}
		})
	}
}

func TestMigratorUpgradesMissingVersionFromOne(t *testing.T) {
	service := &countingMigration{fn: func(data *NormalizedMap, from, to int) (*NormalizedMap, error) {
		if from != 1 || to != 2 {
			return nil, errors.New("unexpected versions")
		}
		legacy, _ := data.Get("legacyField")
		data.Delete("legacyField")
		if err := data.Set("name", legacy); err != nil {
			return nil, err
		}
		return data, nil
	}}
	original := mapOf(t, map[string]any{"legacyField": "kept"})
	m := Migrator{Services: map[string]MigrationService{"profile": service}}

	out, report, err := m.Run(context.Background(), versionedSchema(t, 2), original)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Migrated() || report.From != 1 || report.To != 2 || report.Service != "profile" {
		t.Fatalf("unexpected report %+v", report)
	}
	if version, ok := out.Version(); !ok || version != 2 {
		t.Fatalf("expected result stamped with v2, got %d %v", version, ok)
	}
	if name, _ := out.Get("name"); name != "kept" {
		t.Fatalf("expected migrated name, got %v", name)
	}
	if !original.Has("legacyField") {
		t.Fatalf("expected caller's map to stay untouched")
	}
}

func TestMigratorFailures(t *testing.T) {
	cases := []struct {
		name     string
		services map[string]MigrationService
		data     *NormalizedMap
		target   error
		want     string
	}{
		{
			name:   "stored version newer",
			data:   mapOf(t, map[string]any{"name": "a"}).WithVersion(5),
			target: ErrSchema,
			want:   "newer than schema version 2",
		},
		{
			name:   "service missing",
			data:   mapOf(t, map[string]any{"name": "a"}),
			target: ErrMigration,
			want:   "migration service not available",
		},
		{
			name: "service error",
			services: map[string]MigrationService{"profile": MigrationFunc(func(context.Context, *NormalizedMap, int, int) (*NormalizedMap, error) {
				return nil, errors.New("corrupt row")
			})},
			data:   mapOf(t, map[string]any{"name": "a"}),
			target: ErrMigration,
			want:   "corrupt row",
		},
		{
			name: "wrong version produced",
			services: map[string]MigrationService{"profile": MigrationFunc(func(_ context.Context, data *NormalizedMap, _, _ int) (*NormalizedMap, error) {
				return data.WithVersion(3), nil
			})},
			data:   mapOf(t, map[string]any{"name": "a"}),
			target: ErrMigration,
			want:   "produced version 3",
		},
		{
			name: "nil result",
			services: map[string]MigrationService{"profile": MigrationFunc(func(context.Context, *NormalizedMap, int, int) (*NormalizedMap, error) {
				return nil, nil
			})},
			data:   mapOf(t, map[string]any{"name": "a"}),
			target: ErrMigration,
			want:   "returned no data",
		},
	}
	for _, raw := range []any{"abc", 2.5, 0, -1} {
		cases = append(cases, struct {
			name     string
			services map[string]MigrationService
			data     *NormalizedMap
			target   error
			want     string
		}{
			name: fmt.Sprintf("unreadable marker %v", raw),
			services: map[string]MigrationService{"profile": MigrationFunc(func(_ context.Context, data *NormalizedMap, _, _ int) (*NormalizedMap, error) {
				return data.WithVersion(2), nil
			})},
			data:   mapOf(t, map[string]any{"name": "a", VersionKey: raw}),
			target: ErrNormalization,
			want:   `"__version__"`,
		})
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Migrator{Services: tc.services}
			out, report, err := m.Run(context.Background(), versionedSchema(t, 2), tc.data)
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
			if out != nil {
				t.Fatalf("expected no data on failure")
			}
			if report.State != MigrationFailed {
				t.Fatalf("expected failed state, got %s", report.State)
			}
		})
	}
}

func TestStepMigratorChainsSteps(t *testing.T) {
	steps := NewStepMigrator()
	if err := steps.Register(2, ExprStep(nil, []Assignment{{Key: "full_name", Expr: `first + " " + last`}}, "first", "last")); err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	if err := steps.Register(1, ExprStep(nil, []Assignment{{Key: "first", Expr: "name"}, {Key: "last", Expr: `"Doe"`}}, "name")); err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	if got := steps.Versions(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected versions %v", got)
	}

	out, err := steps.Migrate(context.Background(), mapOf(t, map[string]any{"name": "Jane"}), 1, 3)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if got := out.Keys(); strings.Join(got, ",") != "__version__,full_name" {
		t.Fatalf("unexpected keys %v", got)
	}
	if value, _ := out.Get("full_name"); value != "Jane Doe" {
		t.Fatalf("unexpected full_name %v", value)
	}
	if version, _ := out.Version(); version != 3 {
		t.Fatalf("expected v3, got %d", version)
	}

	if _, err := steps.Migrate(context.Background(), mapOf(t, map[string]any{"name": "Jane"}), 1, 4); err == nil || !strings.Contains(err.Error(), "no migration step from v3 to v4") {
		t.Fatalf("expected missing step error, got %v", err)
	}

	_, err = steps.Migrate(context.Background(), NewNormalizedMap(), 1, 3)
	if err == nil || !strings.Contains(err.Error(), `step v1->v2: assign "first"`) {
		t.Fatalf("expected missing legacy key to fail the first step, got %v", err)
	}
}

func TestStepMigratorRegisterValidation(t *testing.T) {
	steps := NewStepMigrator()
	noop := func(_ context.Context, data *NormalizedMap) (*NormalizedMap, error) { return data, nil }
	if err := steps.Register(0, noop); err == nil {
		t.Fatalf("expected non-positive version to be rejected")
	}
	if err := steps.Register(1, nil); err == nil {
		t.Fatalf("expected nil step to be rejected")
	}
	if err := steps.Register(1, noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := steps.Register(1, noop); err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestExprStepReportsEvaluationErrors(t *testing.T) {
	step := ExprStep(nil, []Assignment{{Key: "x", Expr: "missing +"}})
	if _, err := step(context.Background(), NewNormalizedMap()); err == nil || !strings.Contains(err.Error(), `assign "x"`) {
		t.Fatalf("expected assignment error, got %v", err)
	}
}

func TestExprStepRejectsUnboundKeys(t *testing.T) {
	data := mapOf(t, map[string]any{"legacy": nil, "port": int64(25)})
	forEachEvaluator(t, func(t *testing.T, newEvaluator func(ProgramCache, *FunctionRegistry) Evaluator) {
		step := ExprStep(newEvaluator(nil, nil), []Assignment{{Key: "renamed", Expr: "legacy"}, {Key: "smtp_port", Expr: "port"}})
		out, err := step(context.Background(), data)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if value, ok := out.Get("renamed"); !ok || value != nil {
			t.Fatalf("expected stored null to carry over, got %v %v", value, ok)
		}
		if value, _ := out.Get("smtp_port"); value != int64(25) {
			t.Fatalf("unexpected smtp_port %#v", value)
		}

		missing := ExprStep(newEvaluator(nil, nil), []Assignment{{Key: "renamed", Expr: "legacyField"}})
		if _, err := missing(context.Background(), data); err == nil || !strings.Contains(err.Error(), `assign "renamed"`) {
			t.Fatalf("expected unbound key to fail, got %v", err)
		}
	})
}

func TestLoadReportJSON(t *testing.T) {
	report := LoadReport{Identity: "app.Profile", From: 1, To: 2, State: MigrationApplied, Service: "profile"}
	payload, err := report.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	want := `{"identity":"app.Profile","from":1,"to":2,"state":"migration_applied","service":"profile"}`
	if string(payload) != want {
		t.Fatalf("unexpected payload\nwant: %s\n got: %s", want, payload)
	}
	decoded, err := LoadReportFromJSON(payload)
	if err != nil {
		t.Fatalf("LoadReportFromJSON: %v", err)
	}
	if decoded != report {
		t.Fatalf("unexpected decoded report %+v", decoded)
	}
	if _, err := LoadReportFromJSON([]byte(`{"state":"sideways"}`)); err == nil {
		t.Fatalf("expected unknown state to fail")
	}
}
