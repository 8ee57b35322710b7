package settings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MigrationState is the outcome of running a loaded map through the
// migration engine.
type MigrationState int

const (
	AtCurrentVersion MigrationState = iota
	NeedsMigration
	MigrationApplied
	MigrationFailed
)

func (s MigrationState) String() string {
	switch s {
	case AtCurrentVersion:
		return "at_current_version"
	case NeedsMigration:
		return "needs_migration"
	case MigrationApplied:
		return "migration_applied"
	case MigrationFailed:
		return "migration_failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s MigrationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MigrationState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "at_current_version":
		*s = AtCurrentVersion
	case "needs_migration":
		*s = NeedsMigration
	case "migration_applied":
		*s = MigrationApplied
	case "migration_failed":
		*s = MigrationFailed
	default:
		return fmt.Errorf("settings: unknown migration state %q", text)
	}
	return nil
}

// MigrationService rewrites a map stored at version from into the layout of
// version to. It may jump several versions at once and must tag its result
// with the version it produced.
type MigrationService interface {
	Migrate(ctx context.Context, data *NormalizedMap, from, to int) (*NormalizedMap, error)
}

// MigrationFunc adapts a function to MigrationService.
type MigrationFunc func(ctx context.Context, data *NormalizedMap, from, to int) (*NormalizedMap, error)

// Migrate implements MigrationService.
func (f MigrationFunc) Migrate(ctx context.Context, data *NormalizedMap, from, to int) (*NormalizedMap, error) {
	return f(ctx, data, from, to)
}

// Migrator is the migration engine. Services are looked up by the name bound
// in the schema.
type Migrator struct {
	Services map[string]MigrationService
	now      func() time.Time
}

// Run upgrades data to the schema's version. The returned map is never the
// caller's map when a migration ran; untouched data is returned as is.
func (m Migrator) Run(ctx context.Context, schema *Schema, data *NormalizedMap) (*NormalizedMap, LoadReport, error) {
	now := m.now
	if now == nil {
		now = time.Now
	}
	start := now()
	report := LoadReport{Identity: schema.Identity(), State: AtCurrentVersion}
	target, versioned := schema.Version()
	if !versioned {
		return data, report, nil
	}
	report.To = target
	report.From = target
	if data.Len() == 0 {
		return data, report, nil
	}

	stored, ok, err := data.StoredVersion()
	if err != nil {
		var nerr *NormalizationError
		if errors.As(err, &nerr) {
			nerr.Identity = schema.Identity()
		}
		report.State = MigrationFailed
		return nil, report, err
	}
	if !ok {
		stored = 1
	}
	report.From = stored

	switch {
	case stored == target:
		return data, report, nil
	case stored > target:
		report.State = MigrationFailed
		return nil, report, schemaErrorf(schema.Identity(), "", "stored data is at version %d, newer than schema version %d", stored, target)
	}

	report.State = NeedsMigration
	report.Service = schema.Migration()
	fail := func(err error) (*NormalizedMap, LoadReport, error) {
		report.State = MigrationFailed
		report.Duration = now().Sub(start)
		return nil, report, &MigrationError{Identity: schema.Identity(), From: stored, To: target, Service: report.Service, Err: err}
	}

	service, ok := m.Services[report.Service]
	if !ok || service == nil {
		return fail(fmt.Errorf("migration service not available"))
	}
	migrated, err := service.Migrate(ctx, data.Clone(), stored, target)
	if err != nil {
		return fail(err)
	}
	if migrated == nil {
		return fail(fmt.Errorf("migration service returned no data"))
	}
	if produced, ok, err := migrated.StoredVersion(); err != nil {
		return fail(err)
	} else if !ok {
		migrated.WithVersion(target)
	} else if produced != target {
		return fail(fmt.Errorf("migration produced version %d", produced))
	}
	report.State = MigrationApplied
	report.Duration = now().Sub(start)
	return migrated, report, nil
}
