package settings

import (
	"context"
	"fmt"

	"github.com/goliatone/go-settings/pkg/activity"
)

type instanceID struct {
	identity string
	key      string
}

// UnitOfWork owns the instance table for one request or transaction scope.
// Within a unit, each (identity, instance key) pair maps to exactly one
// instance, whichever parent reached it first. A UnitOfWork is not safe for
// concurrent use.
type UnitOfWork struct {
	manager   *Manager
	instances map[instanceID]*Instance
	order     []instanceID
}

// Get returns the identity-wide instance for ref, an identity or short name.
func (u *UnitOfWork) Get(ctx context.Context, ref string) (*Instance, error) {
	return u.GetKeyed(ctx, ref, "")
}

// GetKeyed returns the instance for ref stored under instanceKey.
func (u *UnitOfWork) GetKeyed(ctx context.Context, ref, instanceKey string) (*Instance, error) {
	schema, err := u.manager.Schema(ref)
	if err != nil {
		return nil, err
	}
	return u.resolve(ctx, schema, instanceKey)
}

// ResolveEmbedded resolves embed of owner through the instance table. Two
// parents embedding the same identity share one instance, and a request for
// an identity whose load is still running returns that placeholder.
func (u *UnitOfWork) ResolveEmbedded(ctx context.Context, owner *Instance, embed EmbedMetadata) (*Instance, error) {
	if owner != nil && owner.uow != u {
		return nil, fmt.Errorf("%w: %q", ErrForeignInstance, owner.schema.Identity())
	}
	schema, err := u.manager.Schema(embed.Target)
	if err != nil {
		return nil, err
	}
	return u.resolve(ctx, schema, "")
}

// Instances returns the table's instances in registration order.
func (u *UnitOfWork) Instances() []*Instance {
	out := make([]*Instance, 0, len(u.order))
	for _, id := range u.order {
		if inst, ok := u.instances[id]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// resolve registers a placeholder before loading so that re-entrant requests
// for the same pair find it instead of recursing.
func (u *UnitOfWork) resolve(ctx context.Context, schema *Schema, key string) (*Instance, error) {
	id := instanceID{identity: schema.Identity(), key: key}
	if inst, ok := u.instances[id]; ok {
		return inst, nil
	}
	inst := newInstance(u, schema, key)
	u.instances[id] = inst
	u.order = append(u.order, id)

	if err := u.load(ctx, inst); err != nil {
		u.evict(id)
		return nil, err
	}
	inst.ready = true
	return inst, nil
}

func (u *UnitOfWork) evict(id instanceID) {
	delete(u.instances, id)
	for idx, existing := range u.order {
		if existing == id {
			u.order = append(u.order[:idx], u.order[idx+1:]...)
			break
		}
	}
}

func (u *UnitOfWork) load(ctx context.Context, inst *Instance) (err error) {
	m := u.manager
	schema := inst.schema
	start := m.cfg.now()
	defer func() {
		report := inst.report
		m.cfg.logger.LogOperation(LogEvent{
			Op:          OpGet,
			Identity:    schema.Identity(),
			InstanceKey: inst.key,
			Report:      &report,
			Duration:    m.cfg.now().Sub(start),
			Err:         err,
		})
	}()

	adapter, name, err := m.adapter(schema)
	if err != nil {
		return err
	}
	data, err := adapter.Load(ctx, newTarget(schema, inst.key))
	if err != nil {
		return &StorageError{Op: "load", Identity: schema.Identity(), Adapter: name, Err: err}
	}
	if data == nil {
		data = NewNormalizedMap()
	}

	migrated, report, err := m.migrator.Run(ctx, schema, data)
	inst.report = report
	if report.State != AtCurrentVersion {
		r := report
		m.cfg.logger.LogOperation(LogEvent{
			Op:          OpMigrate,
			Identity:    schema.Identity(),
			InstanceKey: inst.key,
			Report:      &r,
			Duration:    report.Duration,
			Err:         err,
		})
	}
	if err != nil {
		return err
	}

	inst.applyDefaults()
	if hook := schema.resetHook(); hook != nil {
		if err := hook(ctx, inst); err != nil {
			return fmt.Errorf("settings: reset hook for %q: %w", schema.Identity(), err)
		}
	}
	if err := inst.overlay(migrated); err != nil {
		return err
	}
	inst.markClean()
	if report.Migrated() {
		inst.dirty = true
		u.emit(ctx, inst, activity.BuildSettingsMigratedEvent(u.eventInput(ctx, inst, func(in *activity.SettingsEventInput) {
			in.FromVersion = report.From
			in.ToVersion = report.To
		})))
	}
	return nil
}

// Save normalizes inst, consults the validator and writes through the bound
// adapter. Embedded instances are never resolved or written. inst must be a
// fully loaded instance of u.
func (u *UnitOfWork) Save(ctx context.Context, inst *Instance) (err error) {
	if err := u.writable("save", inst); err != nil {
		return err
	}
	m := u.manager
	schema := inst.schema
	start := m.cfg.now()
	defer func() {
		m.cfg.logger.LogOperation(LogEvent{
			Op:          OpSave,
			Identity:    schema.Identity(),
			InstanceKey: inst.key,
			Duration:    m.cfg.now().Sub(start),
			Err:         err,
		})
	}()

	data, err := inst.Normalized()
	if err != nil {
		return err
	}
	if m.cfg.validator != nil {
		violations, err := m.cfg.validator.Validate(ctx, inst)
		if err != nil {
			return fmt.Errorf("settings: validate %q: %w", schema.Identity(), err)
		}
		if len(violations) > 0 {
			return &ValidationFailedError{Identity: schema.Identity(), Violations: violations}
		}
	}
	adapter, name, err := m.adapter(schema)
	if err != nil {
		return err
	}
	if err := adapter.Save(ctx, newTarget(schema, inst.key), data); err != nil {
		return &StorageError{Op: "save", Identity: schema.Identity(), Adapter: name, Err: err}
	}

	changed := inst.changedNames()
	inst.markClean()
	u.emit(ctx, inst, activity.BuildSettingsSavedEvent(u.eventInput(ctx, inst, func(in *activity.SettingsEventInput) {
		in.Changed = changed
	})))
	return nil
}

// Reset re-applies declared defaults then the schema's reset hook. Embedded
// instances are left alone unless the hook touches them.
func (u *UnitOfWork) Reset(ctx context.Context, inst *Instance) (err error) {
	if err := u.writable("reset", inst); err != nil {
		return err
	}
	m := u.manager
	schema := inst.schema
	start := m.cfg.now()
	defer func() {
		m.cfg.logger.LogOperation(LogEvent{
			Op:          OpReset,
			Identity:    schema.Identity(),
			InstanceKey: inst.key,
			Duration:    m.cfg.now().Sub(start),
			Err:         err,
		})
	}()

	inst.applyDefaults()
	if hook := schema.resetHook(); hook != nil {
		if err := hook(ctx, inst); err != nil {
			return fmt.Errorf("settings: reset hook for %q: %w", schema.Identity(), err)
		}
	}
	for _, p := range schema.parameters {
		inst.changed[p.Name] = struct{}{}
	}
	inst.dirty = true
	u.emit(ctx, inst, activity.BuildSettingsResetEvent(u.eventInput(ctx, inst, nil)))
	return nil
}

// Flush saves every dirty, fully loaded instance in registration order and
// stops at the first error.
func (u *UnitOfWork) Flush(ctx context.Context) error {
	for _, inst := range u.Instances() {
		if !inst.ready || !inst.dirty {
			continue
		}
		if err := u.Save(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnitOfWork) writable(op string, inst *Instance) error {
	switch {
	case inst == nil:
		return fmt.Errorf("settings: %s nil instance", op)
	case inst.uow != u:
		return fmt.Errorf("settings: %s %q: %w", op, inst.schema.Identity(), ErrForeignInstance)
	case !inst.ready:
		return fmt.Errorf("settings: %s %q: %w", op, inst.schema.Identity(), ErrInstanceNotReady)
	}
	return nil
}

func (u *UnitOfWork) eventInput(ctx context.Context, inst *Instance, apply func(*activity.SettingsEventInput)) activity.SettingsEventInput {
	actor, _ := activity.ActorFromContext(ctx)
	input := activity.SettingsEventInput{
		Actor:       actor,
		InstanceKey: inst.key,
		OccurredAt:  u.manager.cfg.now(),
	}
	if apply != nil {
		apply(&input)
	}
	return input
}

// emit never fails the operation that triggered it; hook errors are logged.
func (u *UnitOfWork) emit(ctx context.Context, inst *Instance, event activity.Event) {
	if !u.manager.emitter.Enabled() {
		return
	}
	emitter := u.manager.emitter.Scoped(inst.schema.Identity(), inst.schema.ShortName())
	if err := emitter.Emit(ctx, event); err != nil {
		u.manager.cfg.logger.LogOperation(LogEvent{
			Op:       OpActivity,
			Identity: emitter.Identity(),
			Err:      err,
		})
	}
}
