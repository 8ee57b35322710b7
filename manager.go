package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-settings/pkg/activity"
)

// DefaultAdapterName is the adapter used by schemas that do not bind one.
const DefaultAdapterName = "default"

// Option configures a Manager.
type Option func(*managerConfig)

type managerConfig struct {
	registry        *Registry
	adapters        map[string]StorageAdapter
	defaultAdapter  string
	services        map[string]MigrationService
	validator       Validator
	logger          Logger
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	activityHooks   activity.Hooks
	activityConfig  activity.Config
	cache           *SchemaCache
	schemaGenerator SchemaGenerator
	debug           bool
	now             func() time.Time
	err             error
}

// fail records an option error; NewManager reports it.
func (cfg *managerConfig) fail(err error) {
	cfg.err = errors.Join(cfg.err, err)
}

func applyOptions(opts []Option) managerConfig {
	cfg := managerConfig{
		adapters:       map[string]StorageAdapter{},
		services:       map[string]MigrationService{},
		defaultAdapter: DefaultAdapterName,
		activityConfig: activity.Config{Enabled: true},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.registry == nil {
		cfg.registry = DefaultRegistry()
	}
	if cfg.logger == nil {
		cfg.logger = noopLogger{}
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return cfg
}

// WithRegistry replaces the built-in parameter type registry.
func WithRegistry(registry *Registry) Option {
	return func(cfg *managerConfig) {
		cfg.registry = registry.Clone()
	}
}

// WithAdapter binds a storage adapter under name.
func WithAdapter(name string, adapter StorageAdapter) Option {
	return func(cfg *managerConfig) {
		if adapter == nil {
			return
		}
		cfg.adapters[name] = adapter
	}
}

// WithDefaultAdapter binds adapter under the default adapter name.
func WithDefaultAdapter(adapter StorageAdapter) Option {
	return func(cfg *managerConfig) {
		if adapter == nil {
			return
		}
		cfg.adapters[cfg.defaultAdapter] = adapter
	}
}

// WithMigrationService binds a migration service under name.
func WithMigrationService(name string, service MigrationService) Option {
	return func(cfg *managerConfig) {
		if service == nil {
			return
		}
		cfg.services[name] = service
	}
}

// WithValidator sets the collaborator consulted by Save.
func WithValidator(validator Validator) Option {
	return func(cfg *managerConfig) {
		cfg.validator = validator
	}
}

// WithEvaluator configures the evaluator used by Instance.Evaluate.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *managerConfig) {
		cfg.evaluator = e
	}
}

// WithActivityHooks attaches activity hooks. Hooks are cloned and nil entries
// dropped.
func WithActivityHooks(hooks activity.Hooks, config ...activity.Config) Option {
	normalized := hooks.Compact()
	return func(cfg *managerConfig) {
		cfg.activityHooks = normalized
		if len(config) > 0 {
			cfg.activityConfig = config[0]
		}
	}
}

// WithSchemaCache shares a schema cache between managers. The cache's own
// builder is used, so it must have been created for the same declarations.
func WithSchemaCache(cache *SchemaCache) Option {
	return func(cfg *managerConfig) {
		cfg.cache = cache
	}
}

// WithDebug makes the manager rebuild schemas on every request instead of
// memoizing them.
func WithDebug(debug bool) Option {
	return func(cfg *managerConfig) {
		cfg.debug = debug
	}
}

func withClock(now func() time.Time) Option {
	return func(cfg *managerConfig) {
		cfg.now = now
	}
}

// Manager owns the process-wide pieces of the engine: declarations, the
// parameter registry, the schema cache and the bound collaborators. It is
// safe for concurrent use; per-request state lives in a UnitOfWork.
type Manager struct {
	cfg      managerConfig
	cache    *SchemaCache
	migrator Migrator
	emitter  *activity.Emitter
}

// NewManager constructs a manager reading declarations from source.
func NewManager(source DeclarationSource, opts ...Option) (*Manager, error) {
	if source == nil {
		return nil, fmt.Errorf("settings: declaration source is required")
	}
	cfg := applyOptions(opts)
	if cfg.err != nil {
		return nil, fmt.Errorf("settings: invalid manager option: %w", cfg.err)
	}
	cache := cfg.cache
	if cache == nil {
		cache = NewSchemaCache(Builder{
			Source:         source,
			Registry:       cfg.registry,
			DefaultAdapter: cfg.defaultAdapter,
		})
	}
	return &Manager{
		cfg:      cfg,
		cache:    cache,
		migrator: Migrator{Services: cfg.services, now: cfg.now},
		emitter:  activity.NewEmitter(cfg.activityHooks, cfg.activityConfig),
	}, nil
}

// Registry returns the parameter type registry in use.
func (m *Manager) Registry() *Registry {
	return m.cfg.registry
}

// Schema resolves ref, an identity or short name, to its schema. In debug
// mode both the short-name index and the schema are rebuilt per call.
func (m *Manager) Schema(ref string) (*Schema, error) {
	start := m.cfg.now()
	identity, err := m.cache.resolve(ref, m.cfg.debug)
	if err != nil {
		return nil, err
	}
	var s *Schema
	if m.cfg.debug {
		s, err = m.cache.Build(identity)
		m.cfg.logger.LogOperation(LogEvent{Op: OpBuild, Identity: identity, Duration: m.cfg.now().Sub(start), Err: err})
	} else {
		s, err = m.cache.Get(identity)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Identities lists every declared identity.
func (m *Manager) Identities() []string {
	return m.cache.builder.Source.Identities()
}

// ClearCache drops all memoized schemas.
func (m *Manager) ClearCache() {
	m.cache.Clear()
}

// Begin opens a unit of work.
func (m *Manager) Begin() *UnitOfWork {
	return &UnitOfWork{
		manager:   m,
		instances: map[instanceID]*Instance{},
	}
}

func (m *Manager) adapter(s *Schema) (StorageAdapter, string, error) {
	name := s.Storage().Adapter
	adapter, ok := m.cfg.adapters[name]
	if !ok {
		return nil, name, &StorageError{Op: "resolve", Identity: s.Identity(), Adapter: name, Err: fmt.Errorf("adapter not bound")}
	}
	return adapter, name, nil
}
