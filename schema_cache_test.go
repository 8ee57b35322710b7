package settings

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// slowSource counts declaration lookups per identity and delays each one to
// widen the window for concurrent misses.
type slowSource struct {
	*Catalog
	delay time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func (s *slowSource) Declaration(identity string) (Declaration, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[identity]++
	s.mu.Unlock()
	time.Sleep(s.delay)
	return s.Catalog.Declaration(identity)
}

func (s *slowSource) count(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[identity]
}

func (s *slowSource) reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

func TestSchemaCacheCollapsesConcurrentBuilds(t *testing.T) {
	source := &slowSource{
		Catalog: MustCatalog(Declaration{
			Identity:   "app.FeatureSettings",
			Parameters: []ParameterDecl{{Name: "enabled", Type: TypeBool, Default: true}},
		}),
		delay: 20 * time.Millisecond,
	}
	cache := NewSchemaCache(Builder{Source: source, Registry: DefaultRegistry(), DefaultAdapter: DefaultAdapterName})
	if _, err := cache.Resolve("feature"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	source.reset()

	const workers = 32
	results := make([]*Schema, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s, err := cache.Get("app.FeatureSettings")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = s
		}(i)
	}
	close(start)
	wg.Wait()

	if got := source.count("app.FeatureSettings"); got != 1 {
		t.Fatalf("expected one build, saw %d declaration lookups", got)
	}
	for i, s := range results {
		if s != results[0] {
			t.Fatalf("worker %d received a different schema instance", i)
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one memoized schema, got %d", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected Clear to drop schemas")
	}
	rebuilt, err := cache.Get("app.FeatureSettings")
	if err != nil {
		t.Fatalf("Get after Clear: %v", err)
	}
	if rebuilt == results[0] {
		t.Fatalf("expected a fresh schema after Clear")
	}
}

func TestSchemaCacheResolve(t *testing.T) {
	cache := NewSchemaCache(Builder{
		Source: MustCatalog(
			Declaration{Identity: "app.MailerSettings"},
			Declaration{Identity: "billing.Invoice", Name: "invoices"},
		),
		Registry:       DefaultRegistry(),
		DefaultAdapter: DefaultAdapterName,
	})
	for ref, want := range map[string]string{
		"app.MailerSettings": "app.MailerSettings",
		"mailer":             "app.MailerSettings",
		"invoices":           "billing.Invoice",
	} {
		got, err := cache.Resolve(ref)
		if err != nil || got != want {
			t.Fatalf("Resolve(%q) = %q, %v; want %q", ref, got, err, want)
		}
	}
	if _, err := cache.Resolve("invoice"); !errors.Is(err, ErrUnknownDeclaration) {
		t.Fatalf("expected unknown reference error, got %v", err)
	}
}

func TestSchemaCacheShortNameCollision(t *testing.T) {
	cache := NewSchemaCache(Builder{
		Source: MustCatalog(
			Declaration{Identity: "app.MailerSettings"},
			Declaration{Identity: "legacy.Mailer"},
		),
		Registry:       DefaultRegistry(),
		DefaultAdapter: DefaultAdapterName,
	})
	_, err := cache.Resolve("mailer")
	if !errors.Is(err, ErrSchema) || !strings.Contains(err.Error(), "collides") {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestManagerDebugRebuildsSchemas(t *testing.T) {
	decls := []Declaration{{Identity: "app.A", Parameters: []ParameterDecl{{Name: "x", Type: TypeInt, Default: 1}}}}

	cached, _, err := newTestManager(decls)
	if err != nil {
		t.Fatalf("newTestManager: %v", err)
	}
	first, _ := cached.Schema("a")
	second, _ := cached.Schema("app.A")
	if first != second {
		t.Fatalf("expected memoized schema")
	}

	var builds int
	debug, _, err := newTestManager(decls, WithDebug(true), WithLogger(LoggerFunc(func(e LogEvent) {
		if e.Op == OpBuild {
			builds++
		}
	})))
	if err != nil {
		t.Fatalf("newTestManager: %v", err)
	}
	first, _ = debug.Schema("a")
	second, _ = debug.Schema("a")
	if first == second || builds != 2 {
		t.Fatalf("expected debug mode to rebuild, builds=%d", builds)
	}
}

// gatedSource blocks the next lookup of one identity once armed, until
// release is closed.
type gatedSource struct {
	*Catalog
	identity string
	entered  chan struct{}
	release  chan struct{}

	mu    sync.Mutex
	armed bool
}

func (s *gatedSource) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func (s *gatedSource) Declaration(identity string) (Declaration, error) {
	s.mu.Lock()
	block := s.armed && identity == s.identity
	if block {
		s.armed = false
	}
	s.mu.Unlock()
	if block {
		close(s.entered)
		<-s.release
	}
	return s.Catalog.Declaration(identity)
}

func TestSchemaCacheClearDiscardsInFlightBuild(t *testing.T) {
	source := &gatedSource{
		Catalog: MustCatalog(Declaration{
			Identity:   "app.FeatureSettings",
			Parameters: []ParameterDecl{{Name: "enabled", Type: TypeBool, Default: true}},
		}),
		identity: "app.FeatureSettings",
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	cache := NewSchemaCache(Builder{Source: source, Registry: DefaultRegistry(), DefaultAdapter: DefaultAdapterName})
	if _, err := cache.Resolve("feature"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	source.arm()

	type result struct {
		schema *Schema
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := cache.Get("app.FeatureSettings")
		done <- result{s, err}
	}()

	<-source.entered
	cache.Clear()
	close(source.release)
	stale := <-done
	if stale.err != nil {
		t.Fatalf("Get: %v", stale.err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected the build started before Clear not to be memoized, got %d schemas", cache.Len())
	}

	fresh, err := cache.Get("app.FeatureSettings")
	if err != nil {
		t.Fatalf("Get after Clear: %v", err)
	}
	if fresh == stale.schema {
		t.Fatalf("expected a schema built after Clear")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected the fresh build to be memoized, got %d schemas", cache.Len())
	}
}

func TestManagerDebugResolvesNewShortNames(t *testing.T) {
	catalog := MustCatalog(Declaration{Identity: "app.A"})
	debug, err := NewManager(catalog, WithDefaultAdapter(newMapStore()), WithDebug(true))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cached, err := NewManager(catalog, WithDefaultAdapter(newMapStore()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	for _, m := range []*Manager{debug, cached} {
		if _, err := m.Schema("a"); err != nil {
			t.Fatalf("Schema(a): %v", err)
		}
	}

	if err := catalog.Register(Declaration{Identity: "app.LateSettings", Name: "late"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	s, err := debug.Schema("late")
	if err != nil || s.Identity() != "app.LateSettings" {
		t.Fatalf("expected debug manager to resolve the new short name, got %v, %v", s, err)
	}
	if _, err := cached.Schema("late"); !errors.Is(err, ErrUnknownDeclaration) {
		t.Fatalf("expected memoized index to miss the new short name, got %v", err)
	}
	cached.ClearCache()
	if _, err := cached.Schema("late"); err != nil {
		t.Fatalf("expected Clear to rebuild the index, got %v", err)
	}
}
