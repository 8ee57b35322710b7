// Package file stores each settings record as one JSON or YAML document under
// a root directory. Writes go through a temp file and an atomic rename, and
// every access holds an advisory lock on a sibling .lock file so several
// processes can share the directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/storage"
	"gopkg.in/yaml.v3"
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Adapter implements settings.StorageAdapter on the filesystem.
type Adapter struct {
	root       string
	format     Format
	perm       os.FileMode
	retryDelay time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithFormat sets the default document format. A binding can override it
// with the "format" option.
func WithFormat(format Format) Option {
	return func(a *Adapter) {
		if format != "" {
			a.format = format
		}
	}
}

// WithFileMode sets the permissions of written documents (default 0o600).
func WithFileMode(perm os.FileMode) Option {
	return func(a *Adapter) {
		a.perm = perm
	}
}

// WithLockRetry sets how often a blocked lock is retried (default 10ms).
func WithLockRetry(delay time.Duration) Option {
	return func(a *Adapter) {
		if delay > 0 {
			a.retryDelay = delay
		}
	}
}

// New returns an adapter rooted at dir. The directory is created on first
// save.
func New(dir string, opts ...Option) *Adapter {
	a := &Adapter{
		root:       dir,
		format:     FormatJSON,
		perm:       0o600,
		retryDelay: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Path returns the document path for target.
func (a *Adapter) Path(target settings.Target) (string, error) {
	key, err := storage.Key(target)
	if err != nil {
		return "", err
	}
	format, err := a.formatFor(target)
	if err != nil {
		return "", err
	}
	rel := filepath.FromSlash(strings.ReplaceAll(key, "#", "@"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: key %q escapes the root directory", storage.ErrInvalidTarget, key)
	}
	return filepath.Join(a.root, rel+"."+string(format)), nil
}

// Load implements settings.StorageAdapter.
func (a *Adapter) Load(ctx context.Context, target settings.Target) (*settings.NormalizedMap, error) {
	path, err := a.Path(target)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Dir(path)); errors.Is(err, os.ErrNotExist) {
		return settings.NewNormalizedMap(), nil
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryRLockContext(ctx, a.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("file: lock %s: %w", path, err)
	}
	if locked {
		defer lock.Unlock()
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings.NewNormalizedMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", path, err)
	}
	out := settings.NewNormalizedMap()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, nil
	}
	if err := decode(path, raw, out); err != nil {
		return nil, fmt.Errorf("file: decode %s: %w", path, err)
	}
	return out, nil
}

// Save implements settings.StorageAdapter.
func (a *Adapter) Save(ctx context.Context, target settings.Target, data *settings.NormalizedMap) error {
	path, err := a.Path(target)
	if err != nil {
		return err
	}
	raw, err := encode(path, data)
	if err != nil {
		return fmt.Errorf("file: encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: mkdir %s: %w", dir, err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, a.retryDelay)
	if err != nil {
		return fmt.Errorf("file: lock %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("file: lock %s: not acquired", path)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("file: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, a.perm); err != nil {
		return fmt.Errorf("file: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("file: rename %s: %w", path, err)
	}
	return nil
}

func (a *Adapter) formatFor(target settings.Target) (Format, error) {
	format := Format(strings.ToLower(target.Option("format")))
	if format == "" {
		format = a.format
	}
	switch format {
	case FormatJSON, FormatYAML:
		return format, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", storage.ErrInvalidTarget, format)
	}
}

func encode(path string, data *settings.NormalizedMap) ([]byte, error) {
	if data == nil {
		data = settings.NewNormalizedMap()
	}
	if strings.HasSuffix(path, "."+string(FormatYAML)) {
		return yaml.Marshal(data)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}

func decode(path string, raw []byte, out *settings.NormalizedMap) error {
	if strings.HasSuffix(path, "."+string(FormatYAML)) {
		return yaml.Unmarshal(raw, out)
	}
	return json.Unmarshal(raw, out)
}
