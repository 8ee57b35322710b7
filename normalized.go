package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// VersionKey is the reserved normalized key carrying the stored schema version.
const VersionKey = "__version__"

// NormalizedMap is the storage-neutral, ordered key/value representation of a
// settings instance. Values are limited to int64, float64, bool, string, nil
// and []any of those kinds. A nil *NormalizedMap reads as empty.
type NormalizedMap struct {
	keys   []string
	values map[string]any
}

// NewNormalizedMap returns an empty map.
func NewNormalizedMap() *NormalizedMap {
	return &NormalizedMap{values: map[string]any{}}
}

// NormalizedMapFrom builds a map from a plain Go map. Keys are sorted so the
// result is deterministic.
func NormalizedMapFrom(values map[string]any) (*NormalizedMap, error) {
	out := NewNormalizedMap()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := out.Set(key, values[key]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Len returns the number of keys.
func (m *NormalizedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *NormalizedMap) Keys() []string {
	if m == nil || len(m.keys) == 0 {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Has reports whether key is present.
func (m *NormalizedMap) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[key]
	return ok
}

// Get returns the value stored under key.
func (m *NormalizedMap) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	value, ok := m.values[key]
	return value, ok
}

// Set stores value under key, keeping the original position of existing keys.
// Go integer and float kinds are widened to int64/float64; any other kind
// outside the normalized set is rejected.
func (m *NormalizedMap) Set(key string, value any) error {
	normalized, err := NormalizeValue(value)
	if err != nil {
		return fmt.Errorf("settings: normalized key %q: %w", key, err)
	}
	m.set(key, normalized)
	return nil
}

func (m *NormalizedMap) set(key string, value any) {
	if m.values == nil {
		m.values = map[string]any{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key when present.
func (m *NormalizedMap) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, existing := range m.keys {
		if existing == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Range calls fn for each entry in order until fn returns false.
func (m *NormalizedMap) Range(fn func(key string, value any) bool) {
	if m == nil || fn == nil {
		return
	}
	for _, key := range m.keys {
		if !fn(key, m.values[key]) {
			return
		}
	}
}

// Clone returns a deep copy. Cloning nil yields an empty map.
func (m *NormalizedMap) Clone() *NormalizedMap {
	out := NewNormalizedMap()
	if m == nil {
		return out
	}
	for _, key := range m.keys {
		out.set(key, cloneNormalized(m.values[key]))
	}
	return out
}

// Map returns a detached plain Go map.
func (m *NormalizedMap) Map() map[string]any {
	out := make(map[string]any, m.Len())
	m.Range(func(key string, value any) bool {
		out[key] = cloneNormalized(value)
		return true
	})
	return out
}

// Version returns the stored version marker when one is present and readable.
func (m *NormalizedMap) Version() (int, bool) {
	version, ok, err := m.StoredVersion()
	if err != nil {
		return 0, false
	}
	return version, ok
}

// StoredVersion reads the version marker. An absent or null marker reports
// false. A marker that is present but not an integer of at least 1 is a
// *NormalizationError.
func (m *NormalizedMap) StoredVersion() (int, bool, error) {
	raw, ok := m.Get(VersionKey)
	if !ok || raw == nil {
		return 0, false, nil
	}
	version, err := parseVersion(raw)
	if err != nil {
		return 0, false, &NormalizationError{Parameter: VersionKey, Type: "version", Value: raw, Err: err}
	}
	return version, true, nil
}

func parseVersion(raw any) (int, error) {
	var n int64
	switch v := raw.(type) {
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return 0, fmt.Errorf("version %v is not an integer", v)
		}
		n = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("version %q is not an integer", v)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("version must be an integer")
	}
	if n < 1 || n > math.MaxInt32 {
		return 0, fmt.Errorf("version %d is out of range", n)
	}
	return int(n), nil
}

// WithVersion stamps the version marker and returns m for chaining.
func (m *NormalizedMap) WithVersion(version int) *NormalizedMap {
	m.set(VersionKey, int64(version))
	return m
}

// Equal reports whether both maps hold the same keys in the same order with
// equal values.
func (m *NormalizedMap) Equal(other *NormalizedMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	if m.Len() == 0 {
		return true
	}
	return reflect.DeepEqual(m.keys, other.keys) && reflect.DeepEqual(m.values, other.values)
}

func (m *NormalizedMap) String() string {
	raw, err := m.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("NormalizedMap<%v>", err)
	}
	return string(raw)
}

// MarshalJSON encodes the map as a JSON object preserving key order.
func (m *NormalizedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var err error
	m.Range(func(key string, value any) bool {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		var raw []byte
		if raw, err = json.Marshal(key); err != nil {
			return false
		}
		buf.Write(raw)
		buf.WriteByte(':')
		if raw, err = json.Marshal(value); err != nil {
			return false
		}
		buf.Write(raw)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order. Integral numbers
// decode as int64, the rest as float64.
func (m *NormalizedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = NormalizedMap{values: map[string]any{}}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("settings: normalized map must be a JSON object")
	}
	out := NormalizedMap{values: map[string]any{}}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("settings: normalized map key must be a string")
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		value, err := fromJSONValue(raw)
		if err != nil {
			return fmt.Errorf("settings: normalized key %q: %w", key, err)
		}
		out.set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalYAML encodes the map as an ordered YAML mapping.
func (m *NormalizedMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	var err error
	m.Range(func(key string, value any) bool {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		valueNode := &yaml.Node{}
		if err = valueNode.Encode(value); err != nil {
			return false
		}
		node.Content = append(node.Content, keyNode, valueNode)
		return true
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// UnmarshalYAML decodes a YAML mapping preserving key order.
func (m *NormalizedMap) UnmarshalYAML(value *yaml.Node) error {
	out := NormalizedMap{values: map[string]any{}}
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*m = out
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("settings: normalized map must be a YAML mapping")
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		var raw any
		if err := value.Content[i+1].Decode(&raw); err != nil {
			return err
		}
		normalized, err := NormalizeValue(raw)
		if err != nil {
			return fmt.Errorf("settings: normalized key %q: %w", key, err)
		}
		out.set(key, normalized)
	}
	*m = out
	return nil
}

// NormalizeValue widens value into the normalized kind set or fails.
func NormalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string, bool, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return float64(v), nil
	case json.Number:
		return fromJSONValue(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			normalized, err := NormalizeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			if _, nested := normalized.([]any); nested {
				return nil, fmt.Errorf("index %d: nested arrays are not normalized values", i)
			}
			out[i] = normalized
		}
		return out, nil
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported normalized kind %T", value)
	}
}

func fromJSONValue(raw any) (any, error) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			converted, err := fromJSONValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return NormalizeValue(out)
	default:
		return NormalizeValue(v)
	}
}

// cloneNormalized copies nested lists and maps so the result shares no
// mutable state with value.
func cloneNormalized(value any) any {
	switch v := value.(type) {
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneNormalized(item)
		}
		return out
	case []string:
		if v == nil {
			return v
		}
		return append([]string(nil), v...)
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneNormalized(item)
		}
		return out
	default:
		return value
	}
}
