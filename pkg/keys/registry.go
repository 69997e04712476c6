package keys

import (
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/value"
)

var (
	// ErrDuplicateKey is returned when a registry file declares the same
	// id or name twice.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnknownKey is returned by lookups that require the key to exist.
	ErrUnknownKey = errors.New("unknown key")

	// ErrUnknownKeyType is returned for unrecognized type strings in a
	// registry file.
	ErrUnknownKeyType = errors.New("unknown key type")
)

// KeyInfo describes one registered key.
type KeyInfo struct {
	ID    int32
	Name  string
	Type  value.Type
	Scope string
	Owner string
	Doc   string
}

// Registry is the read-mostly key table. It is immutable after load and
// freely shareable across plan executions.
type Registry struct {
	version int
	keys    []KeyInfo
	byID    map[int32]int
	byName  map[string]int
}

// NewRegistry creates an empty registry with the given version.
func NewRegistry(version int) *Registry {
	return &Registry{
		version: version,
		byID:    make(map[int32]int),
		byName:  make(map[string]int),
	}
}

// Add registers one key. Ids and names must be unique.
func (r *Registry) Add(k KeyInfo) error {
	if _, ok := r.byID[k.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrDuplicateKey, k.ID)
	}
	if _, ok := r.byName[k.Name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateKey, k.Name)
	}
	r.byID[k.ID] = len(r.keys)
	r.byName[k.Name] = len(r.keys)
	r.keys = append(r.keys, k)
	return nil
}

// ByID looks up a key by id.
func (r *Registry) ByID(id int32) (KeyInfo, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return KeyInfo{}, false
	}
	return r.keys[idx], true
}

// ByName looks up a key by name.
func (r *Registry) ByName(name string) (KeyInfo, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return KeyInfo{}, false
	}
	return r.keys[idx], true
}

// All returns every registered key in declaration order.
func (r *Registry) All() []KeyInfo { return r.keys }

// Version returns the registry file version.
func (r *Registry) Version() int { return r.version }

type registryFile struct {
	Version int `json:"version"`
	Keys    []struct {
		ID    int32  `json:"id"`
		Name  string `json:"name"`
		Type  string `json:"type"`
		Scope string `json:"scope"`
		Owner string `json:"owner"`
		Doc   string `json:"doc"`
	} `json:"keys"`
}

// Load parses a registry from JSON.
func Load(data []byte) (*Registry, error) {
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse key registry: %w", err)
	}
	r := NewRegistry(file.Version)
	for _, k := range file.Keys {
		typ, err := value.ParseType(k.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q declares %q", ErrUnknownKeyType, k.Name, k.Type)
		}
		info := KeyInfo{ID: k.ID, Name: k.Name, Type: typ, Scope: k.Scope, Owner: k.Owner, Doc: k.Doc}
		if err := r.Add(info); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadFile reads and parses a registry file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key registry %s: %w", path, err)
	}
	return Load(data)
}
