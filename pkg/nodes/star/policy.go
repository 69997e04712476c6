package star

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// PolicyEntry allows one module (by name, optionally pinned to a version)
// to use an IO capability.
type PolicyEntry struct {
	Name           string `json:"name"`
	Version        string `json:"version,omitempty"`
	AllowIoCsvRead bool   `json:"allow_io_csv_read"`
}

// Policy is the engine-side allow list for guest-module IO. Modules not
// listed are denied.
type Policy struct {
	csvAssetsDir string
	entries      []PolicyEntry
}

// NewPolicy builds a policy programmatically (used by tests).
func NewPolicy(csvAssetsDir string, entries ...PolicyEntry) *Policy {
	return &Policy{csvAssetsDir: csvAssetsDir, entries: entries}
}

// ParsePolicy decodes a policy from JSON.
func ParsePolicy(data []byte) (*Policy, error) {
	var file struct {
		CsvAssetsDir string        `json:"csv_assets_dir"`
		Modules      []PolicyEntry `json:"modules"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse guest policy: %w", err)
	}
	return &Policy{csvAssetsDir: file.CsvAssetsDir, entries: file.Modules}, nil
}

// LoadPolicyFile reads and parses a policy file.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guest policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// AllowIoCsvRead reports whether the (name, version) pair may read CSV
// assets. An entry with an empty version matches any version.
func (p *Policy) AllowIoCsvRead(name, version string) bool {
	for _, e := range p.entries {
		if e.Name != name {
			continue
		}
		if e.Version == "" || e.Version == version {
			return e.AllowIoCsvRead
		}
	}
	return false
}

// CSVAssetsDir is the directory CSV resources resolve under.
func (p *Policy) CSVAssetsDir() string { return p.csvAssetsDir }
