package symbols

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/pipeprobe/internal/adapters/file"
	"github.com/aretw0/pipeprobe/internal/dto"
)

// Load reads a symbol index file (YAML or JSON) into a table.
// A missing file yields an empty table.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewTable(), nil
		}
		return nil, fmt.Errorf("failed to read symbol index: %w", err)
	}

	var raw map[string]any
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse symbol index %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse symbol index %s: %w", path, err)
		}
	}
	return Decode(raw)
}

// Decode converts a generic document (as produced by YAML or JSON decoding) into a table.
func Decode(raw map[string]any) (*Table, error) {
	var idx dto.SymbolIndex
	if err := mapstructure.Decode(raw, &idx); err != nil {
		return nil, fmt.Errorf("invalid symbol index: %w", err)
	}
	return FromIndex(idx), nil
}

// FromIndex builds a table from a decoded index, skipping nameless records.
func FromIndex(idx dto.SymbolIndex) *Table {
	t := NewTable()
	for _, s := range idx.Symbols {
		if s.Name == "" {
			continue
		}
		t.Add(Record{Module: s.Module, Name: s.Name, Bases: s.Bases, Doc: s.Doc})
	}
	return t
}

// Records returns every record sorted by qualified name.
func (t *Table) Records() []Record {
	if t == nil {
		return nil
	}
	out := make([]Record, 0, len(t.byName))
	for _, recs := range t.byName {
		for _, r := range recs {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QualifiedName() < out[j].QualifiedName()
	})
	return out
}

// Save writes the table as a YAML index.
func Save(path string, t *Table) error {
	idx := dto.SymbolIndex{Version: 1}
	for _, r := range t.Records() {
		idx.Symbols = append(idx.Symbols, dto.SymbolRecord{
			Module: r.Module,
			Name:   r.Name,
			Bases:  r.Bases,
			Doc:    r.Doc,
		})
	}
	data, err := yaml.Marshal(struct {
		Version int                `yaml:"version"`
		Symbols []dto.SymbolRecord `yaml:"symbols"`
	}{idx.Version, idx.Symbols})
	if err != nil {
		return fmt.Errorf("failed to encode symbol index: %w", err)
	}
	if err := file.WriteAtomic(path, data, nil); err != nil {
		return fmt.Errorf("failed to write symbol index: %w", err)
	}
	return nil
}
