package dto

// SymbolIndex is the on-disk shape of a symbol index file.
// It uses "mapstructure" tags so YAML and JSON indexes decode the same way.
type SymbolIndex struct {
	Version int            `json:"version" mapstructure:"version"`
	Symbols []SymbolRecord `json:"symbols" mapstructure:"symbols"`
}

// SymbolRecord describes one class as reported by the interpreter.
type SymbolRecord struct {
	Module string   `json:"module" mapstructure:"module"`
	Name   string   `json:"name" mapstructure:"name"`
	Bases  []string `json:"bases" mapstructure:"bases"`
	Doc    string   `json:"doc,omitempty" mapstructure:"doc"`
}
