package process

import _ "embed"

// ProbeScript is the default script run by the interpreter for every probe.
//
//go:embed assets/probe_script.py
var ProbeScript []byte

// IndexScript reports class records for the symbol table.
//
//go:embed assets/index_script.py
var IndexScript []byte
