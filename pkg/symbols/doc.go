// Package symbols resolves constructible symbol references against a table of
// pre-resolved class records and answers subtype questions by walking the
// supertype graph explicitly.
//
// A reference resolves by exact qualified name first. Failing that, a record
// whose simple name equals the final segment of its own module path is treated
// as equivalent to the bare module reference (the package re-export form, e.g.
// "pkg.dataset.Dataset" for a class Dataset defined in module pkg.dataset.Dataset).
// Unresolvable or ambiguous references never match.
package symbols
