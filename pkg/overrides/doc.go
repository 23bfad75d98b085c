// Package overrides replaces dataset data roots, either in memory for a single
// run or persistently in the configuration document.
package overrides
