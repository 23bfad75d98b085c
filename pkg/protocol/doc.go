// Package protocol implements the line protocol spoken by a probe process.
//
// The child writes UTF-8 text to standard output. Lines starting with the
// event marker carry exactly one JSON object whose "type" field selects the
// event variant; every other line is diagnostic noise. Marker lines that do not
// decode are dropped without ending the stream.
package protocol
