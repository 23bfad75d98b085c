/*
Package domain contains the core value types of the pipeline probe.

It defines the pipeline topology extracted from a configuration document, the
snapshots captured while a probe runs, the protocol events that carry them and
the keyed tree diff used to compare consecutive snapshots. This package is kept
pure and free of external dependencies like I/O or process management.

# Key Entities

  - DatasetNode: A configuration subtree recognized as a loadable data source,
    optionally wrapping another dataset.
  - TransformStep: A per-entry transformation applied in sequence.
  - EntrySnapshot / FieldSnapshot: A serializable summary of an entry at one step.
  - Event: The discriminated union of probe protocol events.
  - FieldDiff: The per-field classification of change between two snapshots.
*/
package domain
