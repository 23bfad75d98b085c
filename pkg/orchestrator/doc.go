/*
Package orchestrator gives meaning to a probe's event stream.

Machine validates the order of events as they arrive. Recorder folds a stream
into a Report that can be rendered or diffed after the run. Sequence produces a
stream in-process, walking a dataset's wrapped chain with a Go Executor, and is
the reference for the ordering rules every producer follows:

  - inner datasets run first; a successful inner dataset is followed by a
    Connector naming its wrapper
  - when an inner dataset fails, its wrapper reports DatasetStart, Skipped and
    DatasetEnd without running
  - a dataset reports its untransformed entry as step 0, then one snapshot per
    transform, stopping at the first StepError
  - exactly one Complete closes the run

The embedded Python probe script follows the same rules out of process.
Planner is the Executor behind dry runs: it executes nothing and reports each
dataset's data root as its only field.
*/
package orchestrator
