/*
Package ports defines the driven ports (interfaces) for pipeprobe.

These interfaces decouple run orchestration from the concrete probe process and
from the coordination backend, so sessions and adapters can be tested with fakes.

# Key Interfaces

  - Prober: runs one probe request and streams its events.
  - DistributedLocker: provides distributed locking so a session runs at most one
    probe at a time across replicas.
*/
package ports
