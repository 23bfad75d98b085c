/*
Package session serialises probe runs per session.

A session (typically one open configuration file in a client) runs at most one
probe at a time. Starting a second run while the first is alive fails fast
with domain.ErrRunInProgress instead of queueing. An optional distributed
locker extends the guarantee across replicas sharing a backend.
*/
package session
