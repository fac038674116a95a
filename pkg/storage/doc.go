/*
Package storage keeps the run journal of a working directory in a BoltDB file.

Terraform's declared configuration has exactly one writer at a time. The journal
enforces that: Open takes bbolt's exclusive file lock, and a second rollout on
the same directory fails with ErrLocked.

The journal holds a single record, the InFlight marker, written before each
step and removed when a run completes or rolls back. A crash between apply and
health evaluation leaves the fleet in an intermediate state; the marker left
behind makes the next rollout refuse to start with ErrInFlight until an
operator runs `fleetroll unlock`.

No rollout history is kept.
*/
package storage
