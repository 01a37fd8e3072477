/*
Package transfer implements the Transfer Coordinator, which drives warm transfers
through their state machine:

	initiated -> briefed -> completed
	initiated | briefed -> failed | expired

# Concurrency

Each source session carries at most one pending (initiated or briefed) transfer.
Mutations are serialized per entity through a lock.Manager using the keys
"source:<session>" and "transfer:<id>", always taken in sorted order. The
coordinator takes its own keys first and then calls into the session registry;
the registry never calls back while holding a lock.

InitiateTransfer reserves the slot under the source lock, releases it while the
summarizer runs (bounded by a timeout and detached from the caller's cancellation),
then re-acquires the locks and commits only if the reservation is still the active
one. The expiry sweeper uses the same locks, so a completion that happened first
always wins over expiry.
*/
package transfer
