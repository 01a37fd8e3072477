/*
Package domain contains the core models of the warm transfer coordinator.

It defines the entities that the registry, buffer and coordinator share, along with
the error kinds reported to callers. This package is kept pure and free of external
dependencies like I/O or transport, following Hexagonal Architecture principles.

# Key Entities

  - Session: One logical call with caller, agent_a and agent_b slots.
  - ContextEntry: A recorded utterance, sequenced per session.
  - TransferRecord: The audit/state object of one handoff attempt.
  - Event: A state change pushed to subscribers of a session.

# Transfer State Machine

	initiated -> briefed -> completed
	initiated | briefed -> failed | expired

Terminal states (completed, failed, expired) have no outgoing transitions.
*/
package domain
