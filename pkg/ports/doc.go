/*
Package ports defines the driven ports (interfaces) of the warm transfer coordinator.

These interfaces decouple the core from the media platform, the text-generation
backend, the telephony provider and the event transport.

# Key Interfaces

  - RoomProvider / TokenIssuer: Create rooms and sign join credentials.
  - TextGenerator: Turns a prompt into a short text (used by the summarizer only).
  - Telephony: Optional phone calls and SMS.
  - Notifier: Fire-and-forget delivery of session events.
  - DistributedLocker: Cross-replica locking for per-entity serialization.
*/
package ports
