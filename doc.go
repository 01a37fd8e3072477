/*
Package warmtransfer coordinates warm transfers of live calls.

A caller talks to Agent A, who briefs Agent B with a generated summary of the call and
then hands the caller over, leaving caller and Agent B connected. The package tracks
concurrent session state across the three parties, sequences the handoff so no party
is silently dropped, and guarantees the briefing exists before the handoff completes.

# Architecture

The core is split into components that consume external collaborators through the
interfaces in pkg/ports (Hexagonal Architecture):

  - Session Registry (pkg/session): sessions and their caller/agent_a/agent_b slots.
  - Context Buffer (pkg/contextbuf): bounded recent utterances per session.
  - Summarizer Gateway (pkg/summary): bounded calls to a text-generation provider.
  - Transfer Coordinator (pkg/transfer): the initiated/briefed/completed state machine.
  - Notification Channel (pkg/notify): per-session event fan-out.

Service wires them together; adapters under pkg/adapters expose it over HTTP and MCP
and connect it to LiveKit, OpenAI, Twilio and Redis.

# Usage

	svc := warmtransfer.New(rooms, tokens, generator,
		warmtransfer.WithLogger(logger),
		warmtransfer.WithTransferTTL(5*time.Minute),
	)
	defer svc.Close()
	go svc.Run(ctx) // expiry sweeper

	_, _, _ = svc.Registry.CreateSession(ctx, "r1", domain.RoleCaller)
	_, _ = svc.Registry.JoinSession(ctx, "r1", domain.RoleAgentA)
	_, _, _ = svc.Registry.CreateSession(ctx, "r2", domain.RoleAgentB)
	_, _ = svc.RecordUtterance(ctx, "r1", "I was double charged")

	rec, _ := svc.Coordinator.InitiateTransfer(ctx, "r1", "r2", "r1") // briefed
	rec, _ = svc.Coordinator.CompleteTransfer(ctx, rec.ID)             // completed
*/
package warmtransfer
