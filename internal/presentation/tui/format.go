package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
)

const stamp = time.RFC3339

// SessionMarkdown describes one session.
func SessionMarkdown(s domain.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Name)
	fmt.Fprintf(&b, "- **State:** %s\n", s.State)
	fmt.Fprintf(&b, "- **Created:** %s\n", s.CreatedAt.Format(stamp))
	if s.Room.SID != "" {
		fmt.Fprintf(&b, "- **Room:** %s\n", s.Room.SID)
	}
	b.WriteString("\n| Slot | Joined |\n|---|---|\n")
	for _, role := range domain.Roles {
		joined := "-"
		if p, ok := s.Participants[role]; ok {
			joined = p.JoinedAt.Format(stamp)
		}
		fmt.Fprintf(&b, "| %s | %s |\n", role, joined)
	}
	return b.String()
}

// SessionTable lists sessions one row each.
func SessionTable(sessions []domain.Session) string {
	if len(sessions) == 0 {
		return "_No sessions._\n"
	}
	var b strings.Builder
	b.WriteString("| Session | State | Participants |\n|---|---|---|\n")
	for _, s := range sessions {
		roles := make([]string, 0, len(s.Participants))
		for _, r := range s.Occupants() {
			roles = append(roles, string(r))
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", s.Name, s.State, strings.Join(roles, ", "))
	}
	return b.String()
}

// TransferMarkdown describes a transfer and its briefing.
func TransferMarkdown(t domain.TransferRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transfer %s\n\n", t.ID)
	fmt.Fprintf(&b, "- **Status:** %s\n", t.Status)
	fmt.Fprintf(&b, "- **From:** %s\n- **To:** %s\n- **Caller:** %s\n", t.Source, t.Target, t.Caller)
	fmt.Fprintf(&b, "- **Updated:** %s\n", t.UpdatedAt.Format(stamp))
	if t.FailureReason != "" {
		fmt.Fprintf(&b, "- **Failure:** %s\n", t.FailureReason)
	}
	if t.Summary != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n> %s\n", t.Summary)
	}
	return b.String()
}
