package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.EmitSession(ctx, &domain.Event{Type: domain.EventSessionCreated})
	hooks.EmitSession(ctx, &domain.Event{Type: domain.EventSessionCreated})
	hooks.EmitSession(ctx, &domain.Event{Type: domain.EventSessionClosed})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsOpen))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionEvents.WithLabelValues("session.created")))

	hooks.EmitTransfer(ctx, &domain.Event{Transfer: &domain.TransferRecord{Status: domain.TransferBriefed}})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("briefed")))

	hooks.EmitSummarize(ctx, &domain.SummarizeEvent{Duration: time.Second})
	hooks.EmitSummarize(ctx, &domain.SummarizeEvent{Duration: time.Second, Err: errors.New("boom")})
	assert.Equal(t, 2, testutil.CollectAndCount(m.summarize))

	m.NotifyDropped("r1", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.notifyDropped))
}
