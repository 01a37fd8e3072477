package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/warmtransfer"
	"github.com/aretw0/warmtransfer/pkg/adapters/memory"
	"github.com/aretw0/warmtransfer/pkg/adapters/twilio"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/ports"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) (*warmtransfer.Service, *Server) {
	t.Helper()
	gen := ports.TextGeneratorFunc(func(_ context.Context, _, user string, _ int, _ float64) (string, error) {
		return "Caller reports a billing problem.", nil
	})
	svc := warmtransfer.New(memory.NewRooms(), &memory.Tokens{URL: "ws://localhost:7880"}, gen)
	t.Cleanup(svc.Close)
	return svc, NewServer(svc, opts...)
}

func do(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	out := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestServer_TransferFlow(t *testing.T) {
	_, h := newTestServer(t)

	w, out := do(t, h, "POST", "/api/rooms/create", map[string]string{"room_name": "r1", "participant_type": "caller"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "r1", out["room_name"])
	assert.NotEmpty(t, out["token"])
	assert.Equal(t, "ws://localhost:7880", out["url"])

	w, out = do(t, h, "POST", "/api/rooms/join?room_name=r1&participant_type=agent_a", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", out["status"])

	w, _ = do(t, h, "POST", "/api/rooms/create", map[string]string{"room_name": "r2", "participant_type": "agent_b"})
	require.Equal(t, http.StatusOK, w.Code)

	w, out = do(t, h, "POST", "/api/rooms/r1/context", map[string]any{"utterances": []string{"I was double charged", "order 42"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, out["entries"], 2)

	w, out = do(t, h, "GET", "/api/rooms/r1/context?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := out["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "order 42", entries[0].(map[string]any)["text"])

	w, out = do(t, h, "POST", "/api/transfer/initiate", map[string]string{"from_room": "r1", "to_room": "r2", "caller_room": "r1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "briefed", out["status"])
	assert.Equal(t, "Caller reports a billing problem.", out["call_summary"])
	assert.Len(t, out["next_steps"], 3)
	id := out["transfer_id"].(string)

	w, out = do(t, h, "GET", "/api/transfer/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Caller reports a billing problem.", out["summary"])

	w, out = do(t, h, "POST", "/api/transfer/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", out["status"])
	assert.Equal(t, "r2", out["room_name"])
	assert.NotEmpty(t, out["token"])

	w, out = do(t, h, "GET", "/api/rooms/r2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	participants := out["room"].(map[string]any)["participants"].(map[string]any)
	assert.Contains(t, participants, "caller")
	assert.Contains(t, participants, "agent_b")

	w, out = do(t, h, "GET", "/api/transfers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["transfers"], 1)

	w, out = do(t, h, "GET", "/api/rooms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["rooms"], 2)
}

func TestServer_ErrorMapping(t *testing.T) {
	_, h := newTestServer(t)

	w, out := do(t, h, "POST", "/api/rooms/join?room_name=missing&participant_type=caller", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(domain.KindNotFound), out["kind"])
	assert.NotEmpty(t, out["detail"])

	w, out = do(t, h, "POST", "/api/rooms/create", map[string]string{"room_name": "r1", "participant_type": "supervisor"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(domain.KindInvalidArgument), out["kind"])

	w, _ = do(t, h, "POST", "/api/rooms/create", map[string]string{"room_name": "r1", "participant_type": "caller"})
	require.Equal(t, http.StatusOK, w.Code)
	w, out = do(t, h, "POST", "/api/rooms/join?room_name=r1&participant_type=caller", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(domain.KindConflict), out["kind"])

	w, _ = do(t, h, "POST", "/api/rooms/r1/leave?participant_type=caller", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, out = do(t, h, "POST", "/api/rooms/join?room_name=r1&participant_type=agent_a", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, string(domain.KindClosed), out["kind"])

	w, _ = do(t, h, "POST", "/api/rooms/r1/leave?participant_type=caller", nil)
	assert.Equal(t, http.StatusOK, w.Code, "leave is idempotent")

	w, _ = do(t, h, "GET", "/api/transfer/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, h, "POST", "/api/transfer/initiate", map[string]string{"from_room": "a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[domain.Kind]int{
		domain.KindNotFound:        404,
		domain.KindConflict:        409,
		domain.KindInvalidState:    409,
		domain.KindClosed:          410,
		domain.KindGateway:         502,
		domain.KindTimeout:         504,
		domain.KindInvalidArgument: 400,
		domain.KindInternal:        500,
	}
	for kind, want := range tests {
		assert.Equal(t, want, StatusFor(kind), kind)
	}
}

func TestServer_SSE(t *testing.T) {
	svc, h := newTestServer(t)
	ctx := context.Background()
	_, _, err := svc.Registry.CreateSession(ctx, "r1", domain.RoleCaller)
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/rooms/r1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return strings.Join(lines, "\n")
			}
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "event: ping\ndata: connected", readEvent())

	_, err = svc.RecordUtterance(ctx, "r1", "hello there")
	require.NoError(t, err)
	ev := readEvent()
	assert.Contains(t, ev, "event: context.appended")
	assert.Contains(t, ev, "hello there")

	require.NoError(t, svc.Registry.LeaveSession(ctx, "r1", domain.RoleCaller))
	for {
		ev = readEvent()
		if strings.Contains(ev, "session.closed") {
			break
		}
	}
}

func TestServer_SSEUnknownSession(t *testing.T) {
	_, h := newTestServer(t)
	w, out := do(t, h, "GET", "/api/rooms/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(domain.KindNotFound), out["kind"])
}

func TestServer_WebSocket(t *testing.T) {
	svc, h := newTestServer(t)
	ctx := context.Background()
	_, _, err := svc.Registry.CreateSession(ctx, "r1", domain.RoleCaller)
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/r1", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	require.NotNil(t, msg.Session)
	assert.Equal(t, "r1", msg.Session.Name)

	_, err = svc.Registry.JoinSession(ctx, "r1", domain.RoleAgentA)
	require.NoError(t, err)

	for {
		var next wsMessage
		require.NoError(t, conn.ReadJSON(&next))
		require.NotNil(t, next.Event)
		if next.Event.Type == domain.EventParticipantJoined {
			assert.Equal(t, domain.RoleAgentA, next.Event.Role)
			break
		}
	}
}

func TestServer_RateLimit(t *testing.T) {
	_, h := newTestServer(t, WithRateLimit(1, 1))

	w, _ := do(t, h, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, out := do(t, h, "GET", "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, string(kindRateLimited), out["kind"])
}

func TestServer_CORS(t *testing.T) {
	_, h := newTestServer(t, WithCORSOrigins("http://localhost:3000"))

	req := httptest.NewRequest("OPTIONS", "/api/rooms", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_OpsAndSpec(t *testing.T) {
	_, h := newTestServer(t)

	w, out := do(t, h, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", out["status"])

	w, out = do(t, h, "GET", "/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, warmtransfer.Version, out["version"])
	assert.Equal(t, "1.0.0", out["api_version"])
	assert.Equal(t, false, out["telephony"])

	req := httptest.NewRequest("GET", "/openapi.yaml", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")

	spec, err := Spec()
	require.NoError(t, err)
	require.NoError(t, spec.Validate(context.Background()))
	assert.NotNil(t, spec.Paths.Find("/api/transfer/initiate"))

	w, _ = do(t, h, "POST", "/api/twilio/transfer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "telephony routes are off by default")
}

type nopTelephony struct{}

func (nopTelephony) PlaceCall(context.Context, string, string, string) (string, error) {
	return "CA1", nil
}
func (nopTelephony) SendMessage(context.Context, string, string, string) (bool, error) {
	return true, nil
}

func TestServer_TwilioRoutes(t *testing.T) {
	svc, h := newTestServer(t, WithTelephony(twilio.NewBridge(nopTelephony{}, "+1000", "http://hooks")))
	ctx := context.Background()
	_, _, err := svc.Registry.CreateSession(ctx, "r1", domain.RoleCaller)
	require.NoError(t, err)
	_, err = svc.Registry.JoinSession(ctx, "r1", domain.RoleAgentA)
	require.NoError(t, err)
	_, _, err = svc.Registry.CreateSession(ctx, "r2", domain.RoleAgentB)
	require.NoError(t, err)
	rec, err := svc.Coordinator.InitiateTransfer(ctx, "r1", "r2", "r1")
	require.NoError(t, err)

	w, out := do(t, h, "POST", "/api/twilio/transfer", map[string]string{
		"transfer_id":  rec.ID,
		"caller_phone": "+1caller",
		"agent_phone":  "+1agent",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info := out["transfer_info"].(map[string]any)
	assert.Equal(t, twilio.ConferenceName(rec.ID), info["conference_name"])

	w, out = do(t, h, "POST", "/api/twilio/sms-summary?transfer_id="+rec.ID+"&agent_phone=%2B1agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", out["status"])

	req := httptest.NewRequest("POST", "/api/twilio/conference/"+twilio.ConferenceName(rec.ID), nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	assert.Equal(t, "application/xml", rw.Header().Get("Content-Type"))
	assert.Contains(t, rw.Body.String(), "Caller reports a billing problem.")

	req = httptest.NewRequest("POST", "/api/twilio/conference/"+twilio.ConferenceName(rec.ID)+"?leg=caller", nil)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	assert.Contains(t, rw.Body.String(), "Please hold")
}
