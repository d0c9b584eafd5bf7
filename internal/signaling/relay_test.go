package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pairline/internal/domain"
	"github.com/ashureev/pairline/internal/presence"
)

type sentEvent struct {
	event string
	data  any
}

type recordingConn struct {
	id   string
	mu   sync.Mutex
	sent []sentEvent
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentEvent{event: event, data: data})
	return nil
}

func (c *recordingConn) events() []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentEvent, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (f *fakeRecorder) RecordInteraction(_ context.Context, userID, partnerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{userID, partnerID})
	return f.err == nil, f.err
}

func envelope(t *testing.T, event string, data any) Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return Envelope{Event: event, Data: raw}
}

func setupRelay(t *testing.T, ids ...string) (*Relay, map[string]*recordingConn, *fakeRecorder) {
	t.Helper()
	reg := presence.NewRegistry()
	conns := make(map[string]*recordingConn)
	for _, id := range ids {
		c := &recordingConn{id: "conn-" + id}
		conns[id] = c
		if err := reg.Register(id, c); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	rec := &fakeRecorder{}
	return NewRelay(reg, NewMemoryGuard(time.Minute), rec, time.Second), conns, rec
}

func TestRelayCallForwardsOfferWithCaller(t *testing.T) {
	relay, conns, _ := setupRelay(t, "alice", "bob")

	err := relay.Dispatch(context.Background(), "alice", conns["alice"],
		envelope(t, EventCall, map[string]any{"target": "bob", "offer": map[string]string{"sdp": "v=0"}}))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	got := conns["bob"].events()
	if len(got) != 1 || got[0].event != EventIncomingCall {
		t.Fatalf("expected incomingCall, got %+v", got)
	}
	payload := got[0].data.(IncomingCall)
	if payload.Caller != "alice" || string(payload.Offer) != `{"sdp":"v=0"}` {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRelayCallToAbsentTargetIsSilent(t *testing.T) {
	relay, conns, _ := setupRelay(t, "alice")

	err := relay.Dispatch(context.Background(), "alice", conns["alice"],
		envelope(t, EventCall, map[string]any{"target": "nonexistent"}))
	if !errors.Is(err, domain.ErrTargetUnreachable) {
		t.Fatalf("expected ErrTargetUnreachable, got %v", err)
	}
	if got := conns["alice"].events(); len(got) != 0 {
		t.Fatalf("sender must not be notified, got %+v", got)
	}
}

func TestRelayAnswerToAbsentCallerReportsError(t *testing.T) {
	relay, conns, _ := setupRelay(t, "bob")

	_ = relay.Dispatch(context.Background(), "bob", conns["bob"],
		envelope(t, EventCallAnswered, map[string]any{"caller": "nonexistent", "answer": "x"}))

	got := conns["bob"].events()
	if len(got) != 1 || got[0].event != EventCallError {
		t.Fatalf("expected callError back to sender, got %+v", got)
	}
	payload := got[0].data.(CallError)
	if payload.Sender != "" || string(payload.Error) != `"peer is not connected"` {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRelayTagsSenderPerKind(t *testing.T) {
	relay, conns, _ := setupRelay(t, "alice", "bob")
	ctx := context.Background()

	cases := []struct {
		in   Envelope
		want string
		tag  func(any) string
	}{
		{envelope(t, EventCallAnswered, map[string]any{"caller": "alice", "answer": 1}), EventCallAnswered, func(v any) string { return v.(CallAnswered).Answerer }},
		{envelope(t, EventICECandidate, map[string]any{"target": "alice", "candidate": 1}), EventICECandidate, func(v any) string { return v.(ICECandidate).Sender }},
		{envelope(t, EventCallError, map[string]any{"target": "alice", "error": "busy"}), EventCallError, func(v any) string { return v.(CallError).Sender }},
		{envelope(t, EventCallRejected, map[string]any{"caller": "alice"}), EventCallRejected, func(v any) string { return v.(CallRejected).Rejector }},
		{envelope(t, EventEndCall, map[string]any{"target": "alice"}), EventCallEnded, func(v any) string { return v.(CallEnded).Caller }},
	}

	for i, tc := range cases {
		if err := relay.Dispatch(ctx, "bob", conns["bob"], tc.in); err != nil {
			t.Fatalf("%s: Dispatch failed: %v", tc.in.Event, err)
		}
		got := conns["alice"].events()
		if len(got) != i+1 {
			t.Fatalf("%s: expected %d events, got %d", tc.in.Event, i+1, len(got))
		}
		last := got[i]
		if last.event != tc.want || tc.tag(last.data) != "bob" {
			t.Fatalf("%s: unexpected delivery %+v", tc.in.Event, last)
		}
	}
	relay.Wait()
}

func TestRelayDuplicateAcceptanceDeliversOnce(t *testing.T) {
	relay, conns, _ := setupRelay(t, "caller", "receiver")
	ctx := context.Background()
	env := envelope(t, EventAcceptCall, map[string]any{"caller": "caller", "offer": "x"})

	if err := relay.Dispatch(ctx, "receiver", conns["receiver"], env); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	if err := relay.Dispatch(ctx, "receiver", conns["receiver"], env); !errors.Is(err, domain.ErrDuplicateAcceptance) {
		t.Fatalf("expected ErrDuplicateAcceptance, got %v", err)
	}

	got := conns["caller"].events()
	if len(got) != 1 || got[0].event != EventCallAccepted || got[0].data.(CallAccepted).Acceptor != "receiver" {
		t.Fatalf("expected exactly one callAccepted, got %+v", got)
	}
}

func TestRelayConcurrentAcceptanceDeliversOnce(t *testing.T) {
	relay, conns, _ := setupRelay(t, "caller", "receiver")
	env := envelope(t, EventAcceptCall, map[string]any{"caller": "caller"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = relay.Dispatch(context.Background(), "receiver", conns["receiver"], env)
		}()
	}
	wg.Wait()

	if got := conns["caller"].events(); len(got) != 1 {
		t.Fatalf("expected one callAccepted, got %d", len(got))
	}
}

func TestRelayAcceptanceForAbsentCallerIsNotRecorded(t *testing.T) {
	relay, conns, _ := setupRelay(t, "receiver")
	env := envelope(t, EventAcceptCall, map[string]any{"caller": "caller"})

	if err := relay.Dispatch(context.Background(), "receiver", conns["receiver"], env); !errors.Is(err, domain.ErrTargetUnreachable) {
		t.Fatalf("expected ErrTargetUnreachable, got %v", err)
	}
	if n := relay.guard.(*MemoryGuard).Len(); n != 0 {
		t.Fatalf("guard must stay empty, has %d records", n)
	}
}

func TestRelayEndCallRecordsInteraction(t *testing.T) {
	relay, conns, rec := setupRelay(t, "alice")

	// Target already gone: callEnded is undeliverable but the call still counts.
	err := relay.Dispatch(context.Background(), "alice", conns["alice"],
		envelope(t, EventEndCall, map[string]any{"target": "bob"}))
	if !errors.Is(err, domain.ErrTargetUnreachable) {
		t.Fatalf("expected ErrTargetUnreachable, got %v", err)
	}
	relay.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 1 || rec.calls[0] != [2]string{"alice", "bob"} {
		t.Fatalf("unexpected recorder calls %v", rec.calls)
	}
}

func TestRelayEndCallRecorderFailureDoesNotBlockDelivery(t *testing.T) {
	relay, conns, rec := setupRelay(t, "alice", "bob")
	rec.err = errors.New("db down")

	err := relay.Dispatch(context.Background(), "alice", conns["alice"],
		envelope(t, EventEndCall, map[string]any{"target": "bob"}))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	relay.Wait()

	if got := conns["bob"].events(); len(got) != 1 || got[0].event != EventCallEnded {
		t.Fatalf("expected callEnded, got %+v", got)
	}
}

func TestRelayRejectsUnknownAndMalformed(t *testing.T) {
	relay, conns, _ := setupRelay(t, "alice")

	if err := relay.Dispatch(context.Background(), "alice", conns["alice"], Envelope{Event: "bogus"}); !errors.Is(err, errUnknownEvent) {
		t.Fatalf("expected errUnknownEvent, got %v", err)
	}
	bad := Envelope{Event: EventCall, Data: json.RawMessage(`"not an object"`)}
	if err := relay.Dispatch(context.Background(), "alice", conns["alice"], bad); !errors.Is(err, errMalformed) {
		t.Fatalf("expected errMalformed, got %v", err)
	}
}
