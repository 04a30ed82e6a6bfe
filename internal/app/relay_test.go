package app

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rnplay/relay/internal/core"
	"github.com/rnplay/relay/internal/transform"
)

// fakeSender records every envelope delivered to it.
type fakeSender struct {
	sent []core.Envelope
	err  error
}

func (f *fakeSender) TrySend(data []byte) error {
	if f.err != nil {
		return f.err
	}
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSender) byType(msgType string) []core.Envelope {
	var out []core.Envelope
	for _, env := range f.sent {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

type failingTransformer struct{}

func (failingTransformer) Transform(string) (string, error) {
	return "", errors.New("parse error")
}

type upperTransformer struct{}

func (upperTransformer) Transform(code string) (string, error) {
	out := []byte(code)
	for i, b := range out {
		if b >= 'a' && b <= 'z' {
			out[i] = b - 'a' + 'A'
		}
	}
	return string(out), nil
}

func newTestRelay(tr transform.Transformer) (*Relay, *Registry) {
	reg := NewRegistry()
	return NewRelay(reg, tr, nil), reg
}

func TestRelayGreetSendsClientID(t *testing.T) {
	rl, _ := newTestRelay(nil)
	s := &fakeSender{}

	rl.Greet("c1", s)

	if len(s.sent) != 1 {
		t.Fatalf("sent %d envelopes, want 1", len(s.sent))
	}
	if s.sent[0].Type != core.TypeClientID || s.sent[0].ClientID != "c1" {
		t.Fatalf("greeting=%+v", s.sent[0])
	}
}

func TestRelayRegisterBroadcastsToOthers(t *testing.T) {
	rl, _ := newTestRelay(nil)
	a, b := &fakeSender{}, &fakeSender{}

	rl.Register("a", core.ClientTypeMobile, a)
	rl.Register("b", "", b) // empty type defaults to web

	got := a.byType(core.TypeClientConnected)
	if len(got) != 1 {
		t.Fatalf("a received %d client-connected, want 1", len(got))
	}
	if got[0].ClientID != "b" || got[0].ClientType != core.ClientTypeWeb {
		t.Fatalf("client-connected=%+v", got[0])
	}
	if n := len(b.byType(core.TypeClientConnected)); n != 0 {
		t.Fatalf("b received %d client-connected about itself, want 0", n)
	}
}

func TestRelayOfferTargeted(t *testing.T) {
	rl, _ := newTestRelay(nil)
	a, b, c := &fakeSender{}, &fakeSender{}, &fakeSender{}
	rl.Register("a", core.ClientTypeWeb, a)
	rl.Register("b", core.ClientTypeMobile, b)
	rl.Register("c", core.ClientTypeWeb, c)

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0","extra":"kept"}`)
	rl.Offer("a", "b", payload)

	got := b.byType(core.TypeOffer)
	if len(got) != 1 {
		t.Fatalf("b received %d offers, want 1", len(got))
	}
	if got[0].FromID != "a" {
		t.Fatalf("fromId=%q, want a", got[0].FromID)
	}
	if string(got[0].Offer) != string(payload) {
		t.Fatalf("offer payload altered: %s", got[0].Offer)
	}
	if n := len(c.byType(core.TypeOffer)); n != 0 {
		t.Fatalf("c received %d offers, want 0", n)
	}
}

func TestRelayOfferBroadcastWithoutTarget(t *testing.T) {
	rl, _ := newTestRelay(nil)
	a, b, c := &fakeSender{}, &fakeSender{}, &fakeSender{}
	rl.Register("a", core.ClientTypeWeb, a)
	rl.Register("b", core.ClientTypeMobile, b)
	rl.Register("c", core.ClientTypeWeb, c)

	rl.Offer("a", "", json.RawMessage(`{}`))

	if n := len(b.byType(core.TypeOffer)); n != 1 {
		t.Fatalf("b received %d offers, want 1", n)
	}
	if n := len(c.byType(core.TypeOffer)); n != 1 {
		t.Fatalf("c received %d offers, want 1", n)
	}
	if n := len(a.byType(core.TypeOffer)); n != 0 {
		t.Fatalf("sender echoed %d offers, want 0", n)
	}
}

func TestRelayOfferUnknownTargetDropped(t *testing.T) {
	rl, _ := newTestRelay(nil)
	a := &fakeSender{}
	rl.Register("a", core.ClientTypeWeb, a)

	rl.Offer("a", "ghost", json.RawMessage(`{}`))

	// Nothing delivered anywhere, no error surfaced to the sender.
	if n := len(a.byType(core.TypeOffer)); n != 0 {
		t.Fatalf("a received %d offers, want 0", n)
	}
}

func TestRelayAnswerRequiresTarget(t *testing.T) {
	rl, _ := newTestRelay(nil)
	a, b := &fakeSender{}, &fakeSender{}
	rl.Register("a", core.ClientTypeWeb, a)
	rl.Register("b", core.ClientTypeMobile, b)

	rl.Answer("a", "", json.RawMessage(`{}`))
	if n := len(b.byType(core.TypeAnswer)); n != 0 {
		t.Fatalf("untargeted answer delivered %d times, want 0", n)
	}

	rl.Answer("a", "b", json.RawMessage(`{"sdp":"v=0"}`))
	got := b.byType(core.TypeAnswer)
	if len(got) != 1 {
		t.Fatalf("b received %d answers, want 1", len(got))
	}
	if got[0].FromID != "a" {
		t.Fatalf("fromId=%q, want a", got[0].FromID)
	}
}

func TestRelayCandidateTargeting(t *testing.T) {
	rl, _ := newTestRelay(nil)
	a, b, c := &fakeSender{}, &fakeSender{}, &fakeSender{}
	rl.Register("a", core.ClientTypeWeb, a)
	rl.Register("b", core.ClientTypeMobile, b)
	rl.Register("c", core.ClientTypeWeb, c)

	rl.Candidate("a", "b", json.RawMessage(`{"candidate":"x"}`))
	rl.Candidate("a", "", json.RawMessage(`{"candidate":"y"}`))

	if n := len(b.byType(core.TypeICECandidate)); n != 2 {
		t.Fatalf("b received %d candidates, want 2", n)
	}
	if n := len(c.byType(core.TypeICECandidate)); n != 1 {
		t.Fatalf("c received %d candidates, want 1", n)
	}
	if n := len(a.byType(core.TypeICECandidate)); n != 0 {
		t.Fatalf("sender echoed %d candidates, want 0", n)
	}
}

func TestRelayCodeUpdateTransformFailureFallsBack(t *testing.T) {
	rl, _ := newTestRelay(failingTransformer{})
	mobile, web := &fakeSender{}, &fakeSender{}
	rl.Register("m", core.ClientTypeMobile, mobile)
	rl.Register("w", core.ClientTypeWeb, web)

	const src = "export default () => null"
	rl.CodeUpdate("w", src)

	got := mobile.byType(core.TypeCodeUpdate)
	if len(got) != 1 {
		t.Fatalf("mobile received %d code-updates, want 1", len(got))
	}
	if got[0].Code != src {
		t.Fatalf("code=%q, want original %q", got[0].Code, src)
	}
	if got[0].OriginalCode != src {
		t.Fatalf("originalCode=%q, want %q", got[0].OriginalCode, src)
	}
	if n := len(web.byType(core.TypeCodeUpdate)); n != 0 {
		t.Fatalf("sender echoed %d code-updates, want 0", n)
	}
}

func TestRelayCodeUpdateGoesToMobileOnly(t *testing.T) {
	rl, _ := newTestRelay(upperTransformer{})
	m1, m2, w := &fakeSender{}, &fakeSender{}, &fakeSender{}
	rl.Register("m1", core.ClientTypeMobile, m1)
	rl.Register("m2", core.ClientTypeMobile, m2)
	rl.Register("w", core.ClientTypeWeb, w)

	rl.CodeUpdate("w", "abc")

	for name, s := range map[string]*fakeSender{"m1": m1, "m2": m2} {
		got := s.byType(core.TypeCodeUpdate)
		if len(got) != 1 {
			t.Fatalf("%s received %d code-updates, want 1", name, len(got))
		}
		if got[0].Code != "ABC" || got[0].OriginalCode != "abc" {
			t.Fatalf("%s got code=%q original=%q", name, got[0].Code, got[0].OriginalCode)
		}
	}
	if n := len(w.byType(core.TypeCodeUpdate)); n != 0 {
		t.Fatalf("web received %d code-updates, want 0", n)
	}
}

func TestRelayListClientsEmptyWhenNoneRegistered(t *testing.T) {
	rl, _ := newTestRelay(nil)
	s := &fakeSender{}

	// The requester itself never registered.
	rl.ListClients("fresh", s)

	got := s.byType(core.TypeClientsList)
	if len(got) != 1 {
		t.Fatalf("received %d clients-list, want 1", len(got))
	}
	if len(got[0].Clients) != 0 {
		t.Fatalf("clients=%v, want empty", got[0].Clients)
	}
}

func TestRelayListClientsExcludesRequester(t *testing.T) {
	rl, _ := newTestRelay(nil)
	a, b := &fakeSender{}, &fakeSender{}
	rl.Register("a", core.ClientTypeMobile, a)
	rl.Register("b", core.ClientTypeWeb, b)

	rl.ListClients("a", a)

	got := a.byType(core.TypeClientsList)
	if len(got) != 1 {
		t.Fatalf("received %d clients-list, want 1", len(got))
	}
	if len(got[0].Clients) != 1 || got[0].Clients[0].ID != "b" {
		t.Fatalf("clients=%v, want [b]", got[0].Clients)
	}
}

func TestRelayDisconnectBroadcasts(t *testing.T) {
	rl, reg := newTestRelay(nil)
	a, b := &fakeSender{}, &fakeSender{}
	rl.Register("a", core.ClientTypeMobile, a)
	rl.Register("b", core.ClientTypeWeb, b)

	rl.Disconnect("a")

	if _, _, ok := reg.Get("a"); ok {
		t.Fatalf("a still registered after disconnect")
	}
	got := b.byType(core.TypeClientDisconnected)
	if len(got) != 1 || got[0].ClientID != "a" {
		t.Fatalf("client-disconnected=%v", got)
	}
}

func TestRelayDisconnectUnregisteredIsSilent(t *testing.T) {
	rl, _ := newTestRelay(nil)
	b := &fakeSender{}
	rl.Register("b", core.ClientTypeWeb, b)

	// A connection that never registered disconnects.
	rl.Disconnect("ghost")

	if n := len(b.byType(core.TypeClientDisconnected)); n != 0 {
		t.Fatalf("b received %d client-disconnected, want 0", n)
	}
}

func TestRelayDeliveryFailureSkipsSession(t *testing.T) {
	rl, _ := newTestRelay(nil)
	stuck := &fakeSender{err: errors.New("backpressure")}
	ok := &fakeSender{}
	rl.Register("stuck", core.ClientTypeWeb, stuck)
	rl.Register("ok", core.ClientTypeWeb, ok)
	rl.Register("sender", core.ClientTypeWeb, &fakeSender{})

	rl.Offer("sender", "", json.RawMessage(`{}`))

	// The writable session still gets the message; the stuck one is
	// silently skipped, not retried.
	if n := len(ok.byType(core.TypeOffer)); n != 1 {
		t.Fatalf("ok received %d offers, want 1", n)
	}
}
