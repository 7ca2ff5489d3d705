package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streamwall/streamsync/extract"
	"github.com/streamwall/streamsync/hub"
	"github.com/streamwall/streamsync/testutil"
)

func TestIngestDualWrite(t *testing.T) {
	primary := testutil.NewFakeStore("primary")
	legacy := testutil.NewFakeStore("legacy")
	s := NewSynchronizer(NewLedger(), nil, primary, legacy)

	results := s.Ingest(context.Background(), "Protest stream live https://twitch.tv/somechannel Seattle, WA", "reporter", "chat")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if !res.Accepted {
		t.Fatalf("result not accepted: %+v", res)
	}
	if res.Platform != extract.PlatformTwitch {
		t.Errorf("platform = %q, want twitch", res.Platform)
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(res.Outcomes))
	}
	for _, o := range res.Outcomes {
		if !o.Success {
			t.Errorf("backend %s failed: %s", o.Backend, o.Error)
		}
	}
	for _, st := range []*testutil.FakeStore{primary, legacy} {
		rec, ok := st.ByURL("https://twitch.tv/somechannel")
		if !ok {
			t.Fatalf("record missing in %s", st.Name())
		}
		if rec.City != "Seattle" || rec.State != "WA" {
			t.Errorf("%s location = %q, %q, want Seattle, WA", st.Name(), rec.City, rec.State)
		}
		if rec.Source != "chat" {
			t.Errorf("%s source = %q, want chat", st.Name(), rec.Source)
		}
	}
}

func TestIngestNoURLs(t *testing.T) {
	s := NewSynchronizer(NewLedger(), nil, testutil.NewFakeStore("primary"))
	results := s.Ingest(context.Background(), "no links here", "reporter", "chat")
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
}

func TestSyncDuplicateShortCircuits(t *testing.T) {
	primary := testutil.NewFakeStore("primary")
	s := NewSynchronizer(NewLedger(), nil, primary)
	cand := extract.Candidate{URL: "https://twitch.tv/dup", Platform: extract.PlatformTwitch}

	first := s.Sync(context.Background(), cand, "chat")
	if len(first) != 1 || !first[0].Success {
		t.Fatalf("first sync failed: %+v", first)
	}
	second := s.Sync(context.Background(), cand, "chat")
	if len(second) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(second))
	}
	if second[0].Backend != "none" || second[0].Success || second[0].Error != "duplicate" {
		t.Errorf("duplicate outcome = %+v, want backend none, error duplicate", second[0])
	}
	if primary.CreateCalls != 1 {
		t.Errorf("primary Create called %d times, want 1", primary.CreateCalls)
	}
}

func TestSyncPartialFailureIsolated(t *testing.T) {
	primary := testutil.NewFakeStore("primary")
	legacy := testutil.NewFakeStore("legacy")
	legacy.FailCreate = errors.New("bridge down")
	s := NewSynchronizer(NewLedger(), nil, primary, legacy)

	outcomes := s.Sync(context.Background(), extract.Candidate{URL: "https://kick.com/x", Platform: extract.PlatformKick}, "chat")
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	// Outcomes come back in store order.
	if !outcomes[0].Success {
		t.Errorf("primary outcome failed: %+v", outcomes[0])
	}
	if outcomes[1].Success || outcomes[1].Error != "bridge down" {
		t.Errorf("legacy outcome = %+v, want failure with bridge down", outcomes[1])
	}
	if _, ok := primary.ByURL("https://kick.com/x"); !ok {
		t.Error("primary write should survive legacy failure")
	}
	// The ledger admitted the URL, so the failed backend is not retried by
	// a re-ingest of the same message.
	again := s.Sync(context.Background(), extract.Candidate{URL: "https://kick.com/x"}, "chat")
	if len(again) != 1 || again[0].Error != "duplicate" {
		t.Errorf("re-sync = %+v, want duplicate short-circuit", again)
	}
}

func TestIngestAllBackendsFailed(t *testing.T) {
	primary := testutil.NewFakeStore("primary")
	primary.FailCreate = errors.New("db down")
	s := NewSynchronizer(NewLedger(), nil, primary)

	results := s.Ingest(context.Background(), "https://twitch.tv/down", "reporter", "chat")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Accepted {
		t.Error("result accepted despite all backends failing")
	}
	if results[0].Reason != "all backends failed" {
		t.Errorf("reason = %q, want all backends failed", results[0].Reason)
	}
}

func TestSyncPublishesCreatedEvents(t *testing.T) {
	hb := hub.New(hub.StreamsChannel)
	sub := hb.Connect(8)
	t.Cleanup(func() { hb.Disconnect(sub) })
	if err := hb.Subscribe(sub, hub.StreamsChannel); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s := NewSynchronizer(NewLedger(), hb, testutil.NewFakeStore("primary"))
	s.Sync(context.Background(), extract.Candidate{URL: "https://youtube.com/watch?v=abc", Platform: extract.PlatformYouTube}, "chat")

	select {
	case payload := <-sub.C:
		var e hub.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if e.Type != hub.EventCreated {
			t.Errorf("event type = %q, want created", e.Type)
		}
		if e.Channel != hub.StreamsChannel {
			t.Errorf("event channel = %q, want streams", e.Channel)
		}
	case <-time.After(time.Second):
		t.Fatal("no created event published")
	}
}
