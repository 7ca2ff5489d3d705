package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streamwall/streamsync/extract"
	"github.com/streamwall/streamsync/hub"
	"github.com/streamwall/streamsync/store"
	"github.com/streamwall/streamsync/telemetry"
)

// Outcome is the per-backend result of syncing one candidate. A duplicate
// short-circuit produces a single outcome with Backend "none".
type Outcome struct {
	Backend string `json:"backend"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// IngestResult is the per-URL answer returned to ingestion callers.
type IngestResult struct {
	URL      string           `json:"url"`
	Platform extract.Platform `json:"platform"`
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	Outcomes []Outcome        `json:"outcomes,omitempty"`
}

// Synchronizer writes each admitted candidate through every configured
// backend store. Writes are independent: one backend failing never blocks,
// retries, or rolls back the other, and partial success is a valid terminal
// state surfaced to the caller rather than a pipeline failure.
type Synchronizer struct {
	Ledger *Ledger
	Stores []store.Store
	Hub    *hub.Hub
}

// NewSynchronizer wires the pipeline against the given stores.
func NewSynchronizer(ledger *Ledger, hb *hub.Hub, stores ...store.Store) *Synchronizer {
	return &Synchronizer{Ledger: ledger, Stores: stores, Hub: hb}
}

// Ingest extracts candidates from a raw message and syncs each one,
// returning one result per extracted URL. A message with no recognizable
// stream URLs yields an empty slice, not an error.
func (s *Synchronizer) Ingest(ctx context.Context, message, reportedBy, source string) []IngestResult {
	candidates := extract.Candidates(message, reportedBy, time.Now())
	telemetry.AddCandidatesExtracted(len(candidates))
	results := make([]IngestResult, 0, len(candidates))
	for _, cand := range candidates {
		outcomes := s.Sync(ctx, cand, source)
		res := IngestResult{URL: cand.URL, Platform: cand.Platform, Outcomes: outcomes}
		if len(outcomes) == 1 && outcomes[0].Backend == "none" {
			res.Reason = outcomes[0].Error
		} else {
			for _, o := range outcomes {
				if o.Success {
					res.Accepted = true
					break
				}
			}
			if !res.Accepted {
				res.Reason = "all backends failed"
			}
		}
		results = append(results, res)
	}
	return results
}

// Sync pushes one candidate through the dedup ledger and then creates it in
// every backend concurrently. Outcomes are returned in store order. On each
// successful create a created event is published carrying that backend's
// record.
func (s *Synchronizer) Sync(ctx context.Context, cand extract.Candidate, source string) []Outcome {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("url", cand.URL), slog.String("component", "sync"))

	if !s.Ledger.Admit(cand.URL) {
		logger.Debug("candidate already admitted; skipping")
		telemetry.IncCandidatesDuplicate()
		return []Outcome{{Backend: "none", Success: false, Error: "duplicate"}}
	}
	telemetry.SetLedgerSize(s.Ledger.Size())

	rec := store.Record{
		URL:      cand.URL,
		Platform: cand.Platform,
		City:     cand.City,
		State:    cand.State,
		Status:   store.StatusChecking,
		Source:   source,
	}

	outcomes := make([]Outcome, len(s.Stores))
	var wg sync.WaitGroup
	for i, st := range s.Stores {
		wg.Add(1)
		go func(i int, st store.Store) {
			defer wg.Done()
			created, err := st.Create(ctx, rec)
			if err != nil {
				outcomes[i] = Outcome{Backend: st.Name(), Success: false, Error: err.Error()}
				telemetry.IncBackendWriteFailures(st.Name())
				logger.Warn("backend create failed", slog.String("backend", st.Name()), slog.Any("err", err))
				return
			}
			outcomes[i] = Outcome{Backend: st.Name(), Success: true}
			logger.Info("stream record created", slog.String("backend", st.Name()), slog.String("id", created.ID))
			if s.Hub != nil {
				s.Hub.Publish(hub.StreamsChannel, hub.Event{Type: hub.EventCreated, Data: map[string]any{
					"backend": st.Name(),
					"stream":  created,
				}})
			}
		}(i, st)
	}
	wg.Wait()
	return outcomes
}
