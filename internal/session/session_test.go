package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/geoanalyzer/internal/ai"
	"github.com/nyashahama/geoanalyzer/internal/conversation"
	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
	"github.com/nyashahama/geoanalyzer/internal/risk"
	"github.com/nyashahama/geoanalyzer/internal/session"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	madrid   = geo.Coordinates{Lat: 40.4168, Lon: -3.7038}
	valencia = geo.Coordinates{Lat: 39.4699, Lon: -0.3763}
	fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

// stubNarrator returns "report for <lat>" or err. When gate is non-nil, runs
// for the coordinate gated block until the gate is closed or ctx is done.
type stubNarrator struct {
	err      error
	readyErr error
	gate  chan struct{}
	gated geo.Coordinates
	calls atomic.Int32
}

func (n *stubNarrator) Ready() error { return n.readyErr }

func (n *stubNarrator) Run(ctx context.Context, at geo.Coordinates, address string) (string, error) {
	n.calls.Add(1)
	if n.gate != nil && at == n.gated {
		select {
		case <-n.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if n.err != nil {
		return "", n.err
	}
	return "report for " + at.Key() + " " + address, nil
}

type stubAssessor struct {
	err   error
	calls atomic.Int32
}

func (a *stubAssessor) Assess(_ context.Context, at geo.Coordinates) (risk.Assessment, error) {
	a.calls.Add(1)
	if a.err != nil {
		return risk.Assessment{}, a.err
	}
	return risk.Assess(risk.Inputs{Coordinates: at, ElevationM: 650, PrecipitationMm: 12}), nil
}

type stubGeocoder struct {
	err      error
	reverse  string
	geocodes atomic.Int32
	reverses atomic.Int32
}

func (g *stubGeocoder) Geocode(_ context.Context, address string) (geodata.GeocodeResult, error) {
	g.geocodes.Add(1)
	if g.err != nil {
		return geodata.GeocodeResult{}, g.err
	}
	return geodata.GeocodeResult{Coordinates: valencia, DisplayName: "Valencia, " + address}, nil
}

func (g *stubGeocoder) ReverseGeocode(context.Context, geo.Coordinates) string {
	g.reverses.Add(1)
	return g.reverse
}

func newSession(n session.Narrator, a session.RiskAssessor) *session.Session {
	return session.New(n, a, &stubGeocoder{reverse: "Calle Mayor, Madrid"}, discardLogger(), session.Options{
		Now:   func() time.Time { return fixedNow },
		NewID: func() uuid.UUID { return uuid.MustParse("6f1c0f0e-8a44-4a55-9a43-0d1f3c2b7e10") },
	})
}

// waitFor polls State until cond holds or the deadline passes.
func waitFor(t *testing.T, s *session.Session, cond func(session.State) bool) session.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := s.State(); cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met; state = %+v", s.State())
	return session.State{}
}

// ─── Analyze ──────────────────────────────────────────────────────────────────

func TestSession_InitiallyIdle(t *testing.T) {
	s := newSession(&stubNarrator{}, &stubAssessor{})
	if st := s.State(); st.Status != session.StatusIdle || st.Generation != 0 || st.Result != nil {
		t.Errorf("initial state = %+v", st)
	}
}

func TestAnalyze_Succeeds(t *testing.T) {
	n, a := &stubNarrator{}, &stubAssessor{}
	s := newSession(n, a)

	res, err := s.Analyze(context.Background(), madrid, " Puerta del Sol ")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Address != "Puerta del Sol" || res.Coordinates != madrid {
		t.Errorf("result = %+v", res)
	}
	if !res.Timestamp.Equal(fixedNow) || res.ID == uuid.Nil {
		t.Errorf("timestamp/id = %v / %v", res.Timestamp, res.ID)
	}
	if res.RiskAssessment.Level != risk.LevelMedium {
		t.Errorf("level = %s", res.RiskAssessment.Level)
	}
	if n.calls.Load() != 1 || a.calls.Load() != 1 {
		t.Errorf("narrator = %d, assessor = %d", n.calls.Load(), a.calls.Load())
	}

	st := s.State()
	if st.Status != session.StatusSucceeded || st.Generation != 1 || st.Result == nil || st.Result.ID != res.ID {
		t.Errorf("state = %+v", st)
	}
	if st.Previous != nil {
		t.Error("first result should have no previous")
	}
}

func TestAnalyze_SecondSuccessKeepsPrevious(t *testing.T) {
	s := newSession(&stubNarrator{}, &stubAssessor{})
	first, _ := s.Analyze(context.Background(), madrid, "")
	second, err := s.Analyze(context.Background(), valencia, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	st := s.State()
	if st.Result == nil || st.Result.Coordinates != second.Coordinates {
		t.Errorf("current = %+v", st.Result)
	}
	if st.Previous == nil || st.Previous.Coordinates != first.Coordinates {
		t.Errorf("previous = %+v", st.Previous)
	}
}

func TestAnalyze_FailureLeavesPreviousUntouched(t *testing.T) {
	n := &stubNarrator{}
	s := newSession(n, &stubAssessor{})

	if _, err := s.Analyze(context.Background(), madrid, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Analyze(context.Background(), valencia, ""); err != nil {
		t.Fatal(err)
	}

	n.err = &ai.APIError{Provider: "openai", StatusCode: 500, Message: "boom"}
	_, err := s.Analyze(context.Background(), madrid, "")
	if !errors.Is(err, ai.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	st := s.State()
	if st.Status != session.StatusFailed || st.Result != nil {
		t.Errorf("state = %+v", st)
	}
	// Previous is the result that was current when the failed run started.
	if st.Previous == nil || st.Previous.Coordinates != valencia {
		t.Errorf("previous = %+v", st.Previous)
	}
	if !strings.Contains(st.Error, "unavailable") {
		t.Errorf("user message = %q", st.Error)
	}
}

func TestAnalyze_BothPipelinesMustSucceed(t *testing.T) {
	a := &stubAssessor{err: context.DeadlineExceeded}
	s := newSession(&stubNarrator{}, a)

	_, err := s.Analyze(context.Background(), madrid, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if st := s.State(); st.Status != session.StatusFailed || st.Result != nil {
		t.Errorf("no partial result expected, got %+v", st)
	}
}

func TestAnalyze_InvalidCoordinates(t *testing.T) {
	n := &stubNarrator{}
	s := newSession(n, &stubAssessor{})

	_, err := s.Analyze(context.Background(), geo.Coordinates{Lat: 91, Lon: 0}, "")
	if !errors.Is(err, session.ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
	if n.calls.Load() != 0 {
		t.Error("narrator should not run for invalid coordinates")
	}
}

func TestAnalyze_StaleResultIsDiscarded(t *testing.T) {
	n := &stubNarrator{gate: make(chan struct{}), gated: madrid}
	s := newSession(n, &stubAssessor{})

	staleErr := make(chan error, 1)
	go func() {
		_, err := s.Analyze(context.Background(), madrid, "")
		staleErr <- err
	}()
	waitFor(t, s, func(st session.State) bool { return st.Generation == 1 })

	res, err := s.Analyze(context.Background(), valencia, "")
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}

	if err := <-staleErr; !errors.Is(err, session.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for the first request, got %v", err)
	}
	st := s.State()
	if st.Generation != 2 || st.Result == nil || st.Result.Coordinates != res.Coordinates {
		t.Errorf("state = %+v", st)
	}
}

func TestStart_LatestGenerationWins(t *testing.T) {
	n := &stubNarrator{gate: make(chan struct{}), gated: madrid}
	s := newSession(n, &stubAssessor{})
	defer s.Close()

	g1, err := s.Start(madrid, "")
	if err != nil {
		t.Fatal(err)
	}
	g2, err := s.Start(valencia, "")
	if err != nil {
		t.Fatal(err)
	}
	if g1 != 1 || g2 != 2 {
		t.Errorf("generations = %d, %d", g1, g2)
	}

	st := waitFor(t, s, func(st session.State) bool { return st.Status == session.StatusSucceeded })
	close(n.gate)

	if st.Generation != 2 || st.Result.Coordinates != valencia {
		t.Errorf("state = %+v", st)
	}
}

// ─── Subscribe ────────────────────────────────────────────────────────────────

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	s := newSession(&stubNarrator{}, &stubAssessor{})
	ch, cancel := s.Subscribe()
	defer cancel()

	if _, err := s.Analyze(context.Background(), madrid, ""); err != nil {
		t.Fatal(err)
	}

	var got []session.Status
	for range 3 {
		select {
		case st := <-ch:
			got = append(got, st.Status)
		case <-time.After(time.Second):
			t.Fatalf("timed out; got %v", got)
		}
	}
	want := []session.Status{session.StatusIdle, session.StatusLoading, session.StatusSucceeded}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSubscribe_SlowSubscriberKeepsLatest(t *testing.T) {
	s := session.New(&stubNarrator{}, &stubAssessor{}, nil, discardLogger(), session.Options{SubscriberBuffer: 1})
	ch, cancel := s.Subscribe()
	defer cancel()

	for _, at := range []geo.Coordinates{madrid, valencia, madrid} {
		if _, err := s.Analyze(context.Background(), at, ""); err != nil {
			t.Fatal(err)
		}
	}

	st := <-ch
	if st.Status != session.StatusSucceeded || st.Generation != 3 {
		t.Errorf("buffered snapshot = %+v, want the latest", st)
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	s := newSession(&stubNarrator{}, &stubAssessor{})
	ch, cancel := s.Subscribe()
	<-ch // initial snapshot
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

func TestClose_RejectsNewWork(t *testing.T) {
	s := newSession(&stubNarrator{}, &stubAssessor{})
	ch, _ := s.Subscribe()
	s.Close()

	if _, err := s.Start(madrid, ""); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Start after Close: %v", err)
	}
	<-ch
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
}

// ─── Resolve ──────────────────────────────────────────────────────────────────

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("address search geocodes", func(t *testing.T) {
		g := &stubGeocoder{}
		s := session.New(&stubNarrator{}, &stubAssessor{}, g, discardLogger(), session.Options{})
		at, label, err := s.Resolve(ctx, session.Query{Address: "Plaza del Ayuntamiento"})
		if err != nil {
			t.Fatal(err)
		}
		if at != valencia || label != "Valencia, Plaza del Ayuntamiento" || g.geocodes.Load() != 1 {
			t.Errorf("got %v %q", at, label)
		}
	})

	t.Run("map click reverse geocodes", func(t *testing.T) {
		g := &stubGeocoder{reverse: "Calle Mayor, Madrid"}
		s := session.New(&stubNarrator{}, &stubAssessor{}, g, discardLogger(), session.Options{})
		at, label, err := s.Resolve(ctx, session.Query{Coordinates: &madrid})
		if err != nil {
			t.Fatal(err)
		}
		if at != madrid || label != "Calle Mayor, Madrid" || g.reverses.Load() != 1 {
			t.Errorf("got %v %q", at, label)
		}
	})

	t.Run("reverse placeholder becomes empty label", func(t *testing.T) {
		g := &stubGeocoder{reverse: geodata.NoAddress}
		s := session.New(&stubNarrator{}, &stubAssessor{}, g, discardLogger(), session.Options{})
		_, label, err := s.Resolve(ctx, session.Query{Coordinates: &madrid})
		if err != nil || label != "" {
			t.Errorf("label = %q, err = %v", label, err)
		}
	})

	t.Run("both given skips lookups", func(t *testing.T) {
		g := &stubGeocoder{}
		s := session.New(&stubNarrator{}, &stubAssessor{}, g, discardLogger(), session.Options{})
		_, label, _ := s.Resolve(ctx, session.Query{Coordinates: &madrid, Address: "Sol"})
		if label != "Sol" || g.geocodes.Load()+g.reverses.Load() != 0 {
			t.Errorf("label = %q", label)
		}
	})

	t.Run("not found propagates", func(t *testing.T) {
		g := &stubGeocoder{err: geodata.ErrNotFound}
		s := session.New(&stubNarrator{}, &stubAssessor{}, g, discardLogger(), session.Options{})
		_, _, err := s.Resolve(ctx, session.Query{Address: "Atlantis"})
		if !errors.Is(err, geodata.ErrNotFound) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		s := newSession(&stubNarrator{}, &stubAssessor{})
		_, _, err := s.Resolve(ctx, session.Query{Address: "   "})
		if !errors.Is(err, session.ErrInvalidLocation) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestAnalyzeQuery_NotFoundDoesNotStartAnalysis(t *testing.T) {
	n := &stubNarrator{}
	s := session.New(n, &stubAssessor{}, &stubGeocoder{err: geodata.ErrNotFound}, discardLogger(), session.Options{})

	if _, err := s.AnalyzeQuery(context.Background(), session.Query{Address: "Atlantis"}); !errors.Is(err, geodata.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if n.calls.Load() != 0 || s.State().Generation != 0 {
		t.Error("analysis should not have started")
	}
}

func TestNotConfigured_FailsBeforeAnyWork(t *testing.T) {
	n := &stubNarrator{readyErr: ai.ErrNotConfigured}
	a := &stubAssessor{}
	g := &stubGeocoder{}
	s := session.New(n, a, g, discardLogger(), session.Options{})
	defer s.Close()

	if _, err := s.AnalyzeQuery(context.Background(), session.Query{Address: "Gran Via"}); !errors.Is(err, ai.ErrNotConfigured) {
		t.Errorf("AnalyzeQuery err = %v", err)
	}
	if _, err := s.Analyze(context.Background(), madrid, ""); !errors.Is(err, ai.ErrNotConfigured) {
		t.Errorf("Analyze err = %v", err)
	}
	if _, err := s.Start(madrid, ""); !errors.Is(err, ai.ErrNotConfigured) {
		t.Errorf("Start err = %v", err)
	}

	if g.geocodes.Load() != 0 || a.calls.Load() != 0 || n.calls.Load() != 0 {
		t.Errorf("geocodes=%d assessments=%d narrations=%d, want none",
			g.geocodes.Load(), a.calls.Load(), n.calls.Load())
	}
	if st := s.State(); st.Status != session.StatusIdle || st.Generation != 0 {
		t.Errorf("state = %+v, want untouched idle", st)
	}
}

// ─── UserMessage ──────────────────────────────────────────────────────────────

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{geodata.ErrNotFound, "not found"},
		{ai.ErrNotConfigured, "not configured"},
		{errors.Join(errors.New("primary"), ai.ErrNotConfigured), "not configured"},
		{conversation.ErrIterationLimitExceeded, "too many steps"},
		{&geodata.APIError{Service: "nominatim", StatusCode: 503}, "unavailable"},
		{&ai.APIError{Provider: "openai", StatusCode: 500}, "unavailable"},
		{context.DeadlineExceeded, "too long"},
		{session.ErrSuperseded, "newer request"},
		{errors.New("mystery"), "failed"},
	}
	for _, tt := range tests {
		if got := session.UserMessage(tt.err); !strings.Contains(got, tt.want) || (tt.want == "" && got != "") {
			t.Errorf("UserMessage(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}
