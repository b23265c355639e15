// Package session owns the lifecycle of the location currently being
// analysed: idle → loading → succeeded | failed, with the previous successful
// result kept for comparison.
//
// Every request bumps a generation counter and cancels the one before it.
// When a pipeline finishes, its result is committed only if its generation is
// still current; anything older is discarded with ErrSuperseded. All state
// lives behind a single mutex and is published to subscribers as immutable
// snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
	"github.com/nyashahama/geoanalyzer/internal/risk"
)

// ─── DEPENDENCIES ─────────────────────────────────────────────────────────────

// Narrator produces the markdown report. *conversation.Orchestrator
// satisfies it.
type Narrator interface {
	Run(ctx context.Context, at geo.Coordinates, address string) (string, error)
}

// readyNarrator is implemented by narrators that can report missing
// configuration up front. *conversation.Orchestrator satisfies it.
type readyNarrator interface {
	Ready() error
}

// RiskAssessor produces the hazard assessment. *risk.Assessor satisfies it.
type RiskAssessor interface {
	Assess(ctx context.Context, at geo.Coordinates) (risk.Assessment, error)
}

// Geocoder resolves what the user typed or clicked into a point and a label.
// *geodata.Client satisfies it.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geodata.GeocodeResult, error)
	ReverseGeocode(ctx context.Context, at geo.Coordinates) string
}

// ─── TYPES ────────────────────────────────────────────────────────────────────

type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is one completed analysis.
type Result struct {
	ID             uuid.UUID       `json:"id"`
	Report         string          `json:"report"`
	Coordinates    geo.Coordinates `json:"coordinates"`
	Address        string          `json:"address,omitempty"`
	RiskAssessment risk.Assessment `json:"risk_assessment"`
	Timestamp      time.Time       `json:"timestamp"`
}

// State is a snapshot of the session. Result is set only when Succeeded and
// Err only when Failed. Previous is the result that was current when the
// latest successful analysis started.
type State struct {
	Status     Status  `json:"status"`
	Generation uint64  `json:"generation"`
	Result     *Result `json:"result,omitempty"`
	Previous   *Result `json:"previous,omitempty"`
	Err        error   `json:"-"`
	Error      string  `json:"error,omitempty"` // UserMessage(Err)
}

var (
	// ErrSuperseded is returned by Analyze when a newer request replaced it
	// before it finished. Its result was discarded.
	ErrSuperseded = errors.New("session: analysis superseded by a newer request")

	// ErrInvalidLocation wraps coordinate validation failures.
	ErrInvalidLocation = errors.New("session: invalid location")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("session: closed")
)

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	// Timeout bounds one analysis end to end. Default: 3 minutes.
	Timeout time.Duration

	// SubscriberBuffer is the per-subscriber channel capacity. When a slow
	// subscriber's buffer is full the oldest snapshot is dropped. Default: 8.
	SubscriberBuffer int

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() uuid.UUID
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Minute
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 8
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.New
	}
	return o
}

// ─── SESSION ──────────────────────────────────────────────────────────────────

type Session struct {
	narrator Narrator
	risks    RiskAssessor
	geocoder Geocoder
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	subs   map[int]chan State
	nextID int
	closed bool

	wg sync.WaitGroup // async analyses started by Start
}

// New returns an idle Session. geocoder may be nil if only coordinate
// requests are made.
func New(narrator Narrator, risks RiskAssessor, geocoder Geocoder, logger *slog.Logger, opts Options) *Session {
	return &Session{
		narrator: narrator,
		risks:    risks,
		geocoder: geocoder,
		opts:     opts.withDefaults(),
		logger:   logger.With("component", "session"),
		state:    State{Status: StatusIdle},
		subs:     make(map[int]chan State),
	}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready returns the narrator's configuration error, if any. Analyze, Start
// and AnalyzeQuery check it before touching session state or any upstream
// service.
func (s *Session) Ready() error {
	if rn, ok := s.narrator.(readyNarrator); ok {
		return rn.Ready()
	}
	return nil
}

// Analyze runs one analysis and blocks until it is committed, fails or is
// superseded. Narrative and risk pipelines run concurrently and both must
// succeed.
func (s *Session) Analyze(ctx context.Context, at geo.Coordinates, address string) (Result, error) {
	if err := s.Ready(); err != nil {
		return Result{}, err
	}
	gen, runCtx, cancel, err := s.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cancel()

	res, err := s.run(runCtx, at, address)
	return s.commit(gen, res, err)
}

// Start begins an analysis in the background and returns its generation.
// The outcome is observable through State and Subscribe.
func (s *Session) Start(at geo.Coordinates, address string) (uint64, error) {
	if err := s.Ready(); err != nil {
		return 0, err
	}
	gen, runCtx, cancel, err := s.begin(context.Background())
	if err != nil {
		return 0, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		res, err := s.run(runCtx, at, address)
		if _, err := s.commit(gen, res, err); err != nil && !errors.Is(err, ErrSuperseded) {
			s.logger.Warn("analysis failed", "generation", gen, "error", err)
		}
	}()
	return gen, nil
}

// Close cancels any in-flight analysis, closes every subscriber channel and
// waits for background analyses to return.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// begin moves the session to Loading under a new generation and cancels the
// generation it replaces.
func (s *Session) begin(parent context.Context) (uint64, context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, nil, nil, ErrClosed
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.gen++
	ctx, cancel := context.WithTimeout(parent, s.opts.Timeout)
	s.cancel = cancel

	previous := s.state.Previous
	if s.state.Status == StatusSucceeded {
		previous = s.state.Result
	}
	s.setLocked(State{Status: StatusLoading, Generation: s.gen, Previous: previous})

	s.logger.Debug("analysis started", "generation", s.gen)
	return s.gen, ctx, cancel, nil
}

// commit publishes the outcome of generation gen if it is still current.
func (s *Session) commit(gen uint64, res Result, err error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.closed {
		s.logger.Debug("stale analysis discarded", "generation", gen, "current", s.gen)
		return Result{}, ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		s.setLocked(State{
			Status:     StatusFailed,
			Generation: gen,
			Previous:   s.state.Previous,
			Err:        err,
			Error:      UserMessage(err),
		})
		return Result{}, err
	}

	s.setLocked(State{Status: StatusSucceeded, Generation: gen, Result: &res, Previous: s.state.Previous})
	s.logger.Info("analysis complete",
		"generation", gen,
		"id", res.ID,
		"level", res.RiskAssessment.Level,
	)
	return res, nil
}

// run executes both pipelines. It touches no session state.
func (s *Session) run(ctx context.Context, at geo.Coordinates, address string) (Result, error) {
	if err := at.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	address = strings.TrimSpace(address)

	var (
		report     string
		assessment risk.Assessment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report, err = s.narrator.Run(gctx, at, address)
		return err
	})
	g.Go(func() error {
		var err error
		assessment, err = s.risks.Assess(gctx, at)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return Result{
		ID:             s.opts.NewID(),
		Report:         report,
		Coordinates:    at,
		Address:        address,
		RiskAssessment: assessment,
		Timestamp:      s.opts.Now().UTC().Truncate(time.Second),
	}, nil
}

// ─── SUBSCRIPTIONS ────────────────────────────────────────────────────────────

// Subscribe returns a channel that receives every state change from now on,
// starting with the current snapshot. Call cancel to stop receiving; the
// channel is then closed.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, s.opts.SubscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

// setLocked replaces the state and fans it out. Sends never block: a full
// subscriber loses its oldest pending snapshot. Caller holds s.mu, which
// also keeps snapshots in order per subscriber.
func (s *Session) setLocked(st State) {
	s.state = st
	for _, ch := range s.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
