// Package supervisor owns connector lifecycles: starting sessions, backing
// off between reconnect attempts, and applying config reload diffs.
package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 5
)

// Spec describes one connector to supervise. Natives is its subscription
// list; two specs with equal natives are considered unchanged on reload.
type Spec struct {
	Name      string
	Natives   []string
	Connector port.Connector
}

// Options tunes the reconnect policy. Zero values take the defaults; Sleep
// exists so tests can observe delays without waiting them out.
type Options struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Sleep       func(ctx context.Context, d time.Duration) bool
}

type runner struct {
	spec   Spec
	cancel context.CancelFunc
	done   chan struct{}
}

type Supervisor struct {
	sink port.Sink
	opts Options

	mu      sync.Mutex
	ctx     context.Context
	runners map[string]*runner
	states  map[string]*model.ConnectorState
}

func New(sink port.Sink, opts Options) *Supervisor {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Supervisor{
		sink:    sink,
		opts:    opts,
		runners: make(map[string]*runner),
		states:  make(map[string]*model.ConnectorState),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start launches one supervised goroutine per spec. It must be called once
// before Reload.
func (s *Supervisor) Start(ctx context.Context, specs []Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	for _, spec := range specs {
		s.startLocked(spec)
	}
}

func (s *Supervisor) startLocked(spec Spec) {
	ctx, cancel := context.WithCancel(s.ctx)
	r := &runner{spec: spec, cancel: cancel, done: make(chan struct{})}
	s.runners[spec.Name] = r
	s.states[spec.Name] = &model.ConnectorState{
		Name:              spec.Name,
		Status:            model.StatusConnecting,
		SubscribedSymbols: append([]string(nil), spec.Natives...),
	}
	go s.run(ctx, r)
}

func (s *Supervisor) run(ctx context.Context, r *runner) {
	defer close(r.done)
	attempt := 0
	for {
		s.setStatus(r.spec.Name, model.StatusConnecting)
		sess := &sessionSink{sup: s, name: r.spec.Name}
		err := r.spec.Connector.Run(ctx, r.spec.Natives, sess)

		if ctx.Err() != nil {
			s.setStatus(r.spec.Name, model.StatusDisconnected)
			return
		}
		if err == nil {
			s.setStatus(r.spec.Name, model.StatusDisconnected)
			return
		}

		// A session that delivered data earns a fresh attempt budget; only
		// back-to-back failures walk toward the permanent error state.
		if sess.received() {
			attempt = 0
		}
		attempt++
		s.setAttempts(r.spec.Name, attempt)
		s.setStatus(r.spec.Name, model.StatusDisconnected)

		if attempt >= s.opts.MaxAttempts {
			s.setStatus(r.spec.Name, model.StatusError)
			log.Error().Str("exchange", r.spec.Name).Int("attempts", attempt).Err(err).
				Msg("giving up after repeated connect failures")
			return
		}

		delay := s.backoff(attempt)
		log.Warn().Str("exchange", r.spec.Name).Int("attempt", attempt).
			Dur("retry_in", delay).Err(err).Msg("connector session ended")
		if !s.opts.Sleep(ctx, delay) {
			s.setStatus(r.spec.Name, model.StatusDisconnected)
			return
		}
	}
}

func (s *Supervisor) backoff(attempt int) time.Duration {
	d := s.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.opts.MaxDelay {
			return s.opts.MaxDelay
		}
	}
	if d > s.opts.MaxDelay {
		return s.opts.MaxDelay
	}
	return d
}

// Reload applies a new spec set: unchanged connectors keep running, changed
// ones restart with their new subscriptions, removed ones stop, added ones
// start.
func (s *Supervisor) Reload(specs []Spec) {
	next := make(map[string]Spec, len(specs))
	for _, spec := range specs {
		next[spec.Name] = spec
	}

	type stopped struct {
		r       *runner
		name    string
		removed bool
	}
	var stops []stopped

	s.mu.Lock()
	for name, r := range s.runners {
		spec, keep := next[name]
		if keep && equalNatives(r.spec.Natives, spec.Natives) {
			delete(next, name)
			continue
		}
		r.cancel()
		stops = append(stops, stopped{r: r, name: name, removed: !keep})
	}
	s.mu.Unlock()

	for _, st := range stops {
		<-st.r.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stops {
		delete(s.runners, st.name)
		if st.removed {
			delete(s.states, st.name)
			log.Info().Str("exchange", st.name).Msg("connector stopped by reload")
		}
	}
	for _, spec := range next {
		log.Info().Str("exchange", spec.Name).Int("symbols", len(spec.Natives)).
			Msg("connector (re)started by reload")
		s.startLocked(spec)
	}
}

// Stop cancels every runner and waits for them to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	runners := make([]*runner, 0, len(s.runners))
	for _, r := range s.runners {
		r.cancel()
		runners = append(runners, r)
	}
	s.mu.Unlock()
	for _, r := range runners {
		<-r.done
	}
}

// Health returns a copy of every connector's current state, sorted by name.
func (s *Supervisor) Health() []model.ConnectorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConnectorState, 0, len(s.states))
	for _, st := range s.states {
		cp := *st
		cp.SubscribedSymbols = append([]string(nil), st.SubscribedSymbols...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Supervisor) setStatus(name string, status model.ConnectorStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		st.Status = status
	}
}

func (s *Supervisor) setAttempts(name string, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		st.ReconnectAttempts = attempts
	}
}

func (s *Supervisor) markConnected(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		st.Status = model.StatusConnected
		st.ReconnectAttempts = 0
	}
}

func (s *Supervisor) markMessage(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		st.LastMessageAt = time.Now().UnixMilli()
	}
}

func equalNatives(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// sessionSink wraps the downstream sink for one session, tracking connector
// state as data flows through.
type sessionSink struct {
	sup  *Supervisor
	name string
	msgs int64
	mu   sync.Mutex
}

func (ss *sessionSink) Connected(exchange string) {
	ss.sup.markConnected(ss.name)
	ss.sup.sink.Connected(exchange)
}

func (ss *sessionSink) Tick(t model.PriceTick) {
	ss.mu.Lock()
	ss.msgs++
	ss.mu.Unlock()
	ss.sup.markMessage(ss.name)
	ss.sup.sink.Tick(t)
}

func (ss *sessionSink) received() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.msgs > 0
}
