package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

var errSession = errors.New("session lost")

type scriptedConnector struct {
	name string
	mu   sync.Mutex
	runs int
	// ticksPerRun[i] ticks are emitted on run i before the session fails.
	ticksPerRun []int
	block       bool
}

func (c *scriptedConnector) Name() string { return c.name }

func (c *scriptedConnector) Run(ctx context.Context, natives []string, sink port.Sink) error {
	c.mu.Lock()
	run := c.runs
	c.runs++
	c.mu.Unlock()

	sink.Connected(c.name)
	n := 0
	if run < len(c.ticksPerRun) {
		n = c.ticksPerRun[run]
	}
	for i := 0; i < n; i++ {
		sink.Tick(model.PriceTick{Symbol: "BTC", Exchange: c.name, Price: 45000})
	}
	if c.block {
		<-ctx.Done()
		return nil
	}
	return errSession
}

func (c *scriptedConnector) runCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

type nopSink struct{}

func (nopSink) Connected(string)     {}
func (nopSink) Tick(model.PriceTick) {}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err() == nil
}

func (r *recordedSleeps) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func stateOf(s *Supervisor, name string) (model.ConnectorState, bool) {
	for _, st := range s.Health() {
		if st.Name == name {
			return st, true
		}
	}
	return model.ConnectorState{}, false
}

func TestBackoffGrowsAndGivesUp(t *testing.T) {
	sleeps := &recordedSleeps{}
	conn := &scriptedConnector{name: "binance"}
	s := New(nopSink{}, Options{BaseDelay: time.Second, MaxDelay: 5 * time.Second, MaxAttempts: 5, Sleep: sleeps.sleep})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, []Spec{{Name: "binance", Natives: []string{"BTCUSDT"}, Connector: conn}})

	waitFor(t, func() bool {
		st, ok := stateOf(s, "binance")
		return ok && st.Status == model.StatusError
	})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	got := sleeps.all()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delays = %v, want %v", got, want)
		}
	}

	st, _ := stateOf(s, "binance")
	if st.ReconnectAttempts != 5 {
		t.Fatalf("attempts = %d", st.ReconnectAttempts)
	}
	runs := conn.runCount()
	if runs != 5 {
		t.Fatalf("runs = %d", runs)
	}

	// The error state is terminal.
	time.Sleep(20 * time.Millisecond)
	if conn.runCount() != runs {
		t.Fatal("connector restarted after giving up")
	}
}

func TestProductiveSessionResetsAttemptBudget(t *testing.T) {
	sleeps := &recordedSleeps{}
	// Runs 0-2 fail dry, run 3 delivers ticks, runs 4+ fail dry again. The
	// budget must restart after the productive session.
	conn := &scriptedConnector{name: "okx", ticksPerRun: []int{0, 0, 0, 7}}
	s := New(nopSink{}, Options{BaseDelay: time.Millisecond, MaxAttempts: 5, Sleep: sleeps.sleep})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, []Spec{{Name: "okx", Natives: []string{"BTC-USDT-SWAP"}, Connector: conn}})

	waitFor(t, func() bool {
		st, ok := stateOf(s, "okx")
		return ok && st.Status == model.StatusError
	})

	// Without the reset, run 4 would have been the last (5 straight
	// failures). The productive run 3 restarts the count, so 4 more dry
	// failures follow it.
	if runs := conn.runCount(); runs != 8 {
		t.Fatalf("runs = %d, want 8", runs)
	}
	st, _ := stateOf(s, "okx")
	if st.LastMessageAt == 0 {
		t.Fatal("LastMessageAt never set despite delivered ticks")
	}
}

func TestConnectorsFailIndependently(t *testing.T) {
	bad := &scriptedConnector{name: "bybit"}
	good := &scriptedConnector{name: "binance", block: true}
	s := New(nopSink{}, Options{BaseDelay: time.Millisecond, MaxAttempts: 2, Sleep: (&recordedSleeps{}).sleep})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, []Spec{
		{Name: "bybit", Natives: []string{"BTCUSDT"}, Connector: bad},
		{Name: "binance", Natives: []string{"BTCUSDT"}, Connector: good},
	})

	waitFor(t, func() bool {
		st, ok := stateOf(s, "bybit")
		return ok && st.Status == model.StatusError
	})
	st, ok := stateOf(s, "binance")
	if !ok || st.Status != model.StatusConnected {
		t.Fatalf("binance state = %+v, want connected", st)
	}
}

func TestReloadDiffsSpecs(t *testing.T) {
	keep := &scriptedConnector{name: "binance", block: true}
	change := &scriptedConnector{name: "okx", block: true}
	drop := &scriptedConnector{name: "bybit", block: true}
	s := New(nopSink{}, Options{Sleep: (&recordedSleeps{}).sleep})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, []Spec{
		{Name: "binance", Natives: []string{"BTCUSDT"}, Connector: keep},
		{Name: "okx", Natives: []string{"BTC-USDT-SWAP"}, Connector: change},
		{Name: "bybit", Natives: []string{"BTCUSDT"}, Connector: drop},
	})
	waitFor(t, func() bool {
		st, ok := stateOf(s, "bybit")
		return ok && st.Status == model.StatusConnected
	})

	changed := &scriptedConnector{name: "okx", block: true}
	added := &scriptedConnector{name: "deribit", block: true}
	s.Reload([]Spec{
		{Name: "binance", Natives: []string{"BTCUSDT"}, Connector: keep},
		{Name: "okx", Natives: []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}, Connector: changed},
		{Name: "deribit", Natives: []string{"BTC-PERPETUAL"}, Connector: added},
	})

	waitFor(t, func() bool {
		st, ok := stateOf(s, "deribit")
		return ok && st.Status == model.StatusConnected
	})

	if _, ok := stateOf(s, "bybit"); ok {
		t.Fatal("removed connector still reported")
	}
	if keep.runCount() != 1 {
		t.Fatalf("unchanged connector restarted: runs = %d", keep.runCount())
	}
	if changed.runCount() != 1 {
		t.Fatalf("changed connector not restarted: runs = %d", changed.runCount())
	}
	st, _ := stateOf(s, "okx")
	if len(st.SubscribedSymbols) != 2 {
		t.Fatalf("okx symbols after reload = %v", st.SubscribedSymbols)
	}

	s.Stop()
}
