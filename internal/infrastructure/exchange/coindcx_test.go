package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoinDCXPollsAndFiltersMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[
			{"market":"B-BTC_USDT","last_price":"45000.5","bid":"45000","ask":"45001","timestamp":1700000000},
			{"market":"B-DOGE_USDT","last_price":"0.1","bid":"0.09","ask":"0.11","timestamp":1700000000}
		]`))
	}))
	defer srv.Close()

	mapper := mapperFor(t, "coindcx", SymbolMap{"BTC": {"coindcx": "B-BTC_USDT"}})
	c := NewCoinDCX(srv.URL, 10*time.Millisecond, srv.Client(), mapper)

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, []string{"B-BTC_USDT"}, sink) }()

	deadline := time.After(2 * time.Second)
	for sink.tickCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no tick from poller")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}

	tick := sink.ticks[0]
	if tick.Symbol != "BTC" || tick.Exchange != "coindcx" {
		t.Fatalf("identity = %s/%s", tick.Exchange, tick.Symbol)
	}
	if tick.Price != 45000.5 {
		t.Fatalf("price = %v", tick.Price)
	}
	if tick.Timestamp != 1700000000000 {
		t.Fatalf("timestamp = %d, want seconds scaled to millis", tick.Timestamp)
	}
	for _, tk := range sink.ticks {
		if tk.Symbol == "DOGE" {
			t.Fatal("unmapped market leaked through")
		}
	}
}

func TestCoinDCXEndsSessionAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	mapper := mapperFor(t, "coindcx", SymbolMap{"BTC": {"coindcx": "B-BTC_USDT"}})
	c := NewCoinDCX(srv.URL, 5*time.Millisecond, srv.Client(), mapper)

	err := c.Run(context.Background(), []string{"B-BTC_USDT"}, &recordingSink{})
	if err == nil {
		t.Fatal("expected session error after repeated failures")
	}
	if got := calls.Load(); got < coindcxMaxFailures {
		t.Fatalf("server called %d times, want >= %d", got, coindcxMaxFailures)
	}
}

func TestCoinDCXRecoveryResetsFailureCount(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Every other request fails; the session must survive because the
		// failures are never consecutive enough.
		if calls.Add(1)%2 == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"market":"B-BTC_USDT","last_price":"45000","bid":"44999","ask":"45001","timestamp":1700000000}]`))
	}))
	defer srv.Close()

	mapper := mapperFor(t, "coindcx", SymbolMap{"BTC": {"coindcx": "B-BTC_USDT"}})
	c := NewCoinDCX(srv.URL, 5*time.Millisecond, srv.Client(), mapper)

	sink := &recordingSink{}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx, []string{"B-BTC_USDT"}, sink); err != nil {
		t.Fatalf("session should outlive alternating failures: %v", err)
	}
	if sink.tickCount() == 0 {
		t.Fatal("no ticks despite successful polls")
	}
}
