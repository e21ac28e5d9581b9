package service

import (
	"math"
	"testing"
	"time"

	"tickarb/internal/domain/model"
	"tickarb/internal/domain/store"
)

func seedStore(t *testing.T, ticks ...model.PriceTick) *store.Store {
	t.Helper()
	s := store.New()
	for _, tk := range ticks {
		if !s.Update(tk) {
			t.Fatalf("seed tick rejected: %+v", tk)
		}
	}
	return s
}

func TestForSymbolThresholdScenario(t *testing.T) {
	s := seedStore(t,
		model.PriceTick{Symbol: "X", Exchange: "binance", Price: 100, Timestamp: 1000},
		model.PriceTick{Symbol: "X", Exchange: "bybit", Price: 100.06, Timestamp: 1000},
	)
	d := NewDetector(s, 0.05, time.Minute)

	opps := d.ForSymbol("X", 0.05)
	if len(opps) != 1 {
		t.Fatalf("opportunities = %d, want exactly 1", len(opps))
	}
	opp := opps[0]
	if opp.BuyExchange != "binance" || opp.SellExchange != "bybit" {
		t.Errorf("direction = buy %s / sell %s, want buy binance / sell bybit",
			opp.BuyExchange, opp.SellExchange)
	}
	if math.Abs(opp.Spread-0.06) > 1e-9 {
		t.Errorf("spread = %v, want 0.06", opp.Spread)
	}
	if math.Abs(opp.SpreadPercentage-0.06) > 1e-9 {
		t.Errorf("spread_percentage = %v, want 0.06", opp.SpreadPercentage)
	}
	if !opp.Profitable {
		t.Error("opportunity above threshold must be profitable")
	}
	want := (opp.SellPrice - opp.BuyPrice) / opp.BuyPrice * 100
	if math.Abs(opp.SpreadPercentage-want) > 1e-9 {
		t.Errorf("spread_percentage = %v, want (sell-buy)/buy = %v", opp.SpreadPercentage, want)
	}
}

func TestForSymbolBelowThreshold(t *testing.T) {
	s := seedStore(t,
		model.PriceTick{Symbol: "X", Exchange: "binance", Price: 100, Timestamp: 1000},
		model.PriceTick{Symbol: "X", Exchange: "bybit", Price: 100.01, Timestamp: 1000},
	)
	d := NewDetector(s, 0.05, time.Minute)

	if opps := d.ForSymbol("X", 0.05); len(opps) != 0 {
		t.Errorf("opportunities below threshold = %v, want none", opps)
	}
}

func TestForSymbolSingleExchange(t *testing.T) {
	s := seedStore(t,
		model.PriceTick{Symbol: "X", Exchange: "binance", Price: 100, Timestamp: 1000},
	)
	d := NewDetector(s, 0.05, time.Minute)
	if opps := d.ForSymbol("X", 0); opps != nil {
		t.Errorf("single exchange should yield nil, got %v", opps)
	}
}

func TestForSymbolSortedDescending(t *testing.T) {
	s := seedStore(t,
		model.PriceTick{Symbol: "X", Exchange: "binance", Price: 100, Timestamp: 1000},
		model.PriceTick{Symbol: "X", Exchange: "bybit", Price: 101, Timestamp: 1000},
		model.PriceTick{Symbol: "X", Exchange: "okx", Price: 103, Timestamp: 1000},
	)
	d := NewDetector(s, 0.05, time.Minute)

	opps := d.ForSymbol("X", 0.05)
	if len(opps) != 3 {
		t.Fatalf("opportunities = %d, want 3 pairs", len(opps))
	}
	for i := 1; i < len(opps); i++ {
		if opps[i].SpreadPercentage > opps[i-1].SpreadPercentage {
			t.Errorf("not sorted descending at %d: %v then %v",
				i, opps[i-1].SpreadPercentage, opps[i].SpreadPercentage)
		}
	}
	if opps[0].BuyExchange != "binance" || opps[0].SellExchange != "okx" {
		t.Errorf("widest pair = %s/%s, want binance/okx", opps[0].BuyExchange, opps[0].SellExchange)
	}
}

func TestListAllLimit(t *testing.T) {
	s := seedStore(t,
		model.PriceTick{Symbol: "BTC", Exchange: "binance", Price: 100, Timestamp: 1000},
		model.PriceTick{Symbol: "BTC", Exchange: "bybit", Price: 101, Timestamp: 1000},
		model.PriceTick{Symbol: "ETH", Exchange: "binance", Price: 100, Timestamp: 1000},
		model.PriceTick{Symbol: "ETH", Exchange: "bybit", Price: 105, Timestamp: 1000},
	)
	d := NewDetector(s, 0.05, time.Minute)

	all := d.ListAll(0.05, 1)
	if len(all) != 1 {
		t.Fatalf("limited list = %d entries, want 1", len(all))
	}
	if all[0].Symbol != "ETH" {
		t.Errorf("top opportunity = %s, want ETH (5%% spread)", all[0].Symbol)
	}
}

func TestSpreadBetweenMissingExchange(t *testing.T) {
	s := seedStore(t,
		model.PriceTick{Symbol: "X", Exchange: "binance", Price: 100, Timestamp: 1000},
	)
	d := NewDetector(s, 0.05, time.Minute)
	if ps := d.SpreadBetween("X", "binance", "bybit"); ps != nil {
		t.Errorf("spread with missing side = %+v, want nil", ps)
	}
}

func TestAlertCooldownOncePerWindow(t *testing.T) {
	s := store.New()
	d := NewDetector(s, 0.05, 300*time.Second)

	base := time.Unix(1_700_000_000, 0)
	clock := base
	d.now = func() time.Time { return clock }

	if !d.TryAlert("BTC") {
		t.Fatal("first alert must fire")
	}
	clock = base.Add(10 * time.Second)
	if d.TryAlert("BTC") {
		t.Error("second alert inside cooldown must not fire")
	}
	if st := d.AlertStatus("BTC"); st.CanAlertNow || st.SecondsUntilNextAlert != 290 {
		t.Errorf("alert status = %+v, want blocked with 290s remaining", st)
	}
	// a different symbol is independent
	if !d.TryAlert("ETH") {
		t.Error("cooldown must be per symbol")
	}
	clock = base.Add(301 * time.Second)
	if !d.TryAlert("BTC") {
		t.Error("alert must fire after the window elapses")
	}
}
