package unit

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestConvertPower(t *testing.T) {
	q, err := Convert(Q(1.5, Megawatt), Kilowatt)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if q.Value != 1500 {
		t.Fatalf("expected 1500 kW got %v", q.Value)
	}
	q, err = Convert(Q(250, Watt), Kilowatt)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if math.Abs(q.Value-0.25) > 1e-12 {
		t.Fatalf("expected 0.25 kW got %v", q.Value)
	}
}

func TestConvertDimensionMismatch(t *testing.T) {
	if _, err := Convert(Q(1, Kilowatt), KilowattHour); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch, got %v", err)
	}
	if _, err := Q(1, Kilowatt).Add(Q(1, KilowattHour)); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch on add, got %v", err)
	}
}

func TestCurrencyIsADimension(t *testing.T) {
	if _, err := Convert(Q(10, PerKilowattHour("EUR")), PerKilowattHour("USD")); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("EUR/kWh converted to USD/kWh without error")
	}
}

func TestTimesDuration(t *testing.T) {
	e, err := Q(2, Megawatt).TimesDuration(30 * time.Minute)
	if err != nil {
		t.Fatalf("times duration: %v", err)
	}
	if e.Unit != KilowattHour || math.Abs(e.Value-1000) > 1e-9 {
		t.Fatalf("expected 1000 kWh got %v", e)
	}
	if _, err := Q(2, KilowattHour).TimesDuration(time.Hour); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("energy x duration should be rejected")
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, sym := range []string{"W", "kW", "MW", "Wh", "kWh", "MWh", "h", "EUR/kWh", "EUR"} {
		u, err := Parse(sym)
		if err != nil {
			t.Fatalf("parse %q: %v", sym, err)
		}
		if u.Symbol != sym {
			t.Fatalf("parse %q: got symbol %q", sym, u.Symbol)
		}
	}
	if _, err := Parse("furlongs"); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestCost(t *testing.T) {
	m, err := Cost(Q(0.25, PerKilowattHour("EUR")), Q(2, MegawattHour))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if m.Currency != "EUR" || m.String() != "500.0000 EUR" {
		t.Fatalf("expected 500.0000 EUR got %s", m)
	}
	if _, err := Cost(Q(1, Kilowatt), Q(1, KilowattHour)); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("non-price accepted as price")
	}
}

func TestMoneyAddCurrencyCheck(t *testing.T) {
	a := MoneyFromFloat(1.23456, "EUR")
	if a.String() != "1.2346 EUR" {
		t.Fatalf("rounding to 4 places failed: %s", a)
	}
	b := MoneyFromFloat(1, "USD")
	if _, err := a.Add(b); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("cross-currency add accepted")
	}
	sum, err := a.Add(MoneyFromFloat(0.7654, "EUR"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum.String() != "2.0000 EUR" {
		t.Fatalf("expected 2.0000 EUR got %s", sum)
	}
}
