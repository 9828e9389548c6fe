package unit

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnitMismatch indicates arithmetic or conversion between physically
// incompatible dimensions. It always signals a caller bug and is never
// retried.
var ErrUnitMismatch = errors.New("unit mismatch")

// Dimension identifies what a unit measures, expressed as exponents over the
// base dimensions energy and time, plus an optional currency code. A currency
// is a dimension of its own: EUR and USD are as incompatible with each other
// as power is with energy.
type Dimension struct {
	Energy   int
	Time     int
	Currency string
}

// Equal reports whether two dimensions are physically compatible.
func (d Dimension) Equal(o Dimension) bool {
	return d.Energy == o.Energy && d.Time == o.Time && d.Currency == o.Currency
}

func (d Dimension) String() string {
	switch {
	case d.Currency != "" && d.Energy == -1:
		return d.Currency + "/energy"
	case d.Currency != "":
		return d.Currency
	case d.Energy == 1 && d.Time == -1:
		return "power"
	case d.Energy == 1:
		return "energy"
	case d.Energy == 0 && d.Time == 1:
		return "time"
	}
	return "dimensionless"
}

// Unit is a named scale of a dimension. Scale converts a value in this unit
// to the dimension's base unit (kWh for energy, kW for power, hours for time).
type Unit struct {
	Symbol string
	Dim    Dimension
	Scale  float64
}

// Physical units.
var (
	Watt          = Unit{Symbol: "W", Dim: Dimension{Energy: 1, Time: -1}, Scale: 1e-3}
	Kilowatt      = Unit{Symbol: "kW", Dim: Dimension{Energy: 1, Time: -1}, Scale: 1}
	Megawatt      = Unit{Symbol: "MW", Dim: Dimension{Energy: 1, Time: -1}, Scale: 1e3}
	WattHour      = Unit{Symbol: "Wh", Dim: Dimension{Energy: 1}, Scale: 1e-3}
	KilowattHour  = Unit{Symbol: "kWh", Dim: Dimension{Energy: 1}, Scale: 1}
	MegawattHour  = Unit{Symbol: "MWh", Dim: Dimension{Energy: 1}, Scale: 1e3}
	Hour          = Unit{Symbol: "h", Dim: Dimension{Time: 1}, Scale: 1}
	Dimensionless = Unit{Symbol: "", Dim: Dimension{}, Scale: 1}
)

// PerKilowattHour returns the price unit <currency>/kWh.
func PerKilowattHour(currency string) Unit {
	return Unit{
		Symbol: currency + "/kWh",
		Dim:    Dimension{Energy: -1, Currency: currency},
		Scale:  1,
	}
}

// CurrencyUnit returns the unit for plain monetary amounts in the given
// currency.
func CurrencyUnit(currency string) Unit {
	return Unit{Symbol: currency, Dim: Dimension{Currency: currency}, Scale: 1}
}

// Parse resolves a unit symbol as persisted in the belief log.
func Parse(symbol string) (Unit, error) {
	switch symbol {
	case "W":
		return Watt, nil
	case "kW":
		return Kilowatt, nil
	case "MW":
		return Megawatt, nil
	case "Wh":
		return WattHour, nil
	case "kWh":
		return KilowattHour, nil
	case "MWh":
		return MegawattHour, nil
	case "h":
		return Hour, nil
	case "":
		return Dimensionless, nil
	}
	// Price symbols take the form "EUR/kWh", currencies are bare codes.
	if n := len(symbol); n > 4 && symbol[n-4:] == "/kWh" {
		return PerKilowattHour(symbol[:n-4]), nil
	}
	if len(symbol) == 3 {
		return CurrencyUnit(symbol), nil
	}
	return Unit{}, fmt.Errorf("unknown unit symbol %q", symbol)
}

// Quantity is a numeric value tagged with a unit. All cross-component
// arithmetic on physical values goes through this type.
type Quantity struct {
	Value float64
	Unit  Unit
}

// Q is shorthand for constructing a Quantity.
func Q(value float64, u Unit) Quantity { return Quantity{Value: value, Unit: u} }

func (q Quantity) String() string {
	if q.Unit.Symbol == "" {
		return fmt.Sprintf("%g", q.Value)
	}
	return fmt.Sprintf("%g %s", q.Value, q.Unit.Symbol)
}

// Convert expresses q in the target unit. It fails with ErrUnitMismatch when
// the dimensions differ; power to energy requires an explicit time basis via
// TimesDuration.
func Convert(q Quantity, target Unit) (Quantity, error) {
	if !q.Unit.Dim.Equal(target.Dim) {
		return Quantity{}, fmt.Errorf("%w: cannot convert %s to %s",
			ErrUnitMismatch, q.Unit.Dim, target.Dim)
	}
	return Quantity{Value: q.Value * q.Unit.Scale / target.Scale, Unit: target}, nil
}

// Add returns q + o expressed in q's unit.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	conv, err := Convert(o, q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: q.Value + conv.Value, Unit: q.Unit}, nil
}

// Sub returns q - o expressed in q's unit.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	conv, err := Convert(o, q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: q.Value - conv.Value, Unit: q.Unit}, nil
}

// Scale multiplies by a dimensionless factor.
func (q Quantity) Scale(f float64) Quantity {
	return Quantity{Value: q.Value * f, Unit: q.Unit}
}

// TimesDuration is the explicit time-basis conversion power x duration ->
// energy. q must be a power.
func (q Quantity) TimesDuration(d time.Duration) (Quantity, error) {
	if !q.Unit.Dim.Equal(Kilowatt.Dim) {
		return Quantity{}, fmt.Errorf("%w: %s is not a power", ErrUnitMismatch, q.Unit.Dim)
	}
	kw := q.Value * q.Unit.Scale
	return Quantity{Value: kw * d.Hours(), Unit: KilowattHour}, nil
}
