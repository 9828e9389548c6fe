package unit

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount with an explicit currency. Amounts are kept as
// decimals so cost aggregation does not accumulate binary rounding error.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// MoneyFromFloat converts a solver-side float into Money, rounding to the
// declared precision (4 decimal places, sub-cent).
func MoneyFromFloat(v float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(v).Round(4), Currency: currency}
}

// Add sums two amounts of the same currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrUnitMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Cost multiplies a price by an energy amount, yielding money in the price's
// currency. price must be <currency>/kWh and energy an energy quantity.
func Cost(price, energy Quantity) (Money, error) {
	if price.Unit.Dim.Currency == "" || price.Unit.Dim.Energy != -1 {
		return Money{}, fmt.Errorf("%w: %s is not a price", ErrUnitMismatch, price.Unit.Dim)
	}
	kwh, err := Convert(energy, KilowattHour)
	if err != nil {
		return Money{}, err
	}
	return MoneyFromFloat(price.Value*kwh.Value, price.Unit.Dim.Currency), nil
}

func (m Money) String() string {
	return m.Amount.StringFixed(4) + " " + m.Currency
}
