package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a money value.
type Amount = decimal.Decimal

// AmountFromInt converts a whole number of currency units.
func AmountFromInt(v int64) Amount { return decimal.NewFromInt(v) }

// ErrInvalidPrice is returned when a price text cannot be parsed.
var ErrInvalidPrice = errors.New("invalid price")

const priceSeparator = "/"

// Price holds a retail price and an optional wholesale price. Outside the
// process it travels as the composite text "retail[/wholesale]"; it is parsed
// once at that boundary and arithmetic only uses the decimals.
type Price struct {
	Retail    decimal.Decimal
	Wholesale decimal.NullDecimal
}

// NewPrice returns a retail-only price.
func NewPrice(retail decimal.Decimal) Price {
	return Price{Retail: retail}
}

// WithWholesale returns a copy of p carrying a wholesale price.
func (p Price) WithWholesale(wholesale decimal.Decimal) Price {
	p.Wholesale = decimal.NewNullDecimal(wholesale)
	return p
}

// ParsePrice parses "retail" or "retail/wholesale". Both parts must be
// non-negative decimals; an empty wholesale part is treated as absent.
func ParsePrice(text string) (Price, error) {
	retailText, wholesaleText, hasWholesale := strings.Cut(strings.TrimSpace(text), priceSeparator)

	retail, err := parseAmount(retailText)
	if err != nil {
		return Price{}, fmt.Errorf("%w: retail %q: %v", ErrInvalidPrice, retailText, err)
	}

	price := Price{Retail: retail}
	if hasWholesale && strings.TrimSpace(wholesaleText) != "" {
		wholesale, err := parseAmount(wholesaleText)
		if err != nil {
			return Price{}, fmt.Errorf("%w: wholesale %q: %v", ErrInvalidPrice, wholesaleText, err)
		}
		price.Wholesale = decimal.NewNullDecimal(wholesale)
	}

	return price, nil
}

// ParsePriceLenient never fails: a malformed or missing retail part becomes
// zero and a malformed wholesale part is dropped.
func ParsePriceLenient(text string) Price {
	if price, err := ParsePrice(text); err == nil {
		return price
	}

	retailText, wholesaleText, hasWholesale := strings.Cut(strings.TrimSpace(text), priceSeparator)
	var price Price
	if retail, err := parseAmount(retailText); err == nil {
		price.Retail = retail
	}
	if hasWholesale {
		if wholesale, err := parseAmount(wholesaleText); err == nil {
			price.Wholesale = decimal.NewNullDecimal(wholesale)
		}
	}
	return price
}

func parseAmount(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, errors.New("negative amount")
	}
	return amount, nil
}

// String formats the composite display text.
func (p Price) String() string {
	if !p.Wholesale.Valid {
		return p.Retail.String()
	}
	return p.Retail.String() + priceSeparator + p.Wholesale.Decimal.String()
}

// Equal compares both parts numerically.
func (p Price) Equal(other Price) bool {
	if !p.Retail.Equal(other.Retail) || p.Wholesale.Valid != other.Wholesale.Valid {
		return false
	}
	return !p.Wholesale.Valid || p.Wholesale.Decimal.Equal(other.Wholesale.Decimal)
}

// MarshalJSON encodes the composite text.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the composite text or a bare number. Malformed text
// decodes leniently so a single bad price does not reject a whole backup.
func (p *Price) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*p = Price{}
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var number json.Number
		if err := json.Unmarshal(data, &number); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPrice, trimmed)
		}
		text = number.String()
	}

	*p = ParsePriceLenient(text)
	return nil
}

// Value stores the composite text.
func (p Price) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan reads the composite text written by Value.
func (p *Price) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Price{}
	case string:
		*p = ParsePriceLenient(v)
	case []byte:
		*p = ParsePriceLenient(string(v))
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrInvalidPrice, src)
	}
	return nil
}
