package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Credits is an amount of time-credit stored in hundredths of a credit, so
// partial hours (1.5 credits, 0.25 credits) are exact.
type Credits int64

const creditScale = 100

// NewCredits returns a whole number of credits.
func NewCredits(whole int64) Credits {
	return Credits(whole * creditScale)
}

// ParseCredits parses a decimal string such as "2", "1.5" or "0.25".
// At most two fractional digits are accepted.
func ParseCredits(value string) (Credits, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("credits: empty value")
	}

	negative := false
	if strings.HasPrefix(raw, "-") {
		negative = true
		raw = raw[1:]
	}

	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) {
		return 0, fmt.Errorf("credits %q: invalid number", value)
	}
	wholeValue, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("credits %q: %w", value, err)
	}
	if wholeValue > (math.MaxInt64-(creditScale-1))/creditScale {
		return 0, fmt.Errorf("credits %q: value out of range", value)
	}

	var fracValue int64
	if hasFrac {
		if frac == "" || len(frac) > 2 || !isDigits(frac) {
			return 0, fmt.Errorf("credits %q: at most two decimal places", value)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		fracValue, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("credits %q: %w", value, err)
		}
	}

	amount := Credits(wholeValue*creditScale + fracValue)
	if negative {
		amount = -amount
	}
	return amount, nil
}

// String formats the amount with two decimal places.
func (c Credits) String() string {
	sign := ""
	value := int64(c)
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("%s%d.%02d", sign, value/creditScale, value%creditScale)
}

// MarshalJSON encodes the amount as a JSON number.
func (c Credits) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (c *Credits) UnmarshalJSON(data []byte) error {
	parsed, err := ParseCredits(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Credits) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so amounts can be read
// from environment variables.
func (c *Credits) UnmarshalText(text []byte) error {
	parsed, err := ParseCredits(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
