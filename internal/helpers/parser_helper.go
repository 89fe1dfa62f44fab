package helpers

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

func StringToInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// ParseDecimalQuery parses an optional decimal query parameter; an empty
// string yields nil.
func ParseDecimalQuery(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseTimeQuery parses an optional RFC 3339 query parameter; an empty
// string yields nil.
func ParseTimeQuery(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
