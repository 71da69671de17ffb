package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// sortableTimeLayout keeps a fixed width so TEXT columns order chronologically.
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface {
	Scan(dest ...any) error
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(sortableTimeLayout)
}

func decodeTime(v string) (time.Time, error) {
	t, err := time.Parse(sortableTimeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", v, err)
	}
	return t.UTC(), nil
}

func decodeOptTime(v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := decodeTime(*v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func optStringArg(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func parseNullDecimal(field string, v *string) (decimal.NullDecimal, error) {
	if v == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimal(field, *v)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// ratioTexts collects the textual form of the five nullable ratios of a row.
type ratioTexts struct {
	ctr, cpc, acos, roas, conversion *string
}

func (r ratioTexts) apply(ctr, cpc, acos, roas, conversion *decimal.NullDecimal) error {
	var err error
	if *ctr, err = parseNullDecimal("ctr", r.ctr); err != nil {
		return err
	}
	if *cpc, err = parseNullDecimal("cpc", r.cpc); err != nil {
		return err
	}
	if *acos, err = parseNullDecimal("acos", r.acos); err != nil {
		return err
	}
	if *roas, err = parseNullDecimal("roas", r.roas); err != nil {
		return err
	}
	if *conversion, err = parseNullDecimal("conversion_rate", r.conversion); err != nil {
		return err
	}
	return nil
}
