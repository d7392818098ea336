package portfolio

import (
	"fmt"
	"strconv"
)

// Month is a calendar month in YYYYMM form (e.g. 202501).
type Month int

// ParseMonth converts a YYYYMM string to a Month.
func ParseMonth(s string) (Month, error) {
	if len(s) != 6 {
		return 0, fmt.Errorf("month %q: want YYYYMM", s)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("month %q: %w", s, err)
	}
	m := Month(v)
	if !m.Valid() {
		return 0, fmt.Errorf("month %q: out of range", s)
	}
	return m, nil
}

func (m Month) Valid() bool {
	mm := int(m) % 100
	yy := int(m) / 100
	return mm >= 1 && mm <= 12 && yy >= 1900 && yy <= 2200
}

func (m Month) String() string {
	return fmt.Sprintf("%06d", int(m))
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	if int(m)%100 == 12 {
		return m + 100 - 11
	}
	return m + 1
}

// Prev returns the preceding calendar month.
func (m Month) Prev() Month {
	if int(m)%100 == 1 {
		return m - 100 + 11
	}
	return m - 1
}

// MonthRange returns from..to inclusive.
func MonthRange(from, to Month) ([]Month, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("month range %s-%s: invalid month", from, to)
	}
	if to < from {
		return nil, fmt.Errorf("month range %s-%s: to before from", from, to)
	}
	var out []Month
	for m := from; m <= to; m = m.Next() {
		out = append(out, m)
	}
	return out, nil
}

// CheckConsecutive fails if months do not form a gapless ascending
// sequence. Month-over-month differencing silently under-counts on a
// gapped sequence, so a gap is an input-contract violation.
func CheckConsecutive(months []Month) error {
	if len(months) < 2 {
		return fmt.Errorf("need at least two months, have %d", len(months))
	}
	for i := 1; i < len(months); i++ {
		if months[i] != months[i-1].Next() {
			return fmt.Errorf("months %s and %s are not consecutive", months[i-1], months[i])
		}
	}
	return nil
}

// CheckAscending fails on a non-monotonic month list. Single-month
// detection tolerates gaps but not disorder or repeats.
func CheckAscending(months []Month) error {
	if len(months) == 0 {
		return fmt.Errorf("no months")
	}
	for i := 1; i < len(months); i++ {
		if months[i] <= months[i-1] {
			return fmt.Errorf("months %s and %s out of order", months[i-1], months[i])
		}
	}
	return nil
}
