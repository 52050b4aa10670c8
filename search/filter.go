package search

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/strata-db/strata/core"
)

// Op is a comparison operator in a metadata filter.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterEqual
	OpLessThan
	OpLessEqual
	OpIn
	OpContains
)

func (op Op) String() string {
	switch op {
	case OpEqual:
		return "eq"
	case OpNotEqual:
		return "ne"
	case OpGreaterThan:
		return "gt"
	case OpGreaterEqual:
		return "ge"
	case OpLessThan:
		return "lt"
	case OpLessEqual:
		return "le"
	case OpIn:
		return "in"
	case OpContains:
		return "contains"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// Filter is a single predicate over one metadata column. Values holds the
// comparison operand; only OpIn uses more than one.
type Filter struct {
	Column string
	Op     Op
	Values []string
}

// Options carries the per-query knobs of a search call. A nil Options is
// valid and means no filtering at the default limit.
type Options struct {
	Filters []Filter
}

// Validate rejects malformed filter expressions before any query work.
func (o *Options) Validate() error {
	if o == nil {
		return nil
	}
	for _, f := range o.Filters {
		if f.Column == "" {
			return fmt.Errorf("%w: filter with empty column", core.ErrInvalidFilter)
		}
		if f.Op < OpEqual || f.Op > OpContains {
			return fmt.Errorf("%w: unknown operator on column %q", core.ErrInvalidFilter, f.Column)
		}
		switch f.Op {
		case OpIn:
			if len(f.Values) == 0 {
				return fmt.Errorf("%w: %s on column %q needs at least one value",
					core.ErrInvalidFilter, f.Op, f.Column)
			}
		default:
			if len(f.Values) != 1 {
				return fmt.Errorf("%w: %s on column %q needs exactly one value",
					core.ErrInvalidFilter, f.Op, f.Column)
			}
		}
	}
	return nil
}

// Match reports whether a record's metadata satisfies every filter.
// A column absent from the record fails any predicate on it, including
// OpNotEqual; filters select rows that carry the column.
func (o *Options) Match(record *core.Record) bool {
	if o == nil {
		return true
	}
	for _, f := range o.Filters {
		value, ok := record.Metadata[f.Column]
		if !ok || !f.matches(value) {
			return false
		}
	}
	return true
}

func (f *Filter) matches(value string) bool {
	switch f.Op {
	case OpEqual:
		return value == f.Values[0]
	case OpNotEqual:
		return value != f.Values[0]
	case OpContains:
		return strings.Contains(value, f.Values[0])
	case OpIn:
		for _, v := range f.Values {
			if value == v {
				return true
			}
		}
		return false
	}

	// Ordering operators compare numerically when both sides parse,
	// falling back to lexicographic comparison.
	cmp := compareValues(value, f.Values[0])
	switch f.Op {
	case OpGreaterThan:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLessThan:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	}
	return false
}

func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// canonical renders the options deterministically for result-cache keys.
// Two option values with the same meaning produce the same string.
func (o *Options) canonical() string {
	if o == nil || len(o.Filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(o.Filters))
	for _, f := range o.Filters {
		parts = append(parts, f.Column+" "+f.Op.String()+" "+strings.Join(f.Values, "\x1f"))
	}
	// Filter order does not change semantics, so it must not change the key.
	slices.Sort(parts)
	return strings.Join(parts, "\x1e")
}
