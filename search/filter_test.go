package search

import (
	"testing"

	"github.com/strata-db/strata/core"
	"github.com/stretchr/testify/assert"
)

func TestOptionsValidate(t *testing.T) {
	var nilOpts *Options
	assert.NoError(t, nilOpts.Validate())

	valid := &Options{Filters: []Filter{
		{Column: "lang", Op: OpEqual, Values: []string{"en"}},
		{Column: "tag", Op: OpIn, Values: []string{"a", "b"}},
	}}
	assert.NoError(t, valid.Validate())

	cases := map[string]*Options{
		"empty column":     {Filters: []Filter{{Column: "", Op: OpEqual, Values: []string{"x"}}}},
		"unknown operator": {Filters: []Filter{{Column: "c", Op: Op(99), Values: []string{"x"}}}},
		"in without value": {Filters: []Filter{{Column: "c", Op: OpIn}}},
		"eq with two":      {Filters: []Filter{{Column: "c", Op: OpEqual, Values: []string{"a", "b"}}}},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, opts.Validate(), core.ErrInvalidFilter)
		})
	}
}

func TestOptionsMatch(t *testing.T) {
	record := &core.Record{
		ID:       "r1",
		Content:  "x",
		Metadata: map[string]string{"lang": "en", "count": "12"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"equal hit", Filter{Column: "lang", Op: OpEqual, Values: []string{"en"}}, true},
		{"equal miss", Filter{Column: "lang", Op: OpEqual, Values: []string{"de"}}, false},
		{"not equal", Filter{Column: "lang", Op: OpNotEqual, Values: []string{"de"}}, true},
		{"absent column fails", Filter{Column: "missing", Op: OpNotEqual, Values: []string{"x"}}, false},
		{"in", Filter{Column: "lang", Op: OpIn, Values: []string{"de", "en"}}, true},
		{"contains", Filter{Column: "lang", Op: OpContains, Values: []string{"e"}}, true},
		{"numeric gt", Filter{Column: "count", Op: OpGreaterThan, Values: []string{"9"}}, true},
		{"numeric le", Filter{Column: "count", Op: OpLessEqual, Values: []string{"12"}}, true},
		{"lexicographic lt", Filter{Column: "lang", Op: OpLessThan, Values: []string{"fr"}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := &Options{Filters: []Filter{tc.filter}}
			assert.Equal(t, tc.want, opts.Match(record))
		})
	}

	t.Run("all filters must hold", func(t *testing.T) {
		opts := &Options{Filters: []Filter{
			{Column: "lang", Op: OpEqual, Values: []string{"en"}},
			{Column: "count", Op: OpGreaterThan, Values: []string{"100"}},
		}}
		assert.False(t, opts.Match(record))
	})
}

func TestOptionsCanonical_OrderIndependent(t *testing.T) {
	a := &Options{Filters: []Filter{
		{Column: "x", Op: OpEqual, Values: []string{"1"}},
		{Column: "y", Op: OpIn, Values: []string{"a", "b"}},
	}}
	b := &Options{Filters: []Filter{
		{Column: "y", Op: OpIn, Values: []string{"a", "b"}},
		{Column: "x", Op: OpEqual, Values: []string{"1"}},
	}}
	assert.Equal(t, a.canonical(), b.canonical())

	c := &Options{Filters: []Filter{
		{Column: "x", Op: OpEqual, Values: []string{"2"}},
	}}
	assert.NotEqual(t, a.canonical(), c.canonical())

	var nilOpts *Options
	assert.Empty(t, nilOpts.canonical())
}
