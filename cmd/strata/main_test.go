package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/strata-db/strata/search"
)

func TestParsePairs(t *testing.T) {
	t.Run("empty input returns nil", func(t *testing.T) {
		out, err := parsePairs(nil, "meta")
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("parses key=value pairs", func(t *testing.T) {
		out, err := parsePairs([]string{"topic=storage", "lang=go"}, "meta")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"topic": "storage", "lang": "go"}, out)
	})

	t.Run("value may contain equals signs", func(t *testing.T) {
		out, err := parsePairs([]string{"expr=a=b"}, "meta")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"expr": "a=b"}, out)
	})

	t.Run("rejects malformed pairs", func(t *testing.T) {
		_, err := parsePairs([]string{"no-separator"}, "meta")
		assert.Error(t, err)

		_, err = parsePairs([]string{"=value"}, "meta")
		assert.Error(t, err)
	})
}

func TestParseFilters(t *testing.T) {
	t.Run("empty input returns nil options", func(t *testing.T) {
		opts, err := parseFilters(nil)
		require.NoError(t, err)
		assert.Nil(t, opts)
	})

	t.Run("builds equality filters", func(t *testing.T) {
		opts, err := parseFilters([]string{"parity=even", "topic=storage"})
		require.NoError(t, err)
		require.Len(t, opts.Filters, 2)
		assert.Equal(t, search.Filter{
			Column: "parity", Op: search.OpEqual, Values: []string{"even"},
		}, opts.Filters[0])
		require.NoError(t, opts.Validate())
	})

	t.Run("rejects malformed filters", func(t *testing.T) {
		_, err := parseFilters([]string{"bare"})
		assert.Error(t, err)
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "log-level", Value: "info"},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error { return nil },
				}
				err := app.Run([]string{"test", "--log-level", level})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}
		err := app.Run([]string{"test", "--log-level", "verbose"})
		assert.Error(t, err)
	})
}
