package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
	assert.Equal(t, "embeddinggemma", cfg.Model)
	assert.Equal(t, 768, cfg.Dimension)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig_Options(t *testing.T) {
	cfg := NewConfig(
		WithHost("http://remote:9000"),
		WithModel("text-embedding-3-small"),
		WithDimension(1536),
	)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://remote:9000/v1", cfg.Host, "v1 suffix added by normalization")
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
	assert.Equal(t, 1536, cfg.Dimension)
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trims trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps existing v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"empty untouched", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Host: tc.host}
			cfg.Normalize()
			assert.Equal(t, tc.want, cfg.Host)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, (&Config{Model: "m"}).Validate(), "missing host")
	assert.Error(t, (&Config{Host: "http://x/v1"}).Validate(), "missing model")
	assert.Error(t, (&Config{Host: "http://x/v1", Model: "m", Dimension: -1}).Validate())
	assert.NoError(t, (&Config{Host: "http://x/v1", Model: "m"}).Validate())
}
