package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoolConfig(t *testing.T) {
	cfg, err := parsePoolConfig("postgres://u:p@localhost:5432/app", PoolOptions{MaxConns: 8, MinConns: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 8, cfg.MaxConns)
	assert.EqualValues(t, 2, cfg.MinConns)
}

func TestParsePoolConfig_IgnoresMinAboveMax(t *testing.T) {
	cfg, err := parsePoolConfig("postgres://u:p@localhost:5432/app", PoolOptions{MaxConns: 2, MinConns: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 2, cfg.MaxConns)
	assert.EqualValues(t, 0, cfg.MinConns)
}

func TestParsePoolConfig_BadURL(t *testing.T) {
	_, err := parsePoolConfig("postgres://u:p@localhost:notaport/app", PoolOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse db config")
}
