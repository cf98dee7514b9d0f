package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsSmallPageSize(t *testing.T) {
	cfg := Default()
	cfg.PageSize = 512
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownReplacer(t *testing.T) {
	cfg := Default()
	cfg.Replacer = "mru"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSmallK(t *testing.T) {
	cfg := Default()
	cfg.Replacer = ReplacerLRUK
	cfg.ReplacerK = 1
	assert.Error(t, cfg.Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().PageSize, cfg.PageSize)
}
