package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	def := DefaultConfig()

	cfg := Config{Prefix: "x"}.withDefaults()
	assert.Equal(t, "x", cfg.Prefix)
	assert.Equal(t, def.Version, cfg.Version)
	assert.Equal(t, def.Precache, cfg.Precache)
	assert.Equal(t, def.SyncTag, cfg.SyncTag)
	assert.Len(t, cfg.Rules, len(def.Rules))
}

func TestConfigEmptyPrecacheDisablesPrecaching(t *testing.T) {
	cfg := Config{Precache: []string{}}.withDefaults()
	assert.NotNil(t, cfg.Precache)
	assert.Empty(t, cfg.Precache)
}
