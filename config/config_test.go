package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bkalafat/tskulis-sub002/generation"
	"github.com/bkalafat/tskulis-sub002/strategy"
	"github.com/bkalafat/tskulis-sub002/worker"
)

const sampleConfig = `
prefix: tskulis-cache
version: v9
sync_tag: sync-comments
precache:
  - /
  - /offline.html
rules:
  - name: scripts
    strategy: cache-first
    category: static
    ttl: 30d
    patterns: ['\.js$', '\.css$']
  - name: cdn-images
    strategy: cache-first
    category: images
    ttl: 1w
    hosts: [firebasestorage.googleapis.com]
  - name: listings
    strategy: swr
    category: api
    ttl: 5m
    patterns: ['^/api/']
  - name: pages
    strategy: network-first
    category: dynamic
    ttl: 1h
    accept: text/html
  - name: everything-else
    strategy: network-first
    category: dynamic
    ttl: 1h
    default: true
`

func TestParseSampleConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	assert.NoError(t, err)
	assert.Equal(t, "tskulis-cache", cfg.Prefix)
	assert.Equal(t, "v9", cfg.Version)
	assert.Equal(t, []string{"/", "/offline.html"}, cfg.Precache)
	assert.Len(t, cfg.Rules, 5)

	assert.Equal(t, "scripts", cfg.Rules[0].Name)
	assert.Equal(t, strategy.CacheFirst, cfg.Rules[0].Assignment.Strategy)
	assert.Equal(t, generation.Static, cfg.Rules[0].Assignment.Category)
	assert.Equal(t, 30*24*time.Hour, cfg.Rules[0].Assignment.TTL)

	assert.Equal(t, 7*24*time.Hour, cfg.Rules[1].Assignment.TTL)
	assert.Equal(t, strategy.StaleWhileRevalidate, cfg.Rules[2].Assignment.Strategy)
	assert.Equal(t, 5*time.Minute, cfg.Rules[2].Assignment.TTL)
}

func TestParsedRulesClassify(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	assert.NoError(t, err)
	classifier := strategy.NewClassifier(cfg.Rules)

	asn, ok := classifier.Classify(httptest.NewRequest(http.MethodGet, "/bundle.js", nil))
	assert.True(t, ok)
	assert.Equal(t, generation.Static, asn.Category)

	asn, ok = classifier.Classify(httptest.NewRequest(http.MethodGet, "https://firebasestorage.googleapis.com/v0/b/x", nil))
	assert.True(t, ok)
	assert.Equal(t, generation.Images, asn.Category)

	req := httptest.NewRequest(http.MethodGet, "/haber/1", nil)
	req.Header.Set("Accept", "text/html")
	asn, ok = classifier.Classify(req)
	assert.True(t, ok)
	assert.Equal(t, generation.Dynamic, asn.Category)

	asn, ok = classifier.Classify(httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.True(t, ok)
	assert.Equal(t, generation.Dynamic, asn.Category)
}

func TestParseRejectsBadRules(t *testing.T) {
	_, err := Parse([]byte("rules: [{name: a, strategy: nope, category: static, ttl: 1h, default: true}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("rules: [{name: a, strategy: cache-first, category: video, ttl: 1h, default: true}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("rules: [{name: a, strategy: cache-first, category: static, ttl: soon, default: true}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("rules: [{name: a, strategy: cache-first, category: static, ttl: 1h, patterns: ['(']}]"))
	assert.Error(t, err)

	// a rule with no predicate at all is a config mistake
	_, err = Parse([]byte("rules: [{name: a, strategy: cache-first, category: static, ttl: 1h}]"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, worker.DefaultConfig().Prefix, cfg.Prefix)
	assert.Equal(t, worker.DefaultConfig().Version, cfg.Version)
	assert.NotEmpty(t, cfg.Rules)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caching.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "v9", cfg.Version)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
