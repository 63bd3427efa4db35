package worker

import "github.com/bkalafat/tskulis-sub002/strategy"

// Config is the explicit context the worker runs with: generation
// naming, the classification table, the pre-cache manifest and the sync
// tag. Nothing here is global — two workers with different configs can
// coexist in one process, which is what makes the engine testable.
type Config struct {
	// Prefix is the leading component of every generation name.
	Prefix string
	// Version is the single global version tag. Bump it whenever the
	// caching logic changes; activate then invalidates every generation
	// written under the previous tag.
	Version string
	// Rules is the ordered classification table.
	Rules []strategy.Rule
	// Precache lists the critical resources fetched into the static
	// generation during install, before any user request occurs. A
	// non-nil empty slice disables pre-caching.
	Precache []string
	// SyncTag names the background sync trigger that replays queued
	// writes.
	SyncTag string
}

// DefaultConfig carries the news-site defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:  "tskulis-cache",
		Version: "v4",
		Rules:   strategy.DefaultRules(),
		Precache: []string{
			"/",
			"/offline.html",
			"/manifest.json",
			"/favicon.ico",
			"/icons/icon-192x192.png",
			"/icons/icon-512x512.png",
		},
		SyncTag: "sync-comments",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	if c.Version == "" {
		c.Version = def.Version
	}
	if len(c.Rules) == 0 {
		c.Rules = def.Rules
	}
	if c.Precache == nil {
		c.Precache = def.Precache
	}
	if c.SyncTag == "" {
		c.SyncTag = def.SyncTag
	}
	return c
}
