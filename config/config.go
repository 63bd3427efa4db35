// Package config loads the proxy's caching rules from a YAML file and
// compiles them into the worker's explicit configuration. Absent file
// or absent fields fall back to the built-in defaults, so a config file
// only needs to state what it changes.
package config

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/bkalafat/tskulis-sub002/generation"
	"github.com/bkalafat/tskulis-sub002/strategy"
	"github.com/bkalafat/tskulis-sub002/worker"
)

// Rule is the YAML form of one classification rule. A request matches
// when any of its patterns match the URL path, or its host is listed in
// hosts, or the Accept header contains accept.
type Rule struct {
	Name     string   `yaml:"name"`
	Strategy string   `yaml:"strategy"`
	Category string   `yaml:"category"`
	TTL      string   `yaml:"ttl"`
	Patterns []string `yaml:"patterns,omitempty"`
	Hosts    []string `yaml:"hosts,omitempty"`
	Accept   string   `yaml:"accept,omitempty"`
	// Default marks the catch-all rule; it matches every request.
	Default bool `yaml:"default,omitempty"`
}

// File is the YAML document shape.
type File struct {
	Prefix   string   `yaml:"prefix,omitempty"`
	Version  string   `yaml:"version,omitempty"`
	SyncTag  string   `yaml:"sync_tag,omitempty"`
	Precache []string `yaml:"precache,omitempty"`
	Rules    []Rule   `yaml:"rules,omitempty"`
}

// Load reads a YAML config file and compiles it. An empty path returns
// the defaults.
func Load(path string) (worker.Config, error) {
	if path == "" {
		return worker.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return worker.Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse compiles a YAML document into a worker configuration.
func Parse(data []byte) (worker.Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return worker.Config{}, fmt.Errorf("config: parsing yaml: %w", err)
	}
	cfg := worker.DefaultConfig()
	if f.Prefix != "" {
		cfg.Prefix = f.Prefix
	}
	if f.Version != "" {
		cfg.Version = f.Version
	}
	if f.SyncTag != "" {
		cfg.SyncTag = f.SyncTag
	}
	if len(f.Precache) > 0 {
		cfg.Precache = f.Precache
	}
	if len(f.Rules) > 0 {
		rules, err := compileRules(f.Rules)
		if err != nil {
			return worker.Config{}, err
		}
		cfg.Rules = rules
	}
	return cfg, nil
}

func compileRules(in []Rule) ([]strategy.Rule, error) {
	rules := make([]strategy.Rule, 0, len(in))
	for i, r := range in {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		kind, err := strategy.ParseKind(r.Strategy)
		if err != nil {
			return nil, fmt.Errorf("config: rule %s: %w", name, err)
		}
		category := generation.Category(r.Category)
		if !category.Valid() {
			return nil, fmt.Errorf("config: rule %s: unknown category %q", name, r.Category)
		}
		// str2duration accepts day and week units ("30d", "1w"), which
		// plain time.ParseDuration does not.
		ttl, err := str2duration.ParseDuration(r.TTL)
		if err != nil {
			return nil, fmt.Errorf("config: rule %s: bad ttl %q: %w", name, r.TTL, err)
		}
		match, err := compileMatch(r)
		if err != nil {
			return nil, fmt.Errorf("config: rule %s: %w", name, err)
		}
		rules = append(rules, strategy.Rule{
			Name:       name,
			Match:      match,
			Assignment: strategy.Assignment{Strategy: kind, Category: category, TTL: ttl},
		})
	}
	return rules, nil
}

func compileMatch(r Rule) (func(*http.Request) bool, error) {
	if r.Default {
		return func(*http.Request) bool { return true }, nil
	}
	patterns := make([]*regexp.Regexp, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	hosts := make([]string, len(r.Hosts))
	for i, h := range r.Hosts {
		hosts[i] = strings.ToLower(h)
	}
	accept := r.Accept
	if len(patterns) == 0 && len(hosts) == 0 && accept == "" {
		return nil, fmt.Errorf("rule matches nothing: needs patterns, hosts, accept or default")
	}
	return func(req *http.Request) bool {
		for _, re := range patterns {
			if re.MatchString(req.URL.Path) {
				return true
			}
		}
		host := strings.ToLower(req.URL.Host)
		for _, h := range hosts {
			if host == h {
				return true
			}
		}
		if accept != "" && strings.Contains(req.Header.Get("Accept"), accept) {
			return true
		}
		return false
	}, nil
}
