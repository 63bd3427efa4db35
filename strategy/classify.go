// Package strategy decides how each intercepted request is cached: an
// ordered rule table classifies the request, and one of three executors
// (cache-first, stale-while-revalidate, network-first) reconciles the
// cached copy with the network under a per-class TTL.
package strategy

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bkalafat/tskulis-sub002/generation"
)

// Kind identifies one of the caching strategies.
type Kind int

const (
	CacheFirst Kind = iota
	StaleWhileRevalidate
	NetworkFirst
)

func (k Kind) String() string {
	switch k {
	case CacheFirst:
		return "cache-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	case NetworkFirst:
		return "network-first"
	default:
		return "unknown"
	}
}

// ParseKind converts a strategy name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "cache-first":
		return CacheFirst, nil
	case "stale-while-revalidate", "swr":
		return StaleWhileRevalidate, nil
	case "network-first":
		return NetworkFirst, nil
	default:
		return 0, fmt.Errorf("strategy: unknown strategy %q", s)
	}
}

// Default TTLs per content class.
const (
	StaticTTL  = 30 * 24 * time.Hour
	ImagesTTL  = 7 * 24 * time.Hour
	APITTL     = 5 * time.Minute
	DynamicTTL = time.Hour
)

// Assignment is the derived, stateless outcome of classifying one
// request. It is recomputed per request and never persisted.
type Assignment struct {
	Strategy Kind
	Category generation.Category
	TTL      time.Duration
}

// Rule pairs a predicate with the assignment it produces. Rules are
// evaluated in order and the first match wins — the ordering is the
// tie-break for URLs that match several patterns.
type Rule struct {
	Name       string
	Match      func(*http.Request) bool
	Assignment Assignment
}

// Classifier maps requests onto assignments through an ordered rule table.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the classifier's rule table, in evaluation order.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify resolves a request to an assignment. It returns ok=false
// when the request must not be intercepted at all: any non-GET method,
// or a URL scheme other than HTTP(S). An absent scheme counts as HTTP —
// server-side requests carry origin-relative URLs.
func (c *Classifier) Classify(req *http.Request) (Assignment, bool) {
	if req.Method != http.MethodGet {
		return Assignment{}, false
	}
	switch req.URL.Scheme {
	case "", "http", "https":
	default:
		return Assignment{}, false
	}
	for _, rule := range c.rules {
		if rule.Match(req) {
			return rule.Assignment, true
		}
	}
	// DefaultRules ends in a catch-all, but a custom table may not.
	return Assignment{Strategy: NetworkFirst, Category: generation.Dynamic, TTL: DynamicTTL}, true
}

var (
	staticExtRe  = regexp.MustCompile(`(?i)\.(?:m?js|css|woff2?|ttf|otf|eot|map)$`)
	bundlePathRe = regexp.MustCompile(`^/(?:_next/static|static)/`)
	imageExtRe   = regexp.MustCompile(`(?i)\.(?:png|jpe?g|gif|webp|svg|ico|avif|bmp)$`)
	apiPathRe    = regexp.MustCompile(`^/api/(?:news|categories|notices|subscribe)`)
)

// image CDNs the site serves from
var imageHosts = []string{
	"firebasestorage.googleapis.com",
	"res.cloudinary.com",
	"i.imgur.com",
}

func isImageHost(host string) bool {
	for _, h := range imageHosts {
		if strings.EqualFold(host, h) {
			return true
		}
	}
	return false
}

// AcceptsHTML reports whether the request's Accept header indicates an
// HTML document (a navigation).
func AcceptsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// DefaultRules is the compiled classification table for the news site.
// Order matters: an image served from an API path is an image, never
// revalidate-able JSON, so the image rule precedes the API rule.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "static-assets",
			Match: func(req *http.Request) bool {
				return staticExtRe.MatchString(req.URL.Path) || bundlePathRe.MatchString(req.URL.Path)
			},
			Assignment: Assignment{Strategy: CacheFirst, Category: generation.Static, TTL: StaticTTL},
		},
		{
			Name: "images",
			Match: func(req *http.Request) bool {
				return imageExtRe.MatchString(req.URL.Path) || isImageHost(req.URL.Host)
			},
			Assignment: Assignment{Strategy: CacheFirst, Category: generation.Images, TTL: ImagesTTL},
		},
		{
			Name: "api-listings",
			Match: func(req *http.Request) bool {
				return apiPathRe.MatchString(req.URL.Path)
			},
			Assignment: Assignment{Strategy: StaleWhileRevalidate, Category: generation.API, TTL: APITTL},
		},
		{
			Name:       "navigations",
			Match:      AcceptsHTML,
			Assignment: Assignment{Strategy: NetworkFirst, Category: generation.Dynamic, TTL: DynamicTTL},
		},
		{
			Name:       "default",
			Match:      func(*http.Request) bool { return true },
			Assignment: Assignment{Strategy: NetworkFirst, Category: generation.Dynamic, TTL: DynamicTTL},
		},
	}
}

// RequestKey derives the cache key for a request. Absolute URLs keep
// their origin so cross-host image entries do not collide.
func RequestKey(req *http.Request) string {
	if req.URL.IsAbs() {
		return req.URL.String()
	}
	return req.URL.RequestURI()
}
