package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/bkalafat/tskulis-sub002/generation"
)

// Message types understood by the diagnostic channel.
const (
	MessageGetVersion = "GET_VERSION"
	MessageClearCache = "CLEAR_CACHE"
)

// Message is a structured request on the diagnostic channel.
type Message struct {
	Type string `json:"type"`
	// Category scopes CLEAR_CACHE to one generation; empty clears all.
	Category string `json:"category,omitempty"`
}

// Reply is the structured answer to a Message.
type Reply struct {
	Type    string   `json:"type"`
	Version string   `json:"version,omitempty"`
	Worker  string   `json:"worker,omitempty"`
	Cleared []string `json:"cleared,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// HandleMessage answers diagnostic messages from the hosting page:
// version queries, so the page can detect when a new worker has taken
// over, and explicit cache invalidation requests.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) Reply {
	switch msg.Type {
	case MessageGetVersion:
		return Reply{Type: "VERSION", Version: w.cfg.Version, Worker: w.id}
	case MessageClearCache:
		return w.clearCache(ctx, msg.Category)
	default:
		return Reply{Type: "ERROR", Error: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}

func (w *Worker) clearCache(ctx context.Context, category string) Reply {
	categories := generation.Categories()
	if category != "" {
		c := generation.Category(category)
		if !c.Valid() {
			return Reply{Type: "ERROR", Error: fmt.Sprintf("unknown category %q", category)}
		}
		categories = []generation.Category{c}
	}
	var cleared []string
	for _, c := range categories {
		handle, err := w.registry.Open(ctx, c)
		if err != nil {
			w.log.Warn("clear: could not open %s generation: %s", c, err)
			continue
		}
		part := handle.Partition()
		keys, err := part.Keys(ctx)
		if err != nil {
			w.log.Warn("clear: could not list %s: %s", handle.Name(), err)
			continue
		}
		var dropped int
		for _, key := range keys {
			// Deferred writes share the dynamic generation; an
			// invalidation must not discard them.
			if strings.HasPrefix(key, queueKeyPrefix) {
				continue
			}
			dropped++
			if _, err := part.Delete(ctx, key); err != nil {
				w.log.Warn("clear: could not delete %s from %s: %s", key, handle.Name(), err)
			}
		}
		cleared = append(cleared, handle.Name())
		w.log.Info("cleared %d entries from %s", dropped, handle.Name())
	}
	return Reply{Type: "CLEARED", Cleared: cleared}
}
