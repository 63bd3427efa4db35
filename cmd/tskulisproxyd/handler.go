package main

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bkalafat/tskulis-sub002/cachestore"
	"github.com/bkalafat/tskulis-sub002/logger"
	"github.com/bkalafat/tskulis-sub002/strategy"
	"github.com/bkalafat/tskulis-sub002/worker"
)

var tracer = otel.Tracer("github.com/bkalafat/tskulis-sub002/cmd/tskulisproxyd")

type handler struct {
	worker   *worker.Worker
	syncTag  string
	passthru http.Handler
	log      logger.Logger
}

func newHandler(w *worker.Worker, syncTag, upstream string, log logger.Logger) http.Handler {
	var passthru http.Handler = http.NotFoundHandler()
	if target, err := url.Parse(upstream); err == nil {
		passthru = httputil.NewSingleHostReverseProxy(target)
	}
	return &handler{worker: w, syncTag: syncTag, passthru: passthru, log: log.WithPrefix("[http]")}
}

func (h *handler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/_worker/version":
		h.reply(rw, h.worker.HandleMessage(req.Context(), worker.Message{Type: worker.MessageGetVersion}))
		return
	case "/_worker/sync":
		if req.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := h.worker.HandleSync(req.Context(), h.syncTag); err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.WriteHeader(http.StatusNoContent)
		return
	case "/_worker/message":
		h.message(rw, req)
		return
	}

	ctx, span := tracer.Start(req.Context(), "intercept",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.URL.RequestURI()),
		))
	defer span.End()
	req = req.WithContext(ctx)

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		result := h.worker.HandleWrite(req.Context(), req)
		span.SetAttributes(attribute.String("cache.source", result.Source.String()))
		h.write(rw, result)
		return
	}

	result, ok := h.worker.HandleFetch(req.Context(), req)
	if !ok {
		span.SetAttributes(attribute.String("cache.source", "passthrough"))
		h.passthru.ServeHTTP(rw, req)
		return
	}
	span.SetAttributes(attribute.String("cache.source", result.Source.String()))
	h.write(rw, result)
}

func (h *handler) message(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg worker.Message
	if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
		http.Error(rw, "bad message: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.reply(rw, h.worker.HandleMessage(req.Context(), msg))
}

func (h *handler) reply(rw http.ResponseWriter, reply worker.Reply) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(rw).Encode(reply)
}

func (h *handler) write(rw http.ResponseWriter, result *strategy.Result) {
	entry := result.Entry
	header := rw.Header()
	for k, v := range entry.Header {
		if k == cachestore.HeaderCachedAt {
			continue
		}
		header[k] = v
	}
	header.Set("X-Cache", result.Source.String())
	rw.WriteHeader(entry.Status)
	if _, err := rw.Write(entry.Body); err != nil {
		h.log.Debug("client went away mid-response: %s", err)
	}
}
