package proxy

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// CacheStatusHeader carries the cache verdict to the client.
const CacheStatusHeader = "X-Cache"

// Handler is the per-request entry point: it validates the inbound
// request, builds the descriptor, runs the coordinator and writes the
// annotated response.
type Handler struct {
	coordinator *Coordinator
	origin      *url.URL
	logger      zerolog.Logger
}

// NewHandler creates the proxy's HTTP handler for one origin.
func NewHandler(coordinator *Coordinator, origin *url.URL, logger zerolog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		origin:      origin,
		logger:      logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.validate(w, r) {
		return
	}

	desc, err := NewRequestDescriptor(r, h.origin)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			h.requestLogger(r).Warn().Msg("Request body over size limit")
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		h.requestLogger(r).Warn().Err(err).Msg("Unreadable request body")
		http.Error(w, "Bad Request: unreadable body", http.StatusBadRequest)
		return
	}

	result, err := h.coordinator.Handle(r.Context(), desc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	header := w.Header()
	for name, values := range result.Response.Headers {
		header[name] = values
	}
	header.Set(CacheStatusHeader, string(result.Status))

	w.WriteHeader(result.Response.StatusCode)
	if _, err := w.Write(result.Response.Body); err != nil {
		h.requestLogger(r).Warn().Err(err).Msg("Failed to write response to client")
	}
}

// validate rejects malformed requests with a client error before any
// other component sees them.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodConnect {
		http.Error(w, "CONNECT is not supported", http.StatusMethodNotAllowed)
		return false
	}

	// Proxy-form request lines must target our configured origin;
	// anything else would silently tunnel to an arbitrary host.
	if r.URL.IsAbs() && r.URL.Host != h.origin.Host {
		http.Error(w, "Bad Request: unknown origin", http.StatusBadRequest)
		return false
	}

	if _, err := url.ParseRequestURI(r.URL.RequestURI()); err != nil {
		http.Error(w, "Bad Request: malformed URL", http.StatusBadRequest)
		return false
	}

	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := h.requestLogger(r)

	var fetchErr *FetchError
	switch {
	case errors.As(err, &fetchErr):
		status := http.StatusBadGateway
		if fetchErr.Kind == FetchTimeout {
			status = http.StatusGatewayTimeout
		}
		logger.Error().Err(err).Int("status", status).Msg("Origin fetch failed")
		w.Header().Set(CacheStatusHeader, string(StatusMiss))
		http.Error(w, "Bad Gateway: origin unreachable", status)

	case r.Context().Err() != nil:
		// This client went away; there is nobody left to answer.
		logger.Debug().Err(err).Msg("Request cancelled")

	case errors.Is(err, ErrFetchCancelled):
		// The leading fetch was cancelled while this request waited on
		// it; every waiter resolves with a gateway error.
		logger.Warn().Err(err).Msg("In-flight fetch cancelled")
		w.Header().Set(CacheStatusHeader, string(StatusMiss))
		http.Error(w, "Bad Gateway: origin fetch cancelled", http.StatusBadGateway)

	default:
		logger.Error().Err(err).Msg("Proxying failed")
		w.Header().Set(CacheStatusHeader, string(StatusMiss))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}
}

// requestLogger prefers the hlog request-scoped logger when the
// middleware installed one.
func (h *Handler) requestLogger(r *http.Request) *zerolog.Logger {
	if logger := hlog.FromRequest(r); logger.GetLevel() != zerolog.Disabled {
		return logger
	}
	return &h.logger
}
