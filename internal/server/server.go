// Package server wires the proxy listener and the admin interface into
// http servers and manages their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Pokulord/CachedProxy/internal/config"
	"github.com/Pokulord/CachedProxy/internal/middleware"
	"github.com/Pokulord/CachedProxy/pkg/cache"
	"github.com/Pokulord/CachedProxy/pkg/metrics"
	"github.com/Pokulord/CachedProxy/pkg/proxy"
)

type serverInfo struct {
	server *http.Server
	logger *zerolog.Logger
}

// Server runs the proxy listener and, when configured, the admin
// interface, and shuts both down on SIGINT.
type Server struct {
	servers []serverInfo
	logger  *zerolog.Logger
}

// New assembles the servers from the configuration. The store is
// shared between the proxy pipeline and the admin cache endpoints.
func New(conf *config.Config, origin *url.URL, store cache.Store, logger *zerolog.Logger) *Server {
	srv := Server{logger: logger}

	srv.servers = append(srv.servers, setupProxy(conf, origin, store, logger))

	if conf.AdminListen != "" {
		srv.servers = append(srv.servers, setupAdmin(conf, store, logger))
	}

	return &srv
}

// ListenAndServe starts all servers and blocks until an interrupt
// arrives or one of them fails to come up, then shuts everything down.
func (s *Server) ListenAndServe() error {
	// Buffered so a server failing after shutdown already started can
	// still deliver its error without blocking or hitting a closed
	// channel.
	errChan := make(chan error, len(s.servers))

	for _, srv := range s.servers {
		go func() {
			srv.logger.Info().Str("address", srv.server.Addr).Msg("Starting server")
			err := srv.server.ListenAndServe()
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error().Err(err).Msg("Server didn't come up properly")
				errChan <- err
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	select {
	case <-stop:
		s.logger.Info().Msg("Shutting down")
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("At least one server is unhealthy, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	closingErrs := make(chan error)
	defer close(closingErrs)

	for _, srv := range s.servers {
		go func() {
			err := srv.server.Shutdown(ctx)
			if err != nil {
				srv.logger.Error().Err(err).Msg("Error shutting down the server")
			}
			closingErrs <- err
		}()
	}

	var lastErr error
	for range len(s.servers) {
		if err := <-closingErrs; err != nil {
			lastErr = err
		}
	}

	return lastErr
}

func setupProxy(conf *config.Config, origin *url.URL, store cache.Store, logger *zerolog.Logger) serverInfo {
	log := logger.With().Str("service", "proxy").Logger()

	fetcher := proxy.NewFetcher(time.Duration(conf.OriginTimeoutSeconds)*time.Second, log)
	keyer := cache.NewKeyer(origin, conf.Cache.KeyHeaders)
	sanitizer := proxy.NewSanitizer(conf.Headers.RequestDeny, conf.Headers.ResponseDeny)
	policy := proxy.Policy{
		CacheableStatuses: conf.CacheableStatusSet(),
		DefaultTTL:        time.Duration(conf.Cache.DefaultTTLSeconds) * time.Second,
		HonorOriginTTL:    conf.Cache.HonorOriginTTL,
	}

	coordinator := proxy.NewCoordinator(store, fetcher, keyer, sanitizer, policy, log)
	handler := proxy.NewHandler(coordinator, origin, log)

	return createServer(conf.Listen, handler, &log)
}

func setupAdmin(conf *config.Config, store cache.Store, logger *zerolog.Logger) serverInfo {
	log := logger.With().Str("service", "admin").Logger()

	router := chi.NewRouter()
	RegisterAdminHandlers(router, store)

	return createServer(conf.AdminListen, router, &log)
}

// RegisterAdminHandlers mounts the admin endpoints on the router.
// Split out so tests can drive the routes without binding a port.
func RegisterAdminHandlers(router chi.Router, store cache.Store) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	router.Get("/metrics", promhttp.HandlerFor(metrics.Gatherer, promhttp.HandlerOpts{}).ServeHTTP)

	router.Delete("/cache", func(w http.ResponseWriter, r *http.Request) {
		deleted, err := store.Clear(r.Context())
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to clear cache")
			http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
			return
		}

		hlog.FromRequest(r).Info().Int("deleted", deleted).Msg("Cache cleared")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"deleted":%d}`, deleted)
	})

	router.Delete("/cache/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if !strings.HasPrefix(key, cache.Namespace) {
			key = cache.Namespace + key
		}

		if err := store.Delete(r.Context(), key); err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("key", key).Msg("Failed to delete cache entry")
			http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func createServer(address string, handler http.Handler, log *zerolog.Logger) serverInfo {
	return serverInfo{
		&http.Server{
			Addr:         address,
			Handler:      middleware.Apply(handler, log),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute,
			ErrorLog:     stdlog.New(log, "", 0),
		},
		log,
	}
}
