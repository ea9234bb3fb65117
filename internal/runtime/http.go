package runtime

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jsoncodec "github.com/drblury/nodeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/nodeflow/internal/runtime/logging"
)

// RegisterHTTPHandler mounts handler on the server for port. Servers are
// started by Start, so registrations must happen before it.
func (b *Broker) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	if b.httpServers == nil {
		b.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := b.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		b.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (b *Broker) registerStatusHandlers() {
	if !b.Conf.MetricsEnabled || b.Conf.MetricsPort == 0 {
		return
	}
	port := b.Conf.MetricsPort
	b.RegisterHTTPHandler(port, "/metrics", b.metricsHandler())
	b.RegisterHTTPHandler(port, "/api/workers", http.HandlerFunc(b.handleGetWorkers))
	b.RegisterHTTPHandler(port, "/api/services", http.HandlerFunc(b.handleGetServices))
	b.RegisterHTTPHandler(port, "/api/subjects", http.HandlerFunc(b.handleGetSubjects))
}

func (b *Broker) metricsHandler() http.Handler {
	if g, ok := b.deps.Registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func (b *Broker) startHTTPServers() []*http.Server {
	b.registerStatusHandlers()

	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(b.httpServers))
	for port, mux := range b.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		b.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		servers = append(servers, srv)
	}
	return servers
}

func (b *Broker) handleGetWorkers(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, b.Workers())
}

func (b *Broker) handleGetServices(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, b.services.Schemas())
}

func (b *Broker) handleGetSubjects(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, b.metrics.GetSnapshot())
}

func (b *Broker) writeJSON(w http.ResponseWriter, v any) {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		b.Logger.Error("Failed to encode status response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
