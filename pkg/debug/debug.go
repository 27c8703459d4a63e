package debug

import (
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	readyCheckMu sync.RWMutex
	readyCheck   func() bool

	registry = newRegistry()
)

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

// SetReadyCheck registers an extra condition for /ready. The proxy uses it to
// report not-ready while its upstream configuration is incomplete.
func SetReadyCheck(check func() bool) {
	readyCheckMu.Lock()
	defer readyCheckMu.Unlock()
	readyCheck = check
}

func IsReady() bool {
	if !ready.Load() {
		return false
	}

	readyCheckMu.RLock()
	check := readyCheck
	readyCheckMu.RUnlock()

	return check == nil || check()
}

// Registry returns the registerer exported on /metrics.
func Registry() prometheus.Registerer {
	return registry
}

// Gatherer returns the gatherer behind /metrics.
func Gatherer() prometheus.Gatherer {
	return registry
}

// GetMux builds the debug listener's mux. pprof endpoints are mounted only
// when enablePprof is set.
func GetMux(enablePprof bool) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if enablePprof {
		mux.Handle("/debug/", http.HandlerFunc(pprof.Index))
		mux.Handle("/debug/allocs/", pprof.Handler("allocs"))
		mux.Handle("/debug/goroutine/", pprof.Handler("goroutine"))
		mux.Handle("/debug/heap/", pprof.Handler("heap"))
		mux.Handle("/debug/profile", http.HandlerFunc(pprof.Profile))
		mux.Handle("/debug/trace", http.HandlerFunc(pprof.Trace))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	return mux
}
