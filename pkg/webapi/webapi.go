// This file is to handle things such as metrics/health/pprof, etc

package webapi

import (
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type WebServerOptions struct {
	Logger        *zap.Logger
	LogLevel      *zap.AtomicLevel
	ListenAddress string
}

type WebServer struct {
	logger        *zap.Logger
	logLevel      *zap.AtomicLevel
	listenAddress string
	httpServer    *http.Server
	isHealthy     atomic.Bool
}

func newWebServer(opts WebServerOptions) *WebServer {
	return &WebServer{
		logger:        opts.Logger,
		logLevel:      opts.LogLevel,
		listenAddress: opts.ListenAddress,
	}
}

func (w *WebServer) handleRoot(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(200)
	_, err := rw.Write([]byte("Welcome to the replica gateway internal webapi"))
	if err != nil {
		w.logger.Debug("failed to write generic root response", zap.Error(err))
	}
}

func (w *WebServer) handleHealth(rw http.ResponseWriter, r *http.Request) {
	if !w.isHealthy.Load() {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_, err := rw.Write([]byte(`{"status":"NOT_SERVING"}`))
		if err != nil {
			w.logger.Debug("failed to write health response", zap.Error(err))
		}
		return
	}

	rw.WriteHeader(http.StatusOK)
	_, err := rw.Write([]byte(`{"status":"SERVING"}`))
	if err != nil {
		w.logger.Debug("failed to write health response", zap.Error(err))
	}
}

func (w *WebServer) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", w.handleHealth)

	// zap's AtomicLevel doubles as a handler, GET reads the level and PUT
	// changes it at runtime
	if w.logLevel != nil {
		r.Handle("/debug/loglevel", w.logLevel)
	}

	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)

	r.HandleFunc("/", w.handleRoot)

	return r
}

func (w *WebServer) ListenAndServe() error {
	w.httpServer = &http.Server{
		Handler:      w.buildRouter(),
		Addr:         w.listenAddress,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return w.httpServer.ListenAndServe()
}

var globalWebLock sync.Mutex
var globalWebServer *WebServer = nil

func InitializeWebServer(opts WebServerOptions) {
	globalWebLock.Lock()
	if globalWebServer != nil {
		globalWebLock.Unlock()
		return
	}

	globalWebServer = newWebServer(opts)
	globalWebLock.Unlock()
	go func() {
		err := globalWebServer.ListenAndServe()
		if err != nil {
			opts.Logger.Error("Failed to listen and serve web server", zap.Error(err))
		}
	}()
}

// MarkSystemHealthy flips the health endpoint to SERVING once the gateway
// has finished starting up.
func MarkSystemHealthy() {
	globalWebLock.Lock()
	defer globalWebLock.Unlock()

	if globalWebServer != nil {
		globalWebServer.isHealthy.Store(true)
	}
}
