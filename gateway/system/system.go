package system

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/warehouselabs/replica-gateway/gateway/apiimpl"
	"github.com/warehouselabs/replica-gateway/gateway/auth"
	"github.com/warehouselabs/replica-gateway/gateway/ratelimiting"
	"github.com/warehouselabs/replica-gateway/utils/authhdr"
)

type SystemOptions struct {
	Logger *zap.Logger

	ApiImpl *apiimpl.Servers

	RateLimiter  ratelimiting.RateLimiter
	ApiTlsConfig *tls.Config

	// Authenticator guards the v1 endpoints when non-nil.
	Authenticator auth.Authenticator

	Debug bool
}

type System struct {
	logger *zap.Logger

	apiServer *http.Server
	useTls    bool
}

func NewSystem(opts *SystemOptions) (*System, error) {
	apiImpl := opts.ApiImpl

	router := mux.NewRouter()
	apiImpl.ReplicationV1Server.RegisterRoutes(router)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowCredentials: true,
		Debug:            opts.Debug,
	})

	var httpHandler http.Handler = router
	if opts.Authenticator != nil {
		httpHandler = newBasicAuthMiddleware(opts.Authenticator, httpHandler)
	}
	if opts.RateLimiter != nil {
		httpHandler = opts.RateLimiter.HttpMiddleware(httpHandler)
	}
	httpHandler = c.Handler(httpHandler)

	switch otel.GetMeterProvider().(type) {
	case noop.MeterProvider:
	default:
		httpHandler = otelhttp.NewHandler(httpHandler, "replica-gateway-api")
	}

	apiSrv := &http.Server{
		WriteTimeout: time.Second * 60,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      httpHandler,
		TLSConfig:    opts.ApiTlsConfig,
	}

	s := &System{
		logger:    opts.Logger,
		apiServer: apiSrv,
		useTls:    opts.ApiTlsConfig != nil,
	}

	return s, nil
}

func (s *System) Serve(ctx context.Context, l *Listeners) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = s.apiServer.Close()
	}()

	if l.apiListener != nil {
		wg.Add(1)
		go func() {
			var err error
			if s.useTls {
				err = s.apiServer.ServeTLS(l.apiListener, "", "")
			} else {
				err = s.apiServer.Serve(l.apiListener)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Warn("api server serve failed", zap.Error(err))
			}
			wg.Done()
		}()
	}

	wg.Wait()
	return nil
}

func (s *System) Shutdown() {
	var wg sync.WaitGroup

	if s.apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.apiServer.SetKeepAlivesEnabled(false)
			_ = s.apiServer.Shutdown(context.Background())
		}()
	}

	wg.Wait()
}

// newBasicAuthMiddleware guards every route behind HTTP basic auth. The health
// endpoint stays open so load balancers can probe it.
func newBasicAuthMiddleware(authenticator auth.Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		reqUser, reqPass, ok := authhdr.DecodeBasicAuth(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="replica-gateway"`)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		if err := authenticator.ValidateCredentials(r.Context(), reqUser, reqPass); err != nil {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
