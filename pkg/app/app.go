// Package app provides the SLayer Application: an ordered list of middleware
// composed into an onion pipeline that handles every incoming HTTP request.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/Suhaibinator/SLayer/pkg/metrics"
	"github.com/Suhaibinator/SLayer/pkg/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrorListener receives every error delivered to the application's error sink.
type ErrorListener func(err error, c *httpctx.Context)

type listenerEntry struct {
	fn ErrorListener
}

// Application holds the middleware list and application-wide settings.
// Register middleware with Use before serving; the list is append-only.
type Application struct {
	config Config
	logger *zap.Logger
	proxy  httpctx.ProxyConfig

	mu         sync.RWMutex
	middleware []middleware.Middleware
	pipeline   middleware.Middleware
	listeners  []*listenerEntry
	defaulted  bool

	collector *metrics.Collector

	server     *http.Server
	shutdown   bool
	shutdownMu sync.RWMutex
	wg         sync.WaitGroup
}

// New creates an Application.
// When config.EnableTraceID is set a trace middleware is registered first, and
// when config.Metrics.Enabled is set a metrics middleware follows it.
func New(config Config) *Application {
	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	a := &Application{
		config: config,
		logger: logger,
		proxy: httpctx.ProxyConfig{
			Proxy:           config.Proxy,
			IPHeader:        config.ProxyIPHeader,
			MaxIPsCount:     config.MaxIPsCount,
			SubdomainOffset: config.SubdomainOffset,
		},
	}

	if config.EnableTraceID {
		a.Use(middleware.TraceMiddleware())
	}

	if config.Metrics.Enabled {
		collector, err := metrics.NewCollector(config.Metrics.Registerer, config.Metrics.Config)
		if err != nil {
			logger.Error("Failed to register metrics, metrics disabled", zap.Error(err))
		} else {
			a.collector = collector
			a.Use(middleware.Metrics(collector))
		}
	}

	return a
}

// Logger returns the application logger.
func (a *Application) Logger() *zap.Logger {
	return a.logger
}

// Env returns the configured environment name.
func (a *Application) Env() string {
	return a.config.Env
}

// Use appends mw to the middleware list and returns the application for chaining.
// It panics if mw is nil.
func (a *Application) Use(mw middleware.Middleware) *Application {
	if mw == nil {
		panic("app: middleware must not be nil")
	}
	a.mu.Lock()
	a.middleware = append(a.middleware, mw)
	a.pipeline = nil
	a.mu.Unlock()
	return a
}

// UseFunc appends a handler that never calls next.
func (a *Application) UseFunc(handler func(c *httpctx.Context) error) *Application {
	if handler == nil {
		panic("app: handler must not be nil")
	}
	return a.Use(func(c *httpctx.Context, _ common.Next) error {
		return handler(c)
	})
}

// Middleware returns a copy of the registered middleware list.
func (a *Application) Middleware() []middleware.Middleware {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]middleware.Middleware, len(a.middleware))
	copy(out, a.middleware)
	return out
}

// OnError registers a listener for errors delivered to the error sink.
// The returned function removes the listener.
func (a *Application) OnError(fn ErrorListener) (unsubscribe func()) {
	entry := &listenerEntry{fn: fn}
	a.mu.Lock()
	a.listeners = append(a.listeners, entry)
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, l := range a.listeners {
				if l == entry {
					a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ensureDefaultListener installs the logging listener when nobody listens for errors.
func (a *Application) ensureDefaultListener() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.defaulted {
		return
	}
	a.defaulted = true
	if len(a.listeners) == 0 {
		a.listeners = append(a.listeners, &listenerEntry{fn: a.logError})
	}
}

// Handler composes the current middleware list and returns an http.Handler
// running it. Middleware added afterwards does not affect the returned handler.
func (a *Application) Handler() http.Handler {
	a.ensureDefaultListener()
	a.mu.RLock()
	pipeline := common.Compose(a.middleware...)
	a.mu.RUnlock()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.handle(w, r, pipeline)
	})
}

// ServeHTTP implements http.Handler using the latest middleware list.
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.HandleRequest(w, r)
}

// HandleRequest runs the middleware pipeline for one request, then writes the
// response or delivers the failure to the error sink.
func (a *Application) HandleRequest(w http.ResponseWriter, r *http.Request) {
	a.ensureDefaultListener()
	a.handle(w, r, a.currentPipeline())
}

func (a *Application) currentPipeline() middleware.Middleware {
	a.mu.RLock()
	pipeline := a.pipeline
	a.mu.RUnlock()
	if pipeline != nil {
		return pipeline
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pipeline == nil {
		a.pipeline = common.Compose(a.middleware...)
	}
	return a.pipeline
}

func (a *Application) handle(w http.ResponseWriter, r *http.Request, pipeline middleware.Middleware) {
	// First add to the wait group before checking shutdown status
	a.wg.Add(1)
	defer a.wg.Done()

	a.shutdownMu.RLock()
	isShutdown := a.shutdown
	a.shutdownMu.RUnlock()
	if isShutdown {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	c := a.CreateContext(w, r)
	defer c.Finish()
	if err := pipeline(c, nil); err != nil {
		a.handleError(err, c)
		return
	}
	if err := a.respond(c); err != nil {
		a.handleError(err, c)
	}
}

// CreateContext creates the Context for a request. The response status starts at 404.
func (a *Application) CreateContext(w http.ResponseWriter, r *http.Request) *httpctx.Context {
	return httpctx.New(w, r, httpctx.Options{
		Proxy:   a.proxy,
		Logger:  a.logger,
		OnError: a.handleError,
	})
}

// MetricsHandler returns a handler exposing the application's metrics.
// It serves the configured registry when it is also a Gatherer.
func (a *Application) MetricsHandler() http.Handler {
	if g, ok := a.config.Metrics.Registerer.(prometheus.Gatherer); ok {
		return metrics.Handler(g)
	}
	return metrics.Handler(prometheus.DefaultGatherer)
}

// Listen starts an HTTP server on addr, or on the configured address when addr
// is empty. It blocks until the server stops and returns nil after Shutdown.
func (a *Application) Listen(addr string) error {
	if addr == "" {
		addr = a.config.Server.Addr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           a,
		ReadTimeout:       a.config.Server.ReadTimeout,
		ReadHeaderTimeout: a.config.Server.ReadHeaderTimeout,
		WriteTimeout:      a.config.Server.WriteTimeout,
		IdleTimeout:       a.config.Server.IdleTimeout,
		ErrorLog:          zap.NewStdLog(a.logger),
	}
	a.mu.Lock()
	a.server = server
	a.mu.Unlock()

	a.logger.Info("Listening", zap.String("addr", addr), zap.String("env", a.config.Env))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listening")
	}
	return nil
}

// Shutdown gracefully shuts down the application.
// New requests are rejected with 503 while in-flight requests complete.
// If the context is canceled first, its error is returned.
func (a *Application) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.mu.RLock()
	server := a.server
	a.mu.RUnlock()
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inspect returns a summary of the application settings.
func (a *Application) Inspect() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return map[string]any{
		"env":              a.config.Env,
		"proxy":            a.config.Proxy,
		"subdomain_offset": a.proxy.SubdomainOffset,
		"silent":           a.config.Silent,
		"middleware":       len(a.middleware),
	}
}
