// Package webd is the HTTP/websocket daemon: sensor intake on POST,
// pose and consistency reads on GET, live pose streaming over websocket.
package webd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/olahol/melody"
	"github.com/rovermap/insd/engine"
	"github.com/rovermap/insd/params"
)

type WebDaemon struct {
	Config *params.WebDaemonConfig
	logger *slog.Logger

	engine         *engine.Engine
	melodyInstance *melody.Melody
	started        time.Time

	server *http.Server
}

func NewWebDaemon(config *params.WebDaemonConfig, e *engine.Engine) *WebDaemon {
	if config == nil {
		config = params.DefaultWebDaemonConfig()
	}
	return &WebDaemon{
		Config: config,
		logger: slog.With("d", "web"),
		engine: e,
	}
}

// Run serves until ctx is canceled, then shuts the listener down
// gracefully and returns.
func (s *WebDaemon) Run(ctx context.Context) error {
	s.started = time.Now()
	router := s.NewRouter(ctx)

	listener, err := net.Listen(s.Config.Network, s.Config.Address)
	if err != nil {
		return err
	}
	s.server = &http.Server{Handler: router}
	s.logger.Info("Starting web daemon", "network", s.Config.Network, "address", s.Config.Address)

	errs := make(chan error, 1)
	go func() {
		errs <- s.server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.melodyInstance.Close()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *WebDaemon) NewRouter(ctx context.Context) *mux.Router {
	s.initMelody(ctx)

	router := mux.NewRouter().StrictSlash(false)
	router.Use(loggingMiddleware)

	apiRoutes := router.NewRoute().Subrouter()

	// All API routes use permissive CORS settings.
	apiRoutes.Use(permissiveCorsMiddleware)

	// /ping is a simple server healthcheck endpoint
	apiRoutes.Path("/ping").HandlerFunc(pingPong)

	apiRoutes.Path("/ws").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.melodyInstance.HandleRequest(w, r)
	})

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	jsonMiddleware := contentTypeMiddlewareFunc("application/json")
	apiJSONRoutes.Use(jsonMiddleware)

	apiJSONRoutes.Path("/status").HandlerFunc(s.statusReport).Methods(http.MethodGet)
	apiJSONRoutes.Path("/state").HandlerFunc(s.handleStateAll).Methods(http.MethodGet)
	apiJSONRoutes.Path("/state/{filter}").HandlerFunc(s.handleState).Methods(http.MethodGet)
	apiJSONRoutes.Path("/nis/{filter}").HandlerFunc(s.handleNIS).Methods(http.MethodGet)
	apiJSONRoutes.Path("/road").HandlerFunc(s.handleRoad).Methods(http.MethodGet)

	authenticatedAPIRoutes := apiJSONRoutes.NewRoute().Subrouter()
	authenticatedAPIRoutes.Use(tokenAuthenticationMiddleware)

	populateRoutes := authenticatedAPIRoutes.NewRoute().Subrouter()
	populateRoutes.Path("/populate/").HandlerFunc(s.handlePopulate).Methods(http.MethodPost)
	populateRoutes.Path("/populate").HandlerFunc(s.handlePopulate).Methods(http.MethodPost)

	return router
}
