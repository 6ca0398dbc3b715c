package rest

import (
	"context"
	"net/http"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/amboy"
	"github.com/netperch/perch"
	"github.com/netperch/perch/rest/data"
	"github.com/pkg/errors"
	"github.com/rs/cors"
)

type Service struct {
	Port        int
	Prefix      string
	Environment perch.Environment

	// internal settings
	conf  *perch.Configuration
	queue amboy.Queue
	app   *gimlet.APIApp
	sc    data.Connector
}

func (s *Service) Validate() error {
	var err error

	if s.Environment == nil {
		return errors.New("must specify an environment")
	}

	if s.conf == nil {
		s.conf, err = s.Environment.GetConf()
		if err != nil {
			return errors.Wrap(err, "problem getting configuration")
		}
	}

	if s.queue == nil {
		s.queue, err = s.Environment.GetQueue()
		if err != nil {
			return errors.Wrap(err, "problem getting queue")
		}
		if s.queue == nil {
			return errors.New("no queue defined")
		}
	}

	if s.sc == nil {
		s.sc = data.CreateNewDBConnector(s.Environment)
	}

	if s.app == nil {
		s.app = gimlet.NewApp()
	}

	if s.Port == 0 {
		s.Port = 3500
	}

	if err := s.app.SetPort(s.Port); err != nil {
		return errors.WithStack(err)
	}

	if s.Prefix != "" {
		s.app.SetPrefix(s.Prefix)
	}

	return nil
}

func (s *Service) Start(ctx context.Context) error {
	if s.queue == nil || s.app == nil || s.sc == nil {
		return errors.New("application is not valid")
	}

	s.addMiddleware()
	s.addRoutes()

	if err := s.queue.Start(ctx); err != nil {
		return errors.Wrap(err, "problem starting queue")
	}

	if err := s.app.Resolve(); err != nil {
		return errors.Wrap(err, "problem resolving routes")
	}

	return s.app.Run(ctx)
}

func (s *Service) addMiddleware() {
	s.app.AddMiddleware(gimlet.MakeRecoveryLogger())
	s.app.AddMiddleware(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{perch.AuthHeader, perch.APIKeyHeader, "Content-Type"},
	}))
}

func (s *Service) addRoutes() {
	auth := NewTokenAuthMiddleware(AuthOptions{
		Token:    s.conf.AuthToken,
		Disabled: s.conf.AuthDisabled,
	})

	s.app.AddRoute("/status").Version(1).Get().Handler(s.statusHandler)
	s.app.AddRoute("/measurements").Version(1).Post().Wrap(auth).RouteHandler(makeIngestMeasurement(s.sc))
	s.app.AddRoute("/measurements").Version(1).Get().RouteHandler(makeListMeasurements(s.sc))
	s.app.AddRoute("/measurements/run/{run_id}").Version(1).Get().RouteHandler(makeGetMeasurementsByRunID(s.sc))
	s.app.AddRoute("/metrics").Version(1).Get().RouteHandler(makeGetMetricCatalog(s.sc))
}

type StatusResponse struct {
	Revision string `json:"revision"`
	Database string `json:"database"`
}

// statusHandler reports the build revision and database connectivity.
func (s *Service) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := &StatusResponse{
		Revision: perch.BuildRevision,
		Database: "ok",
	}

	if err := s.sc.CheckHealth(r.Context()); err != nil {
		resp.Database = "unavailable"
		gimlet.WriteJSONInternalError(w, resp)
		return
	}

	gimlet.WriteJSON(w, resp)
}
