package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/mosaicnetworks/satp/src/wal"
	"github.com/sirupsen/logrus"
)

// Gateway is the read-only view of a gateway served by the Service.
type Gateway interface {
	GetStats() map[string]string
	GetSessions() ([]*session.SessionData, error)
	GetSession(id string) (*session.SessionData, error)
	GetAuditLog(id string) ([]*wal.Entry, error)
}

// Service exposes the status of a gateway over HTTP. All responses are JSON.
type Service struct {
	sync.Mutex

	bindAddress string
	gateway     Gateway
	router      chi.Router
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, g Gateway, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		gateway:     g,
		router:      chi.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering SATP API handlers")
	s.router.Get("/stats", s.makeHandler(s.GetStats))
	s.router.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.makeHandler(s.GetSessions))
		r.Get("/{id}", s.makeHandler(s.GetSession))
		r.Get("/{id}/log", s.makeHandler(s.GetAuditLog))
	})
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// ServeHTTP makes the Service usable as a handler of another server.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving SATP API")

	err := http.ListenAndServe(s.bindAddress, s.router)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.gateway.GetStats())
}

// GetSessions ...
func (s *Service) GetSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.gateway.GetSessions()
	if err != nil {
		s.logger.WithError(err).Error("Listing sessions")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, sessions)
}

// GetSession ...
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sd, err := s.gateway.GetSession(id)
	if err != nil {
		s.fail(w, id, err)
		return
	}

	writeJSON(w, sd)
}

// GetAuditLog ...
func (s *Service) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := s.gateway.GetAuditLog(id)
	if err != nil {
		s.fail(w, id, err)
		return
	}

	writeJSON(w, entries)
}

func (s *Service) fail(w http.ResponseWriter, id string, err error) {
	if common.IsStore(err, common.KeyNotFound) || common.IsStore(err, common.Empty) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	s.logger.WithError(err).Errorf("Retrieving session %s", id)

	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
