package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/mosaicnetworks/satp/src/wal"
	"github.com/sirupsen/logrus"
)

type fakeGateway struct {
	store *session.InmemStore
	log   *wal.InmemLog
}

func (f *fakeGateway) GetStats() map[string]string {
	return map[string]string{"moniker": "gw1"}
}

func (f *fakeGateway) GetSessions() ([]*session.SessionData, error) {
	ids, err := f.store.IDs()
	if err != nil {
		return nil, err
	}
	res := []*session.SessionData{}
	for _, id := range ids {
		s, err := f.store.Get(id)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (f *fakeGateway) GetSession(id string) (*session.SessionData, error) {
	return f.store.Get(id)
}

func (f *fakeGateway) GetAuditLog(id string) ([]*wal.Entry, error) {
	return f.log.Query(id)
}

func newTestService(t *testing.T) *Service {
	g := &fakeGateway{
		store: session.NewInmemStore(),
		log:   wal.NewInmemLog(),
	}

	if err := g.store.Create(session.NewSessionData("s1", session.Source)); err != nil {
		t.Fatal(err)
	}
	e := wal.NewEntry("s1", odap.PhaseInitialization, odap.StageInit, 1, nil)
	if err := g.log.Append(e); err != nil {
		t.Fatal(err)
	}

	return NewService("", g, common.NewTestEntry(t, logrus.DebugLevel, "service"))
}

func get(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetStats(t *testing.T) {
	s := newTestService(t)

	rec := get(t, s, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stats, map[string]string{"moniker": "gw1"}) {
		t.Fatalf("unexpected stats %v", stats)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("CORS header missing")
	}
}

func TestGetSessions(t *testing.T) {
	s := newTestService(t)

	var sessions []*session.SessionData
	if err := json.NewDecoder(get(t, s, "/sessions").Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Fatalf("unexpected sessions %v", sessions)
	}

	var sd session.SessionData
	if err := json.NewDecoder(get(t, s, "/sessions/s1").Body).Decode(&sd); err != nil {
		t.Fatal(err)
	}
	if sd.ID != "s1" || sd.Role != session.Source {
		t.Fatalf("unexpected session %v", sd)
	}

	var entries []*wal.Entry
	if err := json.NewDecoder(get(t, s, "/sessions/s1/log").Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].Is(odap.PhaseInitialization, odap.StageInit) {
		t.Fatalf("unexpected audit entries %v", entries)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestService(t)

	for _, path := range []string{"/sessions/unknown", "/sessions/s1/other", "/other"} {
		if rec := get(t, s, path); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
