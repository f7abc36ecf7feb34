package session

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	cm "github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/sirupsen/logrus"
)

func testStores(t *testing.T) map[string]Store {
	db, err := cm.OpenBadger(filepath.Join(t.TempDir(), "badger"), cm.NewTestEntry(t, logrus.InfoLevel, "badger"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"inmem":  NewInmemStore(),
		"badger": NewBadgerStore(db),
	}
}

func newTestSession(id string) *SessionData {
	s := NewSessionData(id, Source)
	s.Version = "0.0.1"
	s.MaxRetries = 3
	s.MaxTimeout = 1000
	s.SourceGatewayDLTSystem = "DLT1"
	s.RecipientGatewayDLTSystem = "DLT2"
	s.AssetProfile = odap.AssetProfile{ExpirationDate: 42}
	s.PayloadProfile = odap.PayloadProfile{AssetProfile: s.AssetProfile}
	return s
}

func TestCreateGet(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestSession("a")
			s.SetHash(odap.TypeInitRequest, "h1")

			if err := store.Create(s); err != nil {
				t.Fatalf("err: %v", err)
			}

			if err := store.Create(s); !cm.IsStore(err, cm.KeyAlreadyExists) {
				t.Fatalf("second Create should fail with KeyAlreadyExists, got %v", err)
			}

			got, err := store.Get("a")
			if err != nil {
				t.Fatalf("err: %v", err)
			}

			if !reflect.DeepEqual(got, s) {
				t.Fatalf("Get should return %#v, not %#v", s, got)
			}

			if _, err := store.Get("missing"); !cm.IsStore(err, cm.KeyNotFound) {
				t.Fatalf("Get(missing) should fail with KeyNotFound, got %v", err)
			}
		})
	}
}

func TestUpdateIsAtomic(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(newTestSession("a")); err != nil {
				t.Fatalf("err: %v", err)
			}

			// A failing update leaves the session untouched.
			err := store.Update("a", func(s *SessionData) error {
				s.LastSequenceNumber = 99
				return fmt.Errorf("rejected")
			})
			if err == nil {
				t.Fatalf("Update should return the error of fn")
			}

			got, _ := store.Get("a")
			if got.LastSequenceNumber != 0 {
				t.Fatalf("failed Update should not mutate the session")
			}

			// Mutating a copy returned by Get does not affect the store.
			got.LastSequenceNumber = 7
			again, _ := store.Get("a")
			if again.LastSequenceNumber != 0 {
				t.Fatalf("Get should return a copy")
			}

			if err := store.Update("missing", func(*SessionData) error { return nil }); !cm.IsStore(err, cm.KeyNotFound) {
				t.Fatalf("Update(missing) should fail with KeyNotFound, got %v", err)
			}
		})
	}
}

func TestConcurrentUpdates(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ids := []string{"a", "b", "c"}
			for _, id := range ids {
				if err := store.Create(newTestSession(id)); err != nil {
					t.Fatalf("err: %v", err)
				}
			}

			const n = 50

			var wg sync.WaitGroup
			for _, id := range ids {
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(id string) {
						defer wg.Done()
						store.Update(id, func(s *SessionData) error {
							s.LastSequenceNumber++
							return nil
						})
					}(id)
				}
			}
			wg.Wait()

			for _, id := range ids {
				s, _ := store.Get(id)
				if s.LastSequenceNumber != n {
					t.Fatalf("session %s should have sequence %d, not %d", id, n, s.LastSequenceNumber)
				}
			}

			got, _ := store.IDs()
			if !reflect.DeepEqual(got, ids) {
				t.Fatalf("IDs should be %v, not %v", ids, got)
			}
		})
	}
}

func TestBadgerStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badger")

	db, err := cm.OpenBadger(path, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	s := newTestSession("persisted")
	s.Advance(StepInitRcvd)
	if err := NewBadgerStore(db).Create(s); err != nil {
		t.Fatalf("err: %v", err)
	}
	db.Close()

	db, err = cm.OpenBadger(path, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer db.Close()

	got, err := NewBadgerStore(db).Get("persisted")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if got.Step != StepInitRcvd {
		t.Fatalf("reloaded session should be at %s, not %s", StepInitRcvd, got.Step)
	}
}

func TestSessionInvariants(t *testing.T) {
	s := newTestSession("x")

	if err := s.SetHash(odap.TypeInitRequest, "h1"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := s.SetHash(odap.TypeInitRequest, "h1"); err != nil {
		t.Fatalf("storing the same hash twice should be accepted")
	}
	if err := s.SetHash(odap.TypeInitRequest, "h2"); err == nil {
		t.Fatalf("overwriting a hash should fail")
	}
	if err := s.SetSignature(odap.TypeInitRequest, "s1"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := s.SetSignature(odap.TypeInitRequest, "s2"); err == nil {
		t.Fatalf("overwriting a signature should fail")
	}

	if err := s.Advance(StepInitAckd); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := s.Advance(StepInitRcvd); err == nil {
		t.Fatalf("steps should only increase")
	}

	c := s.Clone()
	c.Hashes[odap.TypeCommenceRequest] = "h3"
	c.SetReply(odap.TypeInitResponse, "{}")
	c.RecordRollback(RollbackAction{Kind: ActionUnlock, ProofHash: "p"})
	if s.Hash(odap.TypeCommenceRequest) != "" || s.HasRollback(ActionUnlock) {
		t.Fatalf("Clone should be deep")
	}
	if _, ok := s.Reply(odap.TypeInitResponse); ok {
		t.Fatalf("Clone should copy the replies")
	}
	if !c.HasRollback(ActionUnlock) || len(c.RollbackProofs) != 1 {
		t.Fatalf("RecordRollback should append the action and its proof")
	}
}
