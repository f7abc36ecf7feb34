package wal

import (
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	cm "github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/odap"
)

func testLogs(t *testing.T) map[string]Log {
	db, err := cm.OpenBadger(filepath.Join(t.TempDir(), "badger"), nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Log{
		"inmem":  NewInmemLog(),
		"badger": NewBadgerLog(db),
	}
}

func TestAppendQuery(t *testing.T) {
	for name, log := range testLogs(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := log.Last("s1"); !cm.IsStore(err, cm.Empty) {
				t.Fatalf("Last on an empty session should fail with Empty, got %v", err)
			}

			steps := []struct {
				phase odap.Phase
				stage odap.Stage
			}{
				{odap.PhaseInitialization, odap.StageExec},
				{odap.PhaseInitialization, odap.StageDone},
				{odap.PhaseInitialization, odap.StageAck},
				{odap.PhaseCommence, odap.StageExec},
			}

			for i, s := range steps {
				e := NewEntry("s1", s.phase, s.stage, int64(i), []byte(`{"step":1}`))
				if err := log.Append(e); err != nil {
					t.Fatalf("err: %v", err)
				}
				if e.Index != i {
					t.Fatalf("entry %d should get index %d, got %d", i, i, e.Index)
				}
			}

			log.Append(NewEntry("s2", odap.PhaseInitialization, odap.StageInit, 0, nil))

			entries, err := log.Query("s1")
			if err != nil {
				t.Fatalf("err: %v", err)
			}

			if len(entries) != len(steps) {
				t.Fatalf("Query should return %d entries, not %d", len(steps), len(entries))
			}

			for i, e := range entries {
				if e.Index != i || !e.Is(steps[i].phase, steps[i].stage) {
					t.Fatalf("entry %d is %+v", i, e)
				}
			}

			if string(entries[0].Snapshot) != `{"step":1}` {
				t.Fatalf("snapshot should survive storage, got %s", entries[0].Snapshot)
			}

			last, err := log.Last("s1")
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if !last.Is(odap.PhaseCommence, odap.StageExec) {
				t.Fatalf("Last should be commence/exec, not %s/%s", last.Phase, last.Stage)
			}

			sessions, _ := log.Sessions()
			if !reflect.DeepEqual(sessions, []string{"s1", "s2"}) {
				t.Fatalf("Sessions should be [s1 s2], not %v", sessions)
			}

			if !Contains(entries, odap.PhaseInitialization, odap.StageAck) {
				t.Fatalf("Contains should find validate/ack")
			}
			if Contains(entries, odap.PhaseComplete, odap.StageDone) {
				t.Fatalf("Contains should not find complete/done")
			}

			stages := Stages(entries)
			expected := []odap.Stage{odap.StageExec, odap.StageDone, odap.StageAck}
			if !reflect.DeepEqual(stages[odap.PhaseInitialization], expected) {
				t.Fatalf("Stages should be %v, not %v", expected, stages[odap.PhaseInitialization])
			}
		})
	}
}

func TestConcurrentAppend(t *testing.T) {
	for name, log := range testLogs(t) {
		t.Run(name, func(t *testing.T) {
			const n = 40

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					log.Append(NewEntry("s", odap.PhaseLock, odap.StageInit, 0, nil))
				}()
			}
			wg.Wait()

			entries, _ := log.Query("s")
			if len(entries) != n {
				t.Fatalf("expected %d entries, got %d", n, len(entries))
			}
			for i, e := range entries {
				if e.Index != i {
					t.Fatalf("indexes should be contiguous, entry %d has index %d", i, e.Index)
				}
			}
		})
	}
}
