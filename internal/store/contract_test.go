package store_test

import (
	"path/filepath"
	"testing"

	"github.com/roach88/medtrack/internal/store"
	"github.com/roach88/medtrack/internal/store/storetest"
)

func TestSQLiteContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.RecordStore {
		s, err := store.Open(filepath.Join(t.TempDir(), "contract.db"))
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
