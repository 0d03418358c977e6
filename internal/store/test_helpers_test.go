package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/testutil"
)

var (
	t0    = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	price = ir.GroupKey{Model: "price", ParentID: "product-1"}
)

// createTestStore creates a file-backed store with sequential ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequentialIDs("")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ids(records []ir.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
