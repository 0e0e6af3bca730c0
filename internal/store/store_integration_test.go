package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/actuarial-tools/asopd/internal/store"
)

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	pgUser := "asopd"
	pgPassword := "asopd"
	pgDB := "asopd"

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase(pgDB),
		tcPostgres.WithUsername(pgUser),
		tcPostgres.WithPassword(pgPassword),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = pgC.Terminate(ctx)
	})

	pgHost, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	pgPort, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, pgHost, pgPort.Port(), pgDB)
}

func TestUploadRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	// NewWithDSN runs schema init; constructing twice proves idempotence.
	if _, err := store.NewWithDSN(ctx, dsn); err != nil {
		t.Fatalf("first NewWithDSN: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("second NewWithDSN: %v", err)
	}

	first, err := st.InsertUpload(ctx, "first.pdf", "first text", "first analysis")
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second, err := st.InsertUpload(ctx, "second.pdf", "second text", "second analysis")
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("ids not strictly increasing: %d then %d", first.ID, second.ID)
	}
	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatalf("created_at ordering does not match id ordering")
	}

	items, err := st.ListUploads(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(items))
	}
	if items[0].ID != second.ID || items[1].ID != first.ID {
		t.Fatalf("list not newest-first: %+v", items)
	}

	rec, err := st.GetUpload(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ExtractedText != "first text" || rec.ASOPAnalysis != "first analysis" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.CreatedAt.After(time.Now().Add(time.Minute)) {
		t.Fatalf("implausible created_at: %v", rec.CreatedAt)
	}

	if _, err := st.GetUpload(ctx, 999999); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentUploads(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("NewWithDSN: %v", err)
	}

	const n = 8
	recs := make([]store.UploadRecord, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recs[i], errs[i] = st.InsertUpload(ctx,
				fmt.Sprintf("memo-%d.pdf", i),
				fmt.Sprintf("text %d", i),
				fmt.Sprintf("analysis %d", i))
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("insert %d: %v", i, errs[i])
		}
		if seen[recs[i].ID] {
			t.Fatalf("duplicate id %d across concurrent inserts", recs[i].ID)
		}
		seen[recs[i].ID] = true
	}

	items, err := st.ListUploads(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != n {
		t.Fatalf("expected %d uploads, got %d", n, len(items))
	}
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if cur.CreatedAt.After(prev.CreatedAt) {
			t.Fatalf("list not newest-first at %d: %v then %v", i, prev.CreatedAt, cur.CreatedAt)
		}
		if cur.CreatedAt.Equal(prev.CreatedAt) && cur.ID >= prev.ID {
			t.Fatalf("id tiebreak not descending at %d: %d then %d", i, prev.ID, cur.ID)
		}
	}
}
