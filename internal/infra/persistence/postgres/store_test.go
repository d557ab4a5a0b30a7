package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"unitcore/pkg/domain"
)

const widgetKind domain.EntityType = "widget"

type widget struct {
	id      string
	version int64
	name    string
}

func (w *widget) Kind() domain.EntityType { return widgetKind }
func (w *widget) ID() string              { return w.id }
func (w *widget) Version() int64          { return w.version }
func (w *widget) BindIdentity(id string)  { w.id = id }
func (w *widget) SetVersion(v int64)      { w.version = v }
func (w *widget) Fields() (map[string]any, error) {
	return map[string]any{"name": w.name}, nil
}

func TestValidSavepointName(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"uow_sp_1", true},
		{"sp2", true},
		{"", false},
		{"Sp1", false},
		{"sp 1; DROP TABLE entities", false},
	}
	for _, c := range cases {
		if got := validSavepointName(c.in); got != c.want {
			t.Fatalf("validSavepointName(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestNewStoreOpenFailure(t *testing.T) {
	boom := errors.New("driver unavailable")
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return nil, boom
	})
	defer restore()

	_, err := NewStore(context.Background(), "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected open failure, got %v", err)
	}
}

// TestPostgresIntegration exercises the adapter against a live database. It
// is skipped unless UNITCORE_POSTGRES_DSN points at one.
func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("UNITCORE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("UNITCORE_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	id, err := tx.Insert(ctx, &widget{name: "alpha"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Savepoint(ctx, "uow_sp_1"); err != nil {
		t.Fatalf("savepoint: %v", err)
	}
	if _, err := tx.Insert(ctx, &widget{name: "discard"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.RollbackTo(ctx, "uow_sp_1"); err != nil {
		t.Fatalf("rollback to: %v", err)
	}
	if err := tx.Update(ctx, &widget{id: id, version: 1, name: "beta"}, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	fields, version, ok, err := store.Get(ctx, widgetKind, id)
	if err != nil || !ok {
		t.Fatalf("get: %v ok=%v", err, ok)
	}
	if version != 2 || fields["name"] != "beta" {
		t.Fatalf("row = %v v%d", fields, version)
	}

	tx2, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = tx2.Update(ctx, &widget{id: id, version: 1, name: "stale"}, 1)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if err := tx2.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	tx3, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx3.Delete(ctx, widgetKind, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tx3.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
