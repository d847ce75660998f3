package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/appointment"
	"github.com/Alexcyl0107/clinique/internal/config"
)

func TestOpenMemory(t *testing.T) {
	repo, closeFn, err := Open(context.Background(), config.Config{StoreDriver: config.StoreMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if _, ok := repo.(*appointment.MemoryRepository); !ok {
		t.Fatalf("expected a memory repository, got %T", repo)
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinique.db")
	cfg := config.Config{StoreDriver: config.StoreSQLite, SQLitePath: path}

	repo, closeFn, err := Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	closeFn()

	// reopening runs the migration again on an existing file
	repo, closeFn, err = Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeFn()
	if _, ok := repo.(*appointment.GormRepository); !ok {
		t.Fatalf("expected a gorm repository, got %T", repo)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, _, err := Open(context.Background(), config.Config{StoreDriver: "mongo"}, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}
