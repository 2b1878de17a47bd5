package db

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hpungsan/skumate/internal/config"
)

func TestInit(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", ".skumate")

	db, err := Init(base)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(base, FileName)); err != nil {
		t.Errorf("database file: %v", err)
	}
	for _, dir := range []string{base, filepath.Join(base, "exports")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if runtime.GOOS != "windows" && info.Mode().Perm() != 0700 {
			t.Errorf("%s mode = %o, want 700", dir, info.Mode().Perm())
		}
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='kv'").Scan(&name); err != nil {
		t.Fatalf("kv table not found: %v", err)
	}
}

func TestInit_SchemaVersion(t *testing.T) {
	dir := t.TempDir()

	for i := range 2 {
		db, err := Init(dir)
		if err != nil {
			t.Fatalf("Init() #%d error = %v", i+1, err)
		}
		v, err := SchemaVersion(db)
		db.Close()
		if err != nil {
			t.Fatalf("SchemaVersion() error = %v", err)
		}
		if v != CurrentSchemaVersion {
			t.Errorf("Init() #%d: schema version = %d, want %d", i+1, v, CurrentSchemaVersion)
		}
	}
}

func TestInit_SkipsAppliedMigrations(t *testing.T) {
	dir := t.TempDir()
	db, err := Init(dir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	// A newer schema written by a later build is left alone.
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	db.Close()

	db, err = Init(dir)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer db.Close()
	if v, _ := SchemaVersion(db); v != 99 {
		t.Errorf("schema version = %d, want 99", v)
	}
}

func TestConfigurePool(t *testing.T) {
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	ConfigurePool(db, nil)
	ConfigurePool(db, &config.Config{DBMaxOpenConns: 1, DBMaxIdleConns: 1})

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}
