package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "slots", "editor.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_PutAndGet(t *testing.T) {
	s := testSQLiteStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "autosave", []byte{0xa1, 0x00, 0xff}); err != nil {
		t.Fatal(err)
	}
	data, err := s.Get(ctx, "autosave")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string([]byte{0xa1, 0x00, 0xff}) {
		t.Errorf("got %x", data)
	}
}

func TestSQLiteStore_PutOverwritesAndBumpsVersion(t *testing.T) {
	s := testSQLiteStore(t)
	ctx := context.Background()

	for _, v := range []string{"one", "two", "three"} {
		if err := s.Put(ctx, "autosave", []byte(v)); err != nil {
			t.Fatal(err)
		}
	}
	data, _ := s.Get(ctx, "autosave")
	if string(data) != "three" {
		t.Errorf("got %q, want three", data)
	}
	infos, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Version != 3 || infos[0].Size != 5 {
		t.Errorf("unexpected info: %+v", infos)
	}
	if infos[0].UpdatedAt.IsZero() {
		t.Error("updatedAt not set")
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := testSQLiteStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := testSQLiteStore(t)
	ctx := context.Background()

	s.Put(ctx, "a", []byte("1"))
	s.Put(ctx, "b", []byte("2"))
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	infos, _ := s.List(ctx)
	if len(infos) != 1 || infos[0].Key != "b" {
		t.Errorf("unexpected slots: %+v", infos)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Put(ctx, "autosave", []byte("persisted"))
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	data, err := s.Get(ctx, "autosave")
	if err != nil || string(data) != "persisted" {
		t.Errorf("after reopen: %q, %v", data, err)
	}
}

func TestSQLiteStore_Memory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	s.Put(ctx, "k", []byte("v"))
	if data, err := s.Get(ctx, "k"); err != nil || string(data) != "v" {
		t.Errorf("got %q, %v", data, err)
	}
}
