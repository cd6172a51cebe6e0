package engine

import (
	"path/filepath"
	"testing"
)

const testRowSize = 8

func val(n uint32) []byte {
	b := make([]byte, testRowSize)
	b[0] = byte(n)
	b[1] = byte(n >> 8)
	return b
}

func TestOpenInsertFind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	e, err := OpenEngine(path, Create, Options{RowSize: testRowSize, LeafLoad: 4, InnerLoad: 4})
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	defer e.Close()

	status, err := e.Insert(1, val(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if status != Inserted {
		t.Fatalf("status = %v, want Inserted", status)
	}

	v, exists, err := e.Find(1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !exists {
		t.Fatal("expected key 1 to exist")
	}
	if v[0] != 1 {
		t.Errorf("value[0] = %d, want 1", v[0])
	}

	_, exists, err = e.Find(2)
	if err != nil {
		t.Fatalf("Find missing: %v", err)
	}
	if exists {
		t.Fatal("expected key 2 to be absent")
	}
}

func TestDuplicateInsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	e, err := OpenEngine(path, Create, Options{RowSize: testRowSize})
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.Insert(5, val(5)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	status, err := e.Insert(5, val(9))
	if err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}
	if status != DuplicateKey {
		t.Fatalf("status = %v, want DuplicateKey", status)
	}
}

func TestCloseAndReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	e, err := OpenEngine(path, Create, Options{RowSize: testRowSize, LeafLoad: 4, InnerLoad: 4})
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	for i := uint32(0); i < 100; i++ {
		if _, err := e.Insert(i, val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := OpenEngine(path, Open, Options{RowSize: testRowSize, LeafLoad: 4, InnerLoad: 4})
	if err != nil {
		t.Fatalf("reopen OpenEngine: %v", err)
	}
	defer e2.Close()

	keys, err := e2.DumpKeys()
	if err != nil {
		t.Fatalf("DumpKeys: %v", err)
	}
	if len(keys) != 100 {
		t.Fatalf("DumpKeys returned %d keys, want 100", len(keys))
	}
	if err := e2.CheckValid(); err != nil {
		t.Fatalf("CheckValid: %v", err)
	}
}

func TestSelectRangeViaEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	e, err := OpenEngine(path, Create, Options{RowSize: testRowSize, LeafLoad: 4, InnerLoad: 4})
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	defer e.Close()

	for i := uint32(0); i < 50; i++ {
		if _, err := e.Insert(i, val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	cells, err := e.Select(10, 19)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(cells) != 10 {
		t.Fatalf("Select(10,19) returned %d cells, want 10", len(cells))
	}
}

func TestOpenMissingFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	_, err := OpenEngine(path, Open, Options{RowSize: testRowSize})
	if err == nil {
		t.Fatal("expected error opening a missing file")
	}
}
