package storage

import (
	"bytes"
	"errors"
	"testing"
)

func runDatabaseSuite(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := db.Has([]byte("missing"))
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if ok {
		t.Fatal("Has reported a missing key as present")
	}

	if err := db.Put([]byte("alpha"), []byte("one")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value, err := db.Get([]byte("alpha"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(value, []byte("one")) {
		t.Fatalf("expected %q, got %q", "one", value)
	}
	ok, err = db.Has([]byte("alpha"))
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !ok {
		t.Fatal("Has missed a stored key")
	}

	// Overwrites replace the stored value.
	if err := db.Put([]byte("alpha"), []byte("two")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value, err = db.Get([]byte("alpha"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(value, []byte("two")) {
		t.Fatalf("expected %q, got %q", "two", value)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	runDatabaseSuite(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("original")
	if err := db.Put([]byte("key"), value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value[0] = 'X'

	got, err := db.Get([]byte("key"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("original")) {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}

	// Mutating a returned value must not leak back into the store either.
	got[0] = 'Y'
	again, err := db.Get([]byte("key"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(again, []byte("original")) {
		t.Fatalf("returned value aliased store buffer: %q", again)
	}
}

func TestLevelDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("NewLevelDB: %v", err)
	}
	defer db.Close()
	runDatabaseSuite(t, db)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("NewLevelDB: %v", err)
	}
	if err := db.Put([]byte("durable"), []byte("yes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	db.Close()

	db, err = NewLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	value, err := db.Get([]byte("durable"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(value, []byte("yes")) {
		t.Fatalf("expected %q, got %q", "yes", value)
	}
}
