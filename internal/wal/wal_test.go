package wal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLogPutRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, SyncAlways, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := w.LogPut("k1", []byte("v1")); err != nil {
		t.Fatalf("log put: %v", err)
	}
	if err := w.LogPut("k2", []byte("v2")); err != nil {
		t.Fatalf("log put: %v", err)
	}
	if err := w.LogDel("k1"); err != nil {
		t.Fatalf("log del: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var recs []Record
	if err := Recover(dir, func(r Record) error {
		recs = append(recs, r)
		return nil
	}); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Op != OpPut || recs[0].Key != "k1" || !bytes.Equal(recs[0].Value, []byte("v1")) {
		t.Errorf("rec0 = %+v", recs[0])
	}
	if recs[2].Op != OpDel || recs[2].Key != "k1" {
		t.Errorf("rec2 = %+v", recs[2])
	}
}

func TestRecoverTornTailDiscardedSilently(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, SyncAlways, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.LogPut("k1", []byte("v1")); err != nil {
		t.Fatalf("log put: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	// A torn header: op byte + partial key length, simulating a crash
	// mid-write.
	if _, err := f.Write([]byte{byte(OpPut), 0x01, 0x00}); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	f.Close()

	var count int
	if err := Recover(dir, func(Record) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("recover should discard torn tail silently, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 well-formed record before the torn tail, got %d", count)
	}
}

func TestRecoverMalformedHeaderIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte{0x07, 0, 0, 0, 0}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := Recover(dir, func(Record) error { return nil })
	if err != ErrCorrupt {
		t.Errorf("expected ErrCorrupt for an unknown opcode, got %v", err)
	}
}

func TestCompactRewritesToOnePutPerKey(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, SyncAlways, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := w.LogPut("churn", []byte("v")); err != nil {
			t.Fatalf("log put: %v", err)
		}
	}

	if err := w.Compact([]Record{{Op: OpPut, Key: "churn", Value: []byte("final")}}); err != nil {
		t.Fatalf("compact: %v", err)
	}

	var recs []Record
	if err := Recover(dir, func(r Record) error {
		recs = append(recs, r)
		return nil
	}); err != nil {
		t.Fatalf("recover after compact: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record after compaction, got %d", len(recs))
	}
	if !bytes.Equal(recs[0].Value, []byte("final")) {
		t.Errorf("got %q, want final", recs[0].Value)
	}

	// Compact must leave the log writable for further appends.
	if err := w.LogPut("after-compact", []byte("v")); err != nil {
		t.Fatalf("log put after compact: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
