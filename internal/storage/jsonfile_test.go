package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sampleState struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	want := sampleState{Name: "ping_budget", Count: 5}
	if err := WriteJSON(path, want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var got sampleState
	ok, err := ReadJSON(path, &got)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if !ok {
		t.Fatalf("ReadJSON reported not-ok for an existing file")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadJSON_MissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	var got sampleState
	ok, err := ReadJSON(path, &got)
	if err != nil {
		t.Fatalf("ReadJSON on missing file returned error: %v", err)
	}
	if ok {
		t.Fatalf("ReadJSON reported ok for a missing file")
	}
}

func TestAppendJSONL_AppendsOneLinePerCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	for i := 0; i < 3; i++ {
		if err := AppendJSONL(path, sampleState{Name: "event", Count: i}); err != nil {
			t.Fatalf("AppendJSONL #%d: %v", i, err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read history file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), data)
	}
}
