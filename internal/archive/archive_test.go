package archive

import (
	"errors"
	"testing"
	"time"
)

func TestFSStore_PutGetRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	path := "provider-requests/1/2/2026-08-27/abc/request.body"
	want := []byte(`{"messages":[]}`)
	if err := store.Put(path, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Get = %q, want %q", got, want)
	}
}

func TestFSStore_GetMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	_, err = store.Get("provider-requests/1/2/2026-08-27/nope/request.body")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestFSStore_PutOverwrites(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	path := "work-sessions/1/5/2026-08-27/combined.json"
	if err := store.Put(path, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(path, []byte("v2")); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("Get = %q, want v2", got)
	}
}

func TestFSStore_DeleteMissingIsNoop(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := store.Delete("provider-requests/1/2/2026-08-27/gone/request.body"); err != nil {
		t.Errorf("Delete missing = %v, want nil", err)
	}
}

func TestFSStore_RejectsEscapingPaths(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	for _, path := range []string{"../outside", "/etc/passwd", "a/../../b"} {
		if err := store.Put(path, []byte("x")); err == nil {
			t.Errorf("Put(%q) succeeded, want error", path)
		}
	}
}

func TestPaths_Scheme(t *testing.T) {
	received := time.Date(2026, 8, 27, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"request meta", RequestMetaPath(7, 3, received, "req-1"), "provider-requests/7/3/2026-08-27/req-1/request.json"},
		{"request body", RequestBodyPath(7, 3, received, "req-1"), "provider-requests/7/3/2026-08-27/req-1/request.body"},
		{"response meta", ResponseMetaPath(7, 3, received, "req-1"), "provider-requests/7/3/2026-08-27/req-1/response.json"},
		{"response body", ResponseBodyPath(7, 3, received, "req-1"), "provider-requests/7/3/2026-08-27/req-1/response.body"},
		{"combined", CombinedPath(7, 42, received), "work-sessions/7/42/2026-08-27/combined.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDateSegment_UsesUTC(t *testing.T) {
	// 23:30 on Aug 27 in UTC-5 is already Aug 28 in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2026, 8, 27, 23, 30, 0, 0, loc)
	if got := DateSegment(ts); got != "2026-08-28" {
		t.Errorf("DateSegment = %q, want 2026-08-28", got)
	}
}
