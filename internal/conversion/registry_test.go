package conversion

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tinoosan/tubeconv/internal/data"
)

func newIdle(t *testing.T, token string) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	v := AudioVariant(&stubTranscoder{}, filepath.Join(dir, token+".audio"))
	return New(context.Background(), token, "abc", v, filepath.Join(dir, token+".mp3"), nil, Options{})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a := newIdle(t, "a")

	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(newIdle(t, "a")); !errors.Is(err, ErrTokenInUse) {
		t.Fatalf("duplicate register err = %v", err)
	}
	if got, ok := reg.Lookup("a"); !ok || got != a {
		t.Fatalf("lookup mismatch")
	}

	n, err := reg.Replay("a")
	if err != nil || n.Signal != data.SignalStarting {
		t.Fatalf("replay = %#v, %v", n, err)
	}
	if _, err := reg.Replay("missing"); !errors.Is(err, data.ErrNotFound) {
		t.Fatalf("replay missing err = %v", err)
	}

	reg.Remove("a")
	reg.Remove("a")
	if reg.Len() != 0 {
		t.Fatalf("len = %d", reg.Len())
	}
}

func TestRegistryCloseFailsLiveConversions(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}
	dir := t.TempDir()
	var s *Supervisor
	s = New(context.Background(), "a", "abc", AudioVariant(&stubTranscoder{}, filepath.Join(dir, "a.audio")), filepath.Join(dir, "a.mp3"), nil, Options{
		Publisher: rec,
		OnRemove:  func() { reg.Remove(s.Token()) },
	})
	reg.Register(s)

	reg.Close()
	if reg.Len() != 0 {
		t.Fatalf("len after close = %d", reg.Len())
	}
	if s.State() != data.StateFailed {
		t.Fatalf("state = %s", s.State())
	}
	if rec.count(data.SignalDownloadError) != 1 {
		t.Fatalf("expected one download_error, got %#v", rec.all())
	}
}
