package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinoosan/tubeconv/internal/data"
)

const probeJSON = `{
  "id": "dQw4w9WgXcQ",
  "title": "Some video",
  "thumbnail": "https://img.example/t.jpg",
  "duration": 212,
  "formats": [
    {"format_id": "140", "url": "https://a/140", "ext": "m4a", "protocol": "https", "acodec": "mp4a.40.2", "vcodec": "none", "abr": 129.5},
    {"format_id": "251", "url": "https://a/251", "ext": "webm", "protocol": "https", "acodec": "opus", "vcodec": "none", "abr": 135.1},
    {"format_id": "136", "url": "https://a/136", "ext": "mp4", "protocol": "https", "acodec": "none", "vcodec": "avc1", "height": 720, "format_note": "720p", "tbr": 1500},
    {"format_id": "298", "url": "https://a/298", "ext": "mp4", "protocol": "https", "acodec": "none", "vcodec": "avc1", "height": 720, "format_note": "720p60", "tbr": 2500},
    {"format_id": "247", "url": "https://a/247", "ext": "webm", "protocol": "https", "acodec": "none", "vcodec": "vp9", "height": 720, "tbr": 3000},
    {"format_id": "137", "url": "https://a/137", "ext": "mp4", "protocol": "https", "acodec": "none", "vcodec": "avc1", "height": 1080, "tbr": 4000},
    {"format_id": "hls", "url": "https://a/hls", "ext": "mp4", "protocol": "m3u8_native", "acodec": "none", "vcodec": "avc1", "height": 2160, "tbr": 9000}
  ]
}`

func mustInfo(t *testing.T) *Info {
	t.Helper()
	info, err := ParseInfo([]byte(probeJSON))
	if err != nil {
		t.Fatalf("ParseInfo: %v", err)
	}
	return info
}

func TestParseInfo(t *testing.T) {
	info := mustInfo(t)
	if info.ID != "dQw4w9WgXcQ" || info.Title != "Some video" || len(info.Formats) != 7 {
		t.Fatalf("info = %#v", info)
	}
	if _, err := ParseInfo([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if _, err := ParseInfo([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSelect(t *testing.T) {
	info := mustInfo(t)
	cases := []struct {
		name string
		sel  data.Selector
		want string
	}{
		{"best audio", data.Selector{Kind: data.KindAudio}, "251"},
		{"720p mp4", data.Selector{Kind: data.KindVideo, Quality: "720p", Container: "mp4"}, "298"},
		{"720p60 note", data.Selector{Kind: data.KindVideo, Quality: "720p60", Container: "mp4"}, "298"},
		{"any video", data.Selector{Kind: data.KindVideo}, "137"},
		{"720p any container", data.Selector{Kind: data.KindVideo, Quality: "720p"}, "247"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Select(info.Formats, c.sel)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if got.ID != c.want {
				t.Fatalf("got %s, want %s", got.ID, c.want)
			}
		})
	}

	_, err := Select(info.Formats, data.Selector{Kind: data.KindVideo, Quality: "2160p", Container: "mp4"})
	if !errors.Is(err, ErrNoFormat) {
		t.Fatalf("streaming-only format must not be selected: %v", err)
	}
}

func TestQualities(t *testing.T) {
	got := Qualities(mustInfo(t))
	want := []string{"1080p", "720p"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("qualities = %v, want %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	ok := map[string]string{
		"dQw4w9WgXcQ": WatchURL + "dQw4w9WgXcQ",
		" https://www.youtube.com/watch?v=dQw4w9WgXcQ ": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"http://youtu.be/dQw4w9WgXcQ":                  "http://youtu.be/dQw4w9WgXcQ",
	}
	for in, want := range ok {
		got, err := Normalize(in)
		if err != nil || got != want {
			t.Errorf("Normalize(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "ftp://host/x", "https://", "short", "file:///etc/passwd"} {
		if _, err := Normalize(in); !errors.Is(err, data.ErrInvalidSource) {
			t.Errorf("Normalize(%q) err = %v", in, err)
		}
	}
}

func TestFetcherOpen(t *testing.T) {
	var (
		mu        sync.Mutex
		gotHeader string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotHeader = r.Header.Get("User-Agent")
		mu.Unlock()
		switch r.URL.Path {
		case "/audio":
			w.Write([]byte("audio-bytes"))
		default:
			http.Error(w, "nope", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	var probes atomic.Int32
	p := ProberFunc(func(ctx context.Context, src string) (*Info, error) {
		probes.Add(1)
		return &Info{ID: "x", Formats: []Format{
			{ID: "a", URL: srv.URL + "/audio", Ext: "m4a", ACodec: "aac", VCodec: "none", ABR: 128, Headers: map[string]string{"User-Agent": "tubeconv-test"}},
			{ID: "v", URL: srv.URL + "/video", Ext: "mp4", VCodec: "avc1", Height: 720, TBR: 1000, Filesize: 42},
		}}, nil
	})
	f := NewFetcher(p, srv.Client(), nil)

	s, err := f.Open(context.Background(), "src", data.Selector{Kind: data.KindAudio})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(s.Body)
	s.Body.Close()
	if string(body) != "audio-bytes" || s.Size != int64(len("audio-bytes")) {
		t.Fatalf("stream = %q size %d", body, s.Size)
	}
	mu.Lock()
	ua := gotHeader
	mu.Unlock()
	if ua != "tubeconv-test" {
		t.Fatalf("format headers not forwarded: %q", ua)
	}

	if _, err := f.Open(context.Background(), "src", data.Selector{Kind: data.KindVideo, Quality: "720p", Container: "mp4"}); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := f.Open(context.Background(), "src", data.Selector{Kind: data.KindVideo, Quality: "1080p"}); !errors.Is(err, ErrNoFormat) {
		t.Fatalf("err = %v", err)
	}
	if n := probes.Load(); n != 1 {
		t.Fatalf("probes = %d, want 1", n)
	}
}

func TestFetcherCollapsesConcurrentProbes(t *testing.T) {
	release := make(chan struct{})
	var probes atomic.Int32
	p := ProberFunc(func(ctx context.Context, src string) (*Info, error) {
		probes.Add(1)
		<-release
		return &Info{ID: "x"}, nil
	})
	f := NewFetcher(p, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Info(context.Background(), "src"); err != nil {
				t.Errorf("Info: %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()
	if n := probes.Load(); n > 2 || n < 1 {
		t.Fatalf("probes = %d", n)
	}
	if _, err := f.Info(context.Background(), "src"); err != nil {
		t.Fatalf("Info: %v", err)
	}
	before := probes.Load()
	f.Info(context.Background(), "src")
	if probes.Load() != before {
		t.Fatalf("cached probe not reused")
	}
}

func TestFetcherSharedLookupSurvivesCallerCancel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	p := ProberFunc(func(ctx context.Context, src string) (*Info, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Info{ID: "x", Title: "shared"}, nil
	})
	f := NewFetcher(p, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.Metadata(ctx, "src")
		firstErr <- err
	}()
	<-entered

	type result struct {
		info *Info
		err  error
	}
	second := make(chan result, 1)
	go func() {
		info, err := f.Info(context.Background(), "src")
		second <- result{info, err}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller err = %v, want context.Canceled", err)
	}
	close(release)

	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("second caller err = %v", r.err)
		}
		if r.info.Title != "shared" {
			t.Fatalf("info = %+v", r.info)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("second caller never returned")
	}
}

func TestFetcherSweepsExpiredEntries(t *testing.T) {
	p := ProberFunc(func(ctx context.Context, src string) (*Info, error) {
		return &Info{ID: src}, nil
	})
	f := NewFetcher(p, nil, nil)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }

	for i := 0; i < 50; i++ {
		if _, err := f.Info(context.Background(), fmt.Sprintf("src-%d", i)); err != nil {
			t.Fatalf("Info: %v", err)
		}
	}
	if n := f.cacheLen(); n != 50 {
		t.Fatalf("cache len = %d, want 50", n)
	}

	clock = clock.Add(DefaultProbeTTL + time.Second)
	if _, err := f.Info(context.Background(), "fresh"); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if n := f.cacheLen(); n != 1 {
		t.Fatalf("cache len = %d, want 1 after expiry", n)
	}

	clock = clock.Add(DefaultProbeTTL + time.Second)
	if _, err := f.Info(context.Background(), "fresh"); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if n := f.cacheLen(); n != 1 {
		t.Fatalf("cache len = %d, want 1 after refresh", n)
	}
}

func TestFetcherProbeError(t *testing.T) {
	want := errors.New("video unavailable")
	f := NewFetcher(ProberFunc(func(context.Context, string) (*Info, error) { return nil, want }), nil, nil)
	if _, err := f.Metadata(context.Background(), "src"); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}
