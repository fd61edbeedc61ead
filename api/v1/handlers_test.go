package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tinoosan/tubeconv/internal/conversion"
	internaldata "github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/downloader"
	"github.com/tinoosan/tubeconv/internal/notify"
	"github.com/tinoosan/tubeconv/internal/repo"
	"github.com/tinoosan/tubeconv/internal/router"
	"github.com/tinoosan/tubeconv/internal/service"
)

const testToken = "testtoken"

type stubTranscoder struct{}

func (stubTranscoder) ExtractAudio(_ context.Context, _, output string) error {
	return os.WriteFile(output, []byte("ID3"), 0o644)
}

func (stubTranscoder) Mux(_ context.Context, _, _, output string) error {
	return os.WriteFile(output, []byte("ftyp"), 0o644)
}

type stubMeta struct{}

func (stubMeta) Metadata(_ context.Context, src string) (internaldata.Metadata, error) {
	return internaldata.Metadata{ID: "dQw4w9WgXcQ", Source: src, Title: "Never", Qualities: []string{"1080p", "720p"}}, nil
}

func payloadFetcher() downloader.Fetcher {
	return downloader.FetcherFunc(func(context.Context, string, internaldata.Selector) (*downloader.Stream, error) {
		return &downloader.Stream{Body: io.NopCloser(strings.NewReader("payload")), Size: 7}, nil
	})
}

func setup(t *testing.T, f downloader.Fetcher) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := notify.NewHub(logger)
	reg := conversion.NewRegistry()
	t.Cleanup(reg.Close)
	svc := service.NewConversion(repo.NewInMemoryConversionRepo(), reg, f, stubMeta{}, stubTranscoder{}, service.Options{
		DataDir:   t.TempDir(),
		Retention: time.Minute,
		Publisher: hub,
		Logger:    logger,
	})
	return router.New(logger, svc, hub, router.Options{APIToken: testToken})
}

func authReq(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+testToken)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if strings.HasPrefix(path, "/v1/") {
		authReq(req)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestConversionLifecycle(t *testing.T) {
	h := setup(t, payloadFetcher())

	rr := do(h, http.MethodGet, "/v1/conversions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rr.Code)
	}
	var list []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list got %v", list)
	}

	rr = do(h, http.MethodPost, "/v1/conversions", `{"source":"dQw4w9WgXcQ","format":"mp3"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 got %d: %s", rr.Code, rr.Body.String())
	}
	var created internaldata.Conversion
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Token == "" || created.State != internaldata.StateStarting {
		t.Fatalf("unexpected record %#v", created)
	}
	if loc := rr.Header().Get("Location"); loc != "/v1/conversions/"+created.Token {
		t.Fatalf("unexpected Location %q", loc)
	}

	deadline := time.Now().Add(2 * time.Second)
	var got internaldata.Conversion
	for time.Now().Before(deadline) {
		rr = do(h, http.MethodGet, "/v1/conversions/"+created.Token, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 got %d", rr.Code)
		}
		got = internaldata.Conversion{}
		if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.State == internaldata.StateCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got.State != internaldata.StateCompleted {
		t.Fatalf("conversion never completed: %#v", got)
	}

	rr = do(h, http.MethodGet, "/files/"+created.Token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rr.Code)
	}
	if rr.Body.String() != "ID3" {
		t.Fatalf("unexpected file body %q", rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, created.Token+".mp3") {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}

	rr = do(h, http.MethodGet, "/v1/conversions?fingerprint="+created.Fingerprint, "")
	list = nil
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one match got %v", list)
	}
}

func TestCreateConversionRejects(t *testing.T) {
	h := setup(t, payloadFetcher())

	cases := []struct {
		name string
		body string
		ct   string
		want int
	}{
		{"unknown field", `{"source":"dQw4w9WgXcQ","format":"mp3","extra":1}`, "application/json", http.StatusBadRequest},
		{"trailing data", `{"source":"dQw4w9WgXcQ","format":"mp3"} {}`, "application/json", http.StatusBadRequest},
		{"content type", `{"source":"dQw4w9WgXcQ","format":"mp3"}`, "text/plain", http.StatusUnsupportedMediaType},
		{"bad format", `{"source":"dQw4w9WgXcQ","format":"flac"}`, "application/json", http.StatusBadRequest},
		{"mp4 without quality", `{"source":"dQw4w9WgXcQ","format":"mp4"}`, "application/json", http.StatusBadRequest},
		{"bad source", `{"source":"ftp://example.com/x","format":"mp3"}`, "application/json", http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/conversions", strings.NewReader(c.body))
			authReq(req)
			req.Header.Set("Content-Type", c.ct)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != c.want {
				t.Fatalf("expected status %d got %d: %s", c.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestUnknownToken(t *testing.T) {
	h := setup(t, payloadFetcher())

	if rr := do(h, http.MethodGet, "/v1/conversions/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/files/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rr.Code)
	}
}

func TestFileNotReady(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	h := setup(t, downloader.FetcherFunc(func(context.Context, string, internaldata.Selector) (*downloader.Stream, error) {
		return &downloader.Stream{Body: r, Size: 10}, nil
	}))

	rr := do(h, http.MethodPost, "/v1/conversions", `{"source":"dQw4w9WgXcQ","format":"mp3"}`)
	var created internaldata.Conversion
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr := do(h, http.MethodGet, "/files/"+created.Token, ""); rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rr.Code)
	}
}

func TestGetSource(t *testing.T) {
	h := setup(t, payloadFetcher())

	if rr := do(h, http.MethodGet, "/v1/sources", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/v1/sources?source=not+a+video", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rr.Code)
	}

	rr := do(h, http.MethodGet, "/v1/sources?source=dQw4w9WgXcQ", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rr.Code)
	}
	var md internaldata.Metadata
	if err := json.NewDecoder(rr.Body).Decode(&md); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if md.Title != "Never" || len(md.Qualities) != 2 {
		t.Fatalf("unexpected metadata %#v", md)
	}
	if md.Source != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("source not normalized: %q", md.Source)
	}
}
