package downloader

import (
	"context"
	"errors"
	"io"

	"github.com/tinoosan/tubeconv/internal/data"
)

// ErrNoStream is returned by fetchers that could not produce a stream.
var ErrNoStream = errors.New("no stream available")

// Stream is an open byte stream for one encoding of a source.
// Size is the expected length in bytes, or <= 0 when unknown.
type Stream struct {
	Body io.ReadCloser
	Size int64
}

// Fetcher opens byte streams. Open failing is a synchronous acquisition
// failure; errors while reading Body are transfer failures.
type Fetcher interface {
	Open(ctx context.Context, sourceID string, sel data.Selector) (*Stream, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, sourceID string, sel data.Selector) (*Stream, error)

func (f FetcherFunc) Open(ctx context.Context, sourceID string, sel data.Selector) (*Stream, error) {
	return f(ctx, sourceID, sel)
}
