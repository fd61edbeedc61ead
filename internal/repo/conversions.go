package repo

import (
	"context"

	"github.com/tinoosan/tubeconv/internal/data"
)

// ConversionRepo stores the history of conversions. Rows outlive the
// supervisors that produced them.
type ConversionRepo interface {
	ConversionReader
	ConversionWriter
}

type ConversionReader interface {
	List(ctx context.Context) (data.Conversions, error)
	Get(ctx context.Context, token string) (*data.Conversion, error)
	// ListByFingerprint returns every conversion of the same request, oldest first.
	ListByFingerprint(ctx context.Context, fprint string) (data.Conversions, error)
}

type ConversionWriter interface {
	Add(ctx context.Context, c *data.Conversion) (*data.Conversion, error)
	// Update applies mutate to the stored row and returns the result.
	Update(ctx context.Context, token string, mutate func(*data.Conversion) error) (*data.Conversion, error)
}
