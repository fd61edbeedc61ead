package v1

import "errors"

var (
	ErrRequestCtx  = errors.New("conversion request missing in context")
	ErrContentType = errors.New("Content-Type must be application/json")
	ErrSourceParam = errors.New("source query parameter is required")
)
