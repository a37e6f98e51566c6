package llm

import "errors"

var (
	ErrUnauthorized = errors.New("llm unauthorized")
	ErrForbidden    = errors.New("llm forbidden for model")
	ErrRateLimited  = errors.New("llm rate limited")
	ErrUnavailable  = errors.New("llm unavailable")
)
