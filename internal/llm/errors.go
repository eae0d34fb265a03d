package llm

import "errors"

var (
	// ErrGenerationFailed indicates the model call failed after retries.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrMalformedReformulation indicates the reformulation model did not
	// produce the expected number of query variants.
	ErrMalformedReformulation = errors.New("malformed reformulation output")
)
