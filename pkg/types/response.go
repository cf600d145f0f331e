package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// Page wraps one slice of a cursor-paginated listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	// Retryable tells clients the same request may succeed later, e.g. after
	// a dependency outage.
	Retryable bool `json:"retryable,omitempty"`
	// RequestID echoes X-Request-Id so support can find the log lines.
	RequestID string `json:"requestId,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
