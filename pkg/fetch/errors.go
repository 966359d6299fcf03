package fetch

import "fmt"

// UnsafeURLError reports a URL rejected by scheme or host validation.
type UnsafeURLError struct {
	URL    string
	Reason string
}

func (e *UnsafeURLError) Error() string {
	return fmt.Sprintf("unsafe URL %s: %s", e.URL, e.Reason)
}

// ContentTypeError reports a response content type outside the allow-list.
type ContentTypeError struct {
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type: %s", e.ContentType)
}

// TooLargeError reports a download exceeding the configured size cap.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("content exceeds maximum size of %d bytes", e.Limit)
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// NotFoundError reports a missing agent-output execution or result.
type NotFoundError struct {
	ExecutionID string
	Reason      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent output %s: %s", e.ExecutionID, e.Reason)
}
