package oauth1

import "fmt"

// NetworkError is a transport failure talking to an OAuth1 endpoint.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("oauth1 %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProtocolError is a response the client could not use: a non-2xx status, an
// unparseable body or a missing field.
type ProtocolError struct {
	Endpoint   string
	StatusCode int
	Reason     string
	Body       string
}

func (e *ProtocolError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("oauth1 %s: %s (status %d)", e.Endpoint, e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("oauth1 %s: %s (status %d): %s", e.Endpoint, e.Reason, e.StatusCode, e.Body)
}
