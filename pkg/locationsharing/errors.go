package locationsharing

import "errors"

var (
	// ErrNetwork indicates a transport failure or timeout reaching the upstream.
	ErrNetwork = errors.New("location sharing request failed")

	// ErrUnexpectedStatus indicates a non-200 response, usually an invalid session.
	ErrUnexpectedStatus = errors.New("unexpected location sharing response status")

	// ErrMalformed indicates the envelope or the JSON array could not be parsed.
	ErrMalformed = errors.New("malformed location sharing payload")

	// ErrNoLocationData indicates the payload lacks the self-location entry.
	// The usual cause is an expired session cookie.
	ErrNoLocationData = errors.New("no location data in response, cookie probably expired")
)
