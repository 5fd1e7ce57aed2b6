package services

import "errors"

var (
	// ErrPollInProgress is returned when a cycle is requested while another one runs.
	ErrPollInProgress = errors.New("a poll cycle is already in progress")

	// ErrNoCredential is returned when polling without a session cookie.
	ErrNoCredential = errors.New("no session cookie configured")
)
