// Package common defines shared constants and sentinel errors used across
// client and server layers of Lantern. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Stream / framing errors. Both are fatal to the connection.
	ErrStreamClosed   = errors.New("stream closed")
	ErrFrameTooLarge  = errors.New("frame exceeds size limit")
	ErrMalformedFrame = errors.New("malformed frame")

	// Auth errors. Reported to the caller, connection stays open
	// except for a ban rejection.
	ErrUnauthorized = errors.New("unauthorized")
	ErrBanned       = errors.New("banned")
	ErrInvalidToken = errors.New("invalid session token")

	// Authorization errors.
	ErrNotAdmin = errors.New("not an admin")
	ErrMuted    = errors.New("muted")

	// Lookup / registration errors.
	ErrNotFound    = errors.New("not found")
	ErrNameTaken   = errors.New("username taken")
	ErrInvalidName = errors.New("invalid username")
	ErrNotBanned   = errors.New("user is not banned")
)
