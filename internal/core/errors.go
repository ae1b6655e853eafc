package core

import "errors"

var (
	// ErrMalformedRecord is returned when a remote record lacks a field the adapter needs.
	ErrMalformedRecord = errors.New("adaptation failed: malformed record")
	// ErrResourceNotFound is returned when the service has no entity with the requested id.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrInvalidSession is returned when the service rejects the current session.
	ErrInvalidSession = errors.New("invalid session")
	// ErrNotAuthenticated is returned when a remote call is attempted without a session.
	ErrNotAuthenticated = errors.New("client not authenticated")
	// ErrUpstreamUnavailable is returned when the remote service fails to answer.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrThumbnailUnsupported is returned by pictures that have no thumbnail variant.
	ErrThumbnailUnsupported = errors.New("thumbnail not available")
)
