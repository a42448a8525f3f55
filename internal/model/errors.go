package model

import "github.com/rotisserie/eris"

// Error kinds shared across the pipeline. Wrap them with eris and test with
// errors.Is.
var (
	// ErrMissingReference: a key is absent from an auxiliary table.
	ErrMissingReference = eris.New("missing reference")
	// ErrMalformedEphemeris: non-finite period, epoch or duration.
	ErrMalformedEphemeris = eris.New("malformed ephemeris")
	// ErrUpstreamQuery: a catalog query never finished or returned garbage.
	ErrUpstreamQuery = eris.New("upstream query failure")
	// ErrAmbiguousInput: zero or several files matched an expected pattern.
	ErrAmbiguousInput = eris.New("ambiguous input files")
	// ErrNoValidData: nothing usable for a candidate or catalog entry.
	ErrNoValidData = eris.New("no valid data")
	// ErrNotFound: a stored run does not exist.
	ErrNotFound = eris.New("not found")
)
