package main

import "errors"

var (
	ErrCommandRequired  = errors.New("command required")
	ErrImageRequired    = errors.New("image path required")
	ErrListingsDiffer   = errors.New("listings differ")
	ErrManifestRequired = errors.New("manifest path required")
	ErrNoRebuiltCode    = errors.New("segment has no rebuilt code")
	ErrOutputRequired   = errors.New("output image path required")
	ErrSegmentRequired  = errors.New("segment name required")
	ErrUnknownSegment   = errors.New("unknown segment")
)
