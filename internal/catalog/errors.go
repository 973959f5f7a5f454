package catalog

import "errors"

var (
	ErrInvalidExternalID = errors.New("film external id must be a positive identifier")
)
