package services

import "errors"

// ErrForbidden is returned when the acting principal fails an ownership
// or self-service check. The attempted mutation is never performed.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidPage is returned for page numbers below 1.
var ErrInvalidPage = errors.New("invalid page")
