// Package apperr classifies pipeline failures so they can be written to the
// usage log while the end user only ever sees a generic retry message.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Unknown Kind = iota
	ListingFetch
	EnrichmentFetch
	ViewFetch
	NoData
	Render
	Delivery
	Timeout
	Internal
)

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case Unknown:
		return "Unknown"
	case ListingFetch:
		return "ListingFetch"
	case EnrichmentFetch:
		return "EnrichmentFetch"
	case ViewFetch:
		return "ViewFetch"
	case NoData:
		return "NoData"
	case Render:
		return "Render"
	case Delivery:
		return "Delivery"
	case Timeout:
		return "Timeout"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Label is the failure kind stored in the usage log.
func (k Kind) Label() string {
	switch k {
	case ListingFetch, EnrichmentFetch, ViewFetch:
		return "parsing_error"
	case NoData:
		return "no_data"
	case Render:
		return "image_generation_error"
	case Delivery:
		return "delivery_error"
	case Timeout:
		return "timeout"
	default:
		return "internal_error"
	}
}

type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func E(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func OpOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// ErrNoData is returned when statistics are requested for an empty project list.
var ErrNoData = E("stats.Compute", NoData, errors.New("no projects to evaluate"))
