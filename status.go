// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package alphasurface

import (
	"context"
	"errors"
)

// Status classifies the outcome of a surface construction.
type Status int

const (
	StatusSuccess Status = iota
	StatusCanceled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCanceled:
		return "canceled"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// StatusOf maps the error returned by ConstructSurface to a Status.
// Cancellation is not a failure.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	}
	return StatusError
}
