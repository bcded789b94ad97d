// Package sandbox provides clients for the isolated code-execution
// collaborator. The engine sees a synchronous, deadline-bound call
// regardless of the underlying transport.
package sandbox

import (
	"context"
	"errors"

	"github.com/unicon/grader-go/pkg/types"
)

// ErrUnavailable indicates the sandbox or its queue is unreachable. It is
// an infrastructure fault, surfaced to the caller distinctly from a
// grading failure.
var ErrUnavailable = errors.New("sandbox unavailable")

// ErrTimeout indicates the sandbox did not answer within the request's
// time limit or the caller's deadline.
var ErrTimeout = errors.New("sandbox call timed out")

// Runner submits untrusted code to the sandbox collaborator and blocks
// until a structured result arrives or the deadline elapses.
//
// Implementations must honour ctx cancellation: on cancellation or
// deadline they return ErrTimeout (wrapped) without leaking the pending
// request into later calls.
type Runner interface {
	Run(ctx context.Context, req *types.RunnerRequest) (*types.RunnerResponse, error)
	Close() error
}
