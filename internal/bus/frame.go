// Package bus provides the socket data bus: typed value storage keyed by
// socket identity for the duration of one graph execution.
package bus

import (
	"errors"
	"fmt"

	"github.com/unicon/grader-go/internal/graph"
)

// ErrAlreadyBound is returned when a socket is written twice within the
// same frame. Re-execution must start a fresh frame.
var ErrAlreadyBound = errors.New("socket already bound in this frame")

// Frame holds the socket bindings produced so far in one execution pass.
// Loop iterations create child frames that inherit outer bindings but
// isolate loop-local ones. Frames are owned by a single execution and are
// not safe for concurrent use.
type Frame struct {
	parent *Frame
	values map[graph.SocketAddr]interface{}
}

// NewFrame creates a frame inheriting bindings from parent (nil for the
// root frame of an execution).
func NewFrame(parent *Frame) *Frame {
	return &Frame{
		parent: parent,
		values: make(map[graph.SocketAddr]interface{}),
	}
}

// Write binds a value to a socket address. A socket may be bound at most
// once per frame; a child frame may shadow an inherited binding.
func (f *Frame) Write(addr graph.SocketAddr, value interface{}) error {
	if _, bound := f.values[addr]; bound {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, addr)
	}
	f.values[addr] = value
	return nil
}

// Read resolves a socket address against this frame and its ancestors.
// The second return is false when the socket is unbound; consumers of
// unbound sockets are skipped rather than errored.
func (f *Frame) Read(addr graph.SocketAddr) (interface{}, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.values[addr]; ok {
			return v, true
		}
	}
	return nil, false
}
