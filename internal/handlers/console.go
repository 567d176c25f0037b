package handlers

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

var ErrInvalidID = errors.New("invalid id")

// console serialises writes from the input loop and the live callbacks.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// parseID checks that id is a UUID, the backend's id type, and returns it
// in canonical form.
func parseID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return parsed.String(), nil
}
