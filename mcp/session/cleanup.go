package session

import (
	"github.com/cockroachdb/errors"
)

// cleanupStack releases resources in reverse acquisition order
type cleanupStack struct {
	fns []cleanupFunc
}

type cleanupFunc struct {
	name string
	fn   func() error
}

func (s *cleanupStack) push(name string, fn func() error) {
	s.fns = append(s.fns, cleanupFunc{name: name, fn: fn})
}

// unwind runs every registered function, last first, and empties the stack.
// All functions run even if some fail; the errors are combined.
func (s *cleanupStack) unwind() error {
	var err error
	for i := len(s.fns) - 1; i >= 0; i-- {
		c := s.fns[i]
		if cerr := c.fn(); cerr != nil {
			err = errors.CombineErrors(err, errors.WithMessagef(cerr, "close %s", c.name))
		}
	}
	s.fns = nil
	return err
}

func (s *cleanupStack) len() int {
	return len(s.fns)
}
