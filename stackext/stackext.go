// Package stackext is a reference StackExtender trap implementation: it
// doubles a Stack's frame region (or grows it to fit the request,
// whichever is larger) and copies the existing bytes across. Like
// package gc, this is the minimum correct implementation of the trap
// contract, not a tuned allocator.
package stackext

import (
	"fmt"

	"rvm/vm"
	"rvm/vmlog"

	"go.uber.org/zap"
)

// Extender grows a Stack's backing region on demand.
type Extender struct {
	// MaxSize caps how large a single stack's region may grow, 0 meaning
	// unbounded.
	MaxSize uint32
}

// ExtendStack implements vm.StackExtender.
func (e *Extender) ExtendStack(s *vm.Stack, need uint32) error {
	cur := uint32(len(s.Mem))
	target := cur * 2
	if target < cur+need {
		target = cur + need
	}
	if e.MaxSize != 0 && target > e.MaxSize {
		target = e.MaxSize
	}
	if target < cur+need {
		return fmt.Errorf("stackext: cannot grow stack of size %d by %d within cap %d", cur, need, target)
	}

	grown := make([]byte, target)
	copy(grown, s.Mem)
	s.Mem = grown

	vmlog.L().Debug("stackext: grew stack", zap.Uint32("from", cur), zap.Uint32("to", target))
	return nil
}
