package vkc

import (
	"fmt"
	"math"
)

// GroupCount is the number of workgroups of size wg needed to visit n elements, ceil(n / wg).
// The count saturates at math.MaxUint32, only lengths past MaxElements need more groups.
func GroupCount(n int, wg uint32) uint32 {
	if n <= 0 || wg == 0 {
		return 0
	}
	return uint32(min((uint64(n)+uint64(wg)-1)/uint64(wg), math.MaxUint32))
}

// Coverage compares the invocations of a dispatch with the elements of the buffer it works on.
// Invocation i handles element i.
type Coverage struct {
	Elements    uint64
	Invocations uint64
	// Visited elements have an invocation, Unvisited ones keep their initial value.
	Visited   uint64
	Unvisited uint64
	// Excess invocations have no element, the kernel must bounds check them.
	Excess uint64
}

// NewCoverage computes the coverage of groups workgroups of size wg over n elements.
func NewCoverage(n int, wg, groups uint32) Coverage {
	c := Coverage{Elements: uint64(n), Invocations: uint64(wg) * uint64(groups)}
	c.Visited = min(c.Elements, c.Invocations)
	c.Unvisited = c.Elements - c.Visited
	c.Excess = c.Invocations - c.Visited
	return c
}

// Complete reports whether every element is visited.
func (c Coverage) Complete() bool {
	return c.Unvisited == 0
}

func (c Coverage) String() string {
	if c.Complete() {
		return fmt.Sprintf("%d/%d elements visited, %d excess invocations", c.Visited, c.Elements, c.Excess)
	}
	return fmt.Sprintf("%d/%d elements visited, elements [%d, %d) untouched", c.Visited, c.Elements, c.Visited, c.Elements)
}

// Dispatch is the shape of a recorded dispatch.
type Dispatch struct {
	Groups        [3]uint32
	WorkgroupSize uint32
	// Fixed is set when the group count was given instead of derived from the buffer length.
	Fixed    bool
	Coverage Coverage
}

func (d Dispatch) String() string {
	return fmt.Sprintf("%d groups x %d invocations (%s)", d.Groups[0], d.WorkgroupSize, d.Coverage)
}
