//go:build cgo

package vulkan

import (
	"fmt"
	"sort"
)

// Allocation is a range inside a memory block.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

type IAllocator interface {
	Free(a *Allocation)
	Allocate(size uint64, align uint64) *Allocation
}

// LinearAllocator hands out first fit ranges of a block of Size bytes. Allocations are
// kept sorted by offset.
type LinearAllocator struct {
	Size   uint64
	allocs []*Allocation
}

func makeAlignUp(a uint64, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return (a - m) + align
}

// Free releases fa, freeing an allocation twice is a no-op.
func (p *LinearAllocator) Free(fa *Allocation) {
	for i, a := range p.allocs {
		if a == fa {
			p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
			return
		}
	}
}

// Allocate returns the lowest aligned range of size bytes that fits, nil when none does.
func (p *LinearAllocator) Allocate(size uint64, align uint64) *Allocation {
	if size == 0 || size > p.Size {
		return nil
	}

	var start uint64
	for i := 0; i <= len(p.allocs); i++ {
		end := p.Size
		if i < len(p.allocs) {
			end = p.allocs[i].Offset
		}
		off := makeAlignUp(start, align)
		if off <= end && end-off >= size {
			na := &Allocation{Offset: off, Size: size}
			p.allocs = append(p.allocs, nil)
			copy(p.allocs[i+1:], p.allocs[i:])
			p.allocs[i] = na
			return na
		}
		if i < len(p.allocs) {
			start = p.allocs[i].Offset + p.allocs[i].Size
		}
	}
	return nil
}

// Used is the number of bytes currently allocated, alignment padding excluded.
func (p *LinearAllocator) Used() uint64 {
	var used uint64
	for _, a := range p.allocs {
		used += a.Size
	}
	return used
}

// Empty reports whether nothing is allocated.
func (p *LinearAllocator) Empty() bool {
	return len(p.allocs) == 0
}

func (p *LinearAllocator) String() string {
	if !sort.SliceIsSorted(p.allocs, func(i, j int) bool { return p.allocs[i].Offset < p.allocs[j].Offset }) {
		return fmt.Sprintf("unsorted %v", p.allocs)
	}
	return fmt.Sprintf("%v", p.allocs)
}
