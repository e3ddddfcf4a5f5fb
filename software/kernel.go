package software

import (
	"encoding/binary"
	"fmt"

	"github.com/celer/vkc"
)

// Invocation identifies one invocation of a dispatch.
type Invocation struct {
	GlobalID    [3]uint32
	LocalID     [3]uint32
	WorkgroupID [3]uint32
}

// KernelFunc runs one invocation. Invocations of a dispatch run concurrently, a kernel must
// only write elements owned by its invocation. Out of range accesses panic and lose the device.
type KernelFunc func(inv Invocation, b Bindings)

// Storage is the memory of a storage buffer as seen by a kernel, in 32 bit elements.
type Storage struct {
	data []byte
}

// Len is the number of whole elements.
func (s *Storage) Len() int {
	return len(s.data) / 4
}

func (s *Storage) Load(i int) uint32 {
	return binary.LittleEndian.Uint32(s.data[i*4:])
}

func (s *Storage) Store(i int, v uint32) {
	binary.LittleEndian.PutUint32(s.data[i*4:], v)
}

// Bindings are the buffers bound for a dispatch, by set and binding.
type Bindings map[[2]int]*Storage

// Storage returns the buffer at (set, binding), it panics when nothing is bound there.
func (b Bindings) Storage(set, binding int) *Storage {
	s, ok := b[[2]int{set, binding}]
	if !ok {
		panic(fmt.Sprintf("nothing bound at set %d binding %d", set, binding))
	}
	return s
}

// Prime implements the prime kernel: element i is replaced by itself when prime, by 1
// otherwise. Invocations past the end of the buffer do nothing.
func Prime(inv Invocation, b Bindings) {
	s := b.Storage(0, 0)
	i := int(inv.GlobalID[0])
	if i >= s.Len() {
		return
	}
	s.Store(i, vkc.ResolvePrime(s.Load(i)))
}

// NewPrime returns a driver with Prime registered under the prime entry point.
func NewPrime(opts Options) *Driver {
	d := New(opts)
	d.Register(vkc.PrimeEntryPoint, Prime)
	return d
}
