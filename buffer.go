package vkc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementSize is the width in bytes of one buffer element.
const ElementSize = 4

// MaxElements bounds the buffer length: every index 0..n-1 is a uint32 and one group per
// element is still a valid group count.
const MaxElements = math.MaxUint32

func checkElements(n int) error {
	if n <= 0 || uint64(n) > MaxElements {
		return fmt.Errorf("%w: element count %d, want 1 to %d", ErrBufferAllocationFailed, n, uint64(MaxElements))
	}
	return nil
}

// ElementBuffer is a host visible storage buffer of uint32 elements.
type ElementBuffer struct {
	Buffer Buffer
	Len    int
}

// Size is the size of the buffer in bytes.
func (b *ElementBuffer) Size() uint64 {
	return uint64(b.Len) * ElementSize
}

// Destroy releases the buffer.
func (b *ElementBuffer) Destroy() {
	if b.Buffer != nil {
		b.Buffer.Destroy()
		b.Buffer = nil
	}
}

// AllocateSequence allocates a buffer of n elements holding 0..n-1.
func AllocateSequence(dc *DeviceContext, n int) (*ElementBuffer, error) {
	if err := checkElements(n); err != nil {
		return nil, err
	}
	values := make([]uint32, n)
	for i := range values {
		values[i] = uint32(i)
	}
	return AllocateElements(dc, values)
}

// AllocateElements allocates a buffer initialized with values.
func AllocateElements(dc *DeviceContext, values []uint32) (*ElementBuffer, error) {
	if err := checkElements(len(values)); err != nil {
		return nil, err
	}
	buf, err := dc.Device.CreateBuffer(&BufferDescriptor{
		Label:  "elements",
		Size:   uint64(len(values)) * ElementSize,
		Usage:  BufferUsageStorage | BufferUsageTransferSrc | BufferUsageTransferDst,
		Memory: MemoryHostVisible,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBufferAllocationFailed, err)
	}
	eb := &ElementBuffer{Buffer: buf, Len: len(values)}
	if err := eb.Fill(values); err != nil {
		eb.Destroy()
		return nil, err
	}
	Logger().WithField("elements", len(values)).Debug("allocated element buffer")
	return eb, nil
}

// Fill overwrites the buffer with values, which must hold exactly Len elements.
func (b *ElementBuffer) Fill(values []uint32) error {
	if len(values) != b.Len {
		return fmt.Errorf("%w: %d values for %d elements", ErrBufferAllocationFailed, len(values), b.Len)
	}
	if err := b.Buffer.Write(0, encodeElements(values)); err != nil {
		return fmt.Errorf("%w: %v", ErrBufferMapFailed, err)
	}
	return nil
}

// ReadElements copies the buffer contents back to the host. Only call it after the work
// writing the buffer has completed.
func ReadElements(b *ElementBuffer) ([]uint32, error) {
	raw := make([]byte, b.Size())
	if err := b.Buffer.Read(0, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBufferMapFailed, err)
	}
	return decodeElements(raw), nil
}

func encodeElements(values []uint32) []byte {
	out := make([]byte, len(values)*ElementSize)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*ElementSize:], v)
	}
	return out
}

func decodeElements(raw []byte) []uint32 {
	values := make([]uint32, len(raw)/ElementSize)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(raw[i*ElementSize:])
	}
	return values
}
