package vkc

import "fmt"

// QueueFlags are the capabilities advertised by a queue family.
type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 1 << iota
	QueueCompute
	QueueTransfer
)

// QueueFamily is a group of queues sharing the same capabilities.
type QueueFamily struct {
	Index      int
	Flags      QueueFlags
	QueueCount int
	// TimestampValidBits is the number of meaningful bits in timestamps written on this
	// family, 0 when timestamps are not supported.
	TimestampValidBits uint32
}

func (q *QueueFamily) IsCompute() bool {
	return q.Flags&QueueCompute == QueueCompute
}

func (q *QueueFamily) IsGraphics() bool {
	return q.Flags&QueueGraphics == QueueGraphics
}

func (q *QueueFamily) IsTransfer() bool {
	return q.Flags&QueueTransfer == QueueTransfer
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Queues: %d Compute: %v Graphics: %v Transfer: %v }", q.Index, q.QueueCount, q.IsCompute(), q.IsGraphics(), q.IsTransfer())
}

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make(QueueFamilySlice, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

func (ql QueueFamilySlice) FilterCompute() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsCompute()
	})
}

func (ql QueueFamilySlice) FilterGraphics() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsGraphics()
	})
}

func (ql QueueFamilySlice) FilterTransfer() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsTransfer()
	})
}
