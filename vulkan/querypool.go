//go:build cgo

package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// QueryPool is a pool of timestamp queries.
type QueryPool struct {
	Device      *Device
	VKQueryPool vk.QueryPool
	count       int
	once        sync.Once
}

func (d *Device) CreateQueryPool(count int) (vkc.QueryPool, error) {
	family := d.queue.QueueFamily
	if family.TimestampValidBits == 0 || d.PhysicalDevice.TimestampPeriod() <= 0 {
		return nil, fmt.Errorf("%w: family %d of %s", vkc.ErrTimestampsUnsupported, family.Index, d.PhysicalDevice)
	}
	if count <= 0 {
		return nil, fmt.Errorf("query pool: count %d", count)
	}

	var pool vk.QueryPool
	err := vk.Error(vk.CreateQueryPool(d.VKDevice, &vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: uint32(count),
	}, nil, &pool))
	if err != nil {
		return nil, err
	}
	return &QueryPool{Device: d, VKQueryPool: pool, count: count}, nil
}

func (q *QueryPool) Count() int {
	return q.count
}

// Results reads 64 bit values. With wait the driver blocks until every query of the range
// has been written.
func (q *QueryPool) Results(first, count int, wait bool) ([]uint64, error) {
	if first < 0 || count < 0 || first+count > q.count {
		return nil, fmt.Errorf("query range [%d, %d) exceeds pool of %d", first, first+count, q.count)
	}
	if count == 0 {
		return nil, nil
	}

	flags := vk.QueryResultFlagBits(vk.QueryResult64Bit)
	if wait {
		flags |= vk.QueryResultWaitBit
	}
	values := make([]uint64, count)
	res := vk.GetQueryPoolResults(q.Device.VKDevice, q.VKQueryPool, uint32(first), uint32(count),
		uint(count*8), unsafe.Pointer(&values[0]), 8, vk.QueryResultFlags(flags))
	if res == vk.NotReady {
		return nil, fmt.Errorf("%w: queries [%d, %d)", vkc.ErrQueryResultsUnavailable, first, first+count)
	}
	if err := vk.Error(res); err != nil {
		return nil, err
	}
	return values, nil
}

func (q *QueryPool) Destroy() {
	q.once.Do(func() {
		vk.DestroyQueryPool(q.Device.VKDevice, q.VKQueryPool, nil)
	})
}
