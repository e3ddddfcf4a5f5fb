package vkc

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DeviceContext is the device, queue and family selected for the pipeline. Every resource of
// the pipeline is created from Device and must be destroyed before Destroy is called.
type DeviceContext struct {
	Driver  Driver
	Adapter Adapter
	Family  *QueueFamily
	Device  Device
	Queue   Queue
	// TimestampPeriod is nanoseconds per timestamp tick.
	TimestampPeriod float32
}

// SelectDevice picks the first adapter of drv and its first compute capable queue family and
// opens a logical device with a single queue from it. There is no fallback to another adapter.
func SelectDevice(drv Driver) (*DeviceContext, error) {
	adapters, err := drv.Adapters()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoAdapterFound, drv.Name(), err)
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("%w: %s enumerated no adapters", ErrNoAdapterFound, drv.Name())
	}
	adapter := adapters[0]
	log := Logger().WithFields(logrus.Fields{"driver": drv.Name(), "adapter": adapter.Name()})
	log.Infof("selected adapter 1 of %d", len(adapters))

	families, err := adapter.QueueFamilies()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoComputeQueueFamily, err)
	}
	for _, f := range families {
		log.Infof("queue family %d has %d queues", f.Index, f.QueueCount)
	}
	compute := families.FilterCompute()
	if len(compute) == 0 {
		return nil, fmt.Errorf("%w: adapter %s", ErrNoComputeQueueFamily, adapter.Name())
	}
	family := compute[0]

	dev, err := adapter.CreateDevice(family)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceCreationFailed, err)
	}
	log.WithField("family", family.Index).Info("created logical device")

	return &DeviceContext{
		Driver:          drv,
		Adapter:         adapter,
		Family:          family,
		Device:          dev,
		Queue:           dev.Queue(),
		TimestampPeriod: adapter.TimestampPeriod(),
	}, nil
}

// SupportsTimestamps reports whether the selected queue can write timestamps.
func (dc *DeviceContext) SupportsTimestamps() bool {
	return dc.Family.TimestampValidBits > 0 && dc.TimestampPeriod > 0
}

// Destroy destroys the logical device. The driver is left to the caller.
func (dc *DeviceContext) Destroy() {
	if dc.Device != nil {
		dc.Device.Destroy()
		dc.Device = nil
	}
}
