package vkc

import "fmt"

// BindResources creates the single resource set of the pipeline, with buf at set 0, binding 0.
func BindResources(dc *DeviceContext, p *ComputePipeline, buf *ElementBuffer) (ResourceSet, error) {
	slot, ok := p.Layout.Lookup(0, 0)
	if !ok {
		return nil, fmt.Errorf("%w: layout %s has nothing at set 0 binding 0", ErrResourceSetCreationFailed, p.Layout)
	}
	if slot.Kind != KindStorageBuffer {
		return nil, fmt.Errorf("%w: set 0 binding 0 is a %s, not a storage buffer", ErrResourceSetCreationFailed, slot.Kind)
	}
	if n := len(p.Layout.InSet(0)); n != 1 {
		return nil, fmt.Errorf("%w: set 0 declares %d bindings, only binding 0 can be bound", ErrResourceSetCreationFailed, n)
	}

	set, err := dc.Device.CreateResourceSet(&ResourceSetDescriptor{
		Label:    "elements",
		Pipeline: p.Pipeline,
		Set:      0,
		Buffers:  []BufferBinding{{Binding: 0, Buffer: buf.Buffer}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceSetCreationFailed, err)
	}
	return set, nil
}
