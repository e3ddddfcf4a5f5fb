package vkc

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ComputePipeline is a kernel bound to one entry point and the resource layout it was built
// with. It is immutable once built.
type ComputePipeline struct {
	Pipeline   Pipeline
	Kernel     *Kernel
	EntryPoint *EntryPoint
	Layout     ResourceLayout
}

// WorkgroupSize is the number of invocations in one workgroup along x. The pipeline only
// dispatches along x.
func (p *ComputePipeline) WorkgroupSize() uint32 {
	return p.EntryPoint.WorkgroupSize[0]
}

// Destroy releases the backend pipeline.
func (p *ComputePipeline) Destroy() {
	if p.Pipeline != nil {
		p.Pipeline.Destroy()
		p.Pipeline = nil
	}
}

// BuildPipeline builds a compute pipeline for the entry point called entry. When schema is not
// nil it must describe exactly the resources the entry point declares, otherwise the reflected
// layout is used.
func BuildPipeline(dc *DeviceContext, kernel *Kernel, entry string, schema ResourceLayout) (*ComputePipeline, error) {
	ep, err := kernel.EntryPoint(entry)
	if err != nil {
		return nil, err
	}
	if ep.WorkgroupSize[1] != 1 || ep.WorkgroupSize[2] != 1 {
		Logger().WithField("entry", entry).Warnf("workgroup size %v is not one dimensional, only x is dispatched", ep.WorkgroupSize)
	}

	layout := ep.Layout
	if schema != nil {
		if err := schema.Validate(ep.Layout); err != nil {
			return nil, fmt.Errorf("entry point %s: %w", entry, err)
		}
		layout = schema
	}

	p, err := dc.Device.CreatePipeline(&PipelineDescriptor{
		Label:      entry,
		Kernel:     kernel,
		EntryPoint: ep,
		Layout:     layout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline for %s: %w", entry, err)
	}
	Logger().WithFields(logrus.Fields{
		"entry":     entry,
		"workgroup": ep.WorkgroupSize[0],
		"layout":    layout.String(),
	}).Debug("built compute pipeline")

	return &ComputePipeline{Pipeline: p, Kernel: kernel, EntryPoint: ep, Layout: layout}, nil
}
