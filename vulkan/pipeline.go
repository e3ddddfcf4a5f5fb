//go:build cgo

package vulkan

import (
	"fmt"
	"sync"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// ComputePipeline is a vkc.Pipeline. It owns its shader module, its descriptor set layouts and
// its pipeline layout.
type ComputePipeline struct {
	Device                          *Device
	Entry                           *vkc.EntryPoint
	Layout                          vkc.ResourceLayout
	ShaderModule                    *ShaderModule
	SetLayouts                      []*DescriptorSetLayout
	PipelineLayout                  *PipelineLayout
	VKPipeline                      vk.Pipeline
	VKPipelineShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
	VKPipelineLayout                vk.PipelineLayout

	once sync.Once
}

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	var pipelineCacheCreate = vk.PipelineCacheCreateInfo{}
	pipelineCacheCreate.SType = vk.StructureTypePipelineCacheCreateInfo

	var pipelineCache vk.PipelineCache

	err := vk.Error(vk.CreatePipelineCache(d.VKDevice, &pipelineCacheCreate, nil, &pipelineCache))
	if err != nil {
		return nil, err
	}

	return &PipelineCache{Device: d, VKPipelineCache: pipelineCache}, nil
}

func (c *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(c.Device.VKDevice, c.VKPipelineCache, nil)
}

func (c *ComputePipeline) SetPipelineLayout(layout *PipelineLayout) {
	c.PipelineLayout = layout
	c.VKPipelineLayout = layout.VKPipelineLayout
}

func (c *ComputePipeline) SetShaderStage(entryPoint string, shaderModule *ShaderModule) {
	c.ShaderModule = shaderModule
	c.VKPipelineShaderStageCreateInfo = shaderModule.VKPipelineShaderStageCreateInfo(vk.ShaderStageComputeBit, entryPoint)
}

func (d *Device) CreateComputePipelines(pc *PipelineCache, cp ...*ComputePipeline) error {

	pipelines := make([]vk.Pipeline, len(cp))

	ci := make([]vk.ComputePipelineCreateInfo, len(cp))

	for i, p := range cp {
		var pipelineCreateInfo = vk.ComputePipelineCreateInfo{}
		pipelineCreateInfo.SType = vk.StructureTypeComputePipelineCreateInfo
		pipelineCreateInfo.Stage = p.VKPipelineShaderStageCreateInfo
		pipelineCreateInfo.Layout = p.VKPipelineLayout
		ci[i] = pipelineCreateInfo
	}

	err := vk.Error(vk.CreateComputePipelines(
		d.VKDevice, pc.VKPipelineCache,
		uint32(len(ci)), ci,
		nil, pipelines))
	if err != nil {
		return err
	}

	for i := range pipelines {
		cp[i].VKPipeline = pipelines[i]
	}

	return nil
}

func (d *Device) CreatePipeline(desc *vkc.PipelineDescriptor) (vkc.Pipeline, error) {
	ep := desc.EntryPoint
	if ep == nil || ep.Model != vkc.ExecutionModelGLCompute {
		return nil, fmt.Errorf("pipeline %q: %w", desc.Label, vkc.ErrEntryPointNotFound)
	}
	if limit := d.PhysicalDevice.MaxComputeWorkGroupInvocations(); limit > 0 && ep.Invocations() > uint64(limit) {
		return nil, fmt.Errorf("pipeline %q: workgroup size %v exceeds the device limit of %d invocations", desc.Label, ep.WorkgroupSize, limit)
	}
	layout := desc.Layout
	if layout == nil {
		layout = ep.Layout
	}

	p := &ComputePipeline{Device: d, Entry: ep, Layout: layout}
	fail := func(err error) (vkc.Pipeline, error) {
		p.Destroy()
		return nil, fmt.Errorf("pipeline %q: %w", desc.Label, err)
	}

	shader, err := d.CreateShaderModule(desc.Kernel)
	if err != nil {
		return fail(err)
	}
	p.SetShaderStage(ep.Name, shader)

	p.SetLayouts, err = d.CreateSetLayouts(layout)
	if err != nil {
		return fail(err)
	}
	pipelineLayout, err := d.CreatePipelineLayout(p.SetLayouts...)
	if err != nil {
		return fail(err)
	}
	p.SetPipelineLayout(pipelineLayout)

	if err := d.CreateComputePipelines(d.PipelineCache, p); err != nil {
		return fail(err)
	}
	vkc.Logger().WithField("entry", ep.Name).WithField("shader", shader.Description).Debug("compute pipeline created")
	return p, nil
}

func (c *ComputePipeline) EntryPoint() *vkc.EntryPoint {
	return c.Entry
}

// Destroy releases whatever part of the pipeline was created.
func (c *ComputePipeline) Destroy() {
	c.once.Do(func() {
		if c.VKPipeline != nil {
			vk.DestroyPipeline(c.Device.VKDevice, c.VKPipeline, nil)
		}
		if c.PipelineLayout != nil {
			c.PipelineLayout.Destroy()
		}
		for _, dsl := range c.SetLayouts {
			dsl.Destroy()
		}
		if c.ShaderModule != nil {
			c.ShaderModule.Destroy()
		}
	})
}
