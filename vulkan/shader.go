//go:build cgo

package vulkan

import (
	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

type ShaderModule struct {
	Device         *Device
	Description    string
	VKShaderModule vk.ShaderModule
}

// CreateShaderModule uploads the SPIR-V words of k.
func (d *Device) CreateShaderModule(k *vkc.Kernel) (*ShaderModule, error) {
	var module vk.ShaderModule
	err := vk.Error(vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(k.Words) * 4),
		PCode:    k.Words,
	}, nil, &module))
	if err != nil {
		return nil, err
	}

	description := k.Source
	if description == "" {
		description = k.ID
	}
	return &ShaderModule{Device: d, Description: description, VKShaderModule: module}, nil
}

func (s *ShaderModule) VKPipelineShaderStageCreateInfo(stage vk.ShaderStageFlagBits, entryPoint string) vk.PipelineShaderStageCreateInfo {
	var shaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{}
	shaderStageCreateInfo.SType = vk.StructureTypePipelineShaderStageCreateInfo
	shaderStageCreateInfo.Stage = stage
	shaderStageCreateInfo.Module = s.VKShaderModule
	shaderStageCreateInfo.PName = safeString(entryPoint)
	return shaderStageCreateInfo
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
}
