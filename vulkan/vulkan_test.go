//go:build cgo

package vulkan

import (
	"testing"
	"time"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

func TestQueueFamilyConversion(t *testing.T) {
	props := vk.QueueFamilyProperties{
		QueueFlags:         vk.QueueFlags(vk.QueueComputeBit | vk.QueueTransferBit),
		QueueCount:         4,
		TimestampValidBits: 36,
	}
	qf := queueFamily(2, props)
	if qf.Index != 2 || qf.QueueCount != 4 || qf.TimestampValidBits != 36 {
		t.Errorf("family = %+v", qf)
	}
	if !qf.IsCompute() || !qf.IsTransfer() || qf.IsGraphics() {
		t.Errorf("flags = %v, want compute|transfer", qf.Flags)
	}

	graphics := queueFamily(0, vk.QueueFamilyProperties{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit)})
	if got := (vkc.QueueFamilySlice{graphics, qf}).FilterCompute(); len(got) != 1 || got[0] != qf {
		t.Errorf("FilterCompute = %v", got)
	}
}

func TestBufferUsage(t *testing.T) {
	got := bufferUsage(vkc.BufferUsageStorage | vkc.BufferUsageTransferSrc | vkc.BufferUsageTransferDst)
	want := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	if got != want {
		t.Errorf("bufferUsage = %b, want %b", got, want)
	}
	if bufferUsage(vkc.BufferUsageUniform) != vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit) {
		t.Error("uniform usage not mapped")
	}
}

func TestDescriptorType(t *testing.T) {
	tests := []struct {
		kind vkc.ResourceKind
		want vk.DescriptorType
	}{
		{vkc.KindStorageBuffer, vk.DescriptorTypeStorageBuffer},
		{vkc.KindUniformBuffer, vk.DescriptorTypeUniformBuffer},
		{vkc.KindStorageImage, vk.DescriptorTypeStorageImage},
		{vkc.KindSampledImage, vk.DescriptorTypeSampledImage},
		{vkc.KindSampler, vk.DescriptorTypeSampler},
		{vkc.KindCombinedImageSampler, vk.DescriptorTypeCombinedImageSampler},
	}
	for _, tt := range tests {
		got, err := descriptorType(tt.kind)
		if err != nil || got != tt.want {
			t.Errorf("descriptorType(%s) = %v, %v, want %v", tt.kind, got, err, tt.want)
		}
	}
	if _, err := descriptorType(vkc.ResourceKind(0)); err == nil {
		t.Error("descriptorType(0) should fail")
	}
}

func TestPipelineStage(t *testing.T) {
	if pipelineStage(vkc.StageTopOfPipe) != vk.PipelineStageTopOfPipeBit {
		t.Error("top of pipe not mapped")
	}
	if pipelineStage(vkc.StageBottomOfPipe) != vk.PipelineStageBottomOfPipeBit {
		t.Error("bottom of pipe not mapped")
	}
}

func TestFenceTimeout(t *testing.T) {
	if fenceTimeout(-1) != vk.MaxUint64 {
		t.Error("negative timeout should wait without bound")
	}
	if got := fenceTimeout(3 * time.Millisecond); got != 3000000 {
		t.Errorf("fenceTimeout(3ms) = %d", got)
	}
}

func TestSafeStrings(t *testing.T) {
	in := []string{"VK_LAYER_KHRONOS_validation", "", "done\x00"}
	out := safeStrings(in)
	want := []string{"VK_LAYER_KHRONOS_validation\x00", "\x00", "done\x00"}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("safeStrings[%d] = %q, want %q", i, out[i], want[i])
		}
	}
	if in[0] != "VK_LAYER_KHRONOS_validation" {
		t.Error("safeStrings modified its input")
	}
}

func TestMemoryPropertyString(t *testing.T) {
	got := MemoryPropertyString(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	if got != "host-visible|host-coherent (6)" {
		t.Errorf("MemoryPropertyString = %q", got)
	}
	if got := MemoryPropertyString(0); got != "none (0)" {
		t.Errorf("MemoryPropertyString(0) = %q", got)
	}
}

func TestMemoryTypeSlice(t *testing.T) {
	types := MemoryTypeSlice{
		{PropertyFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)},
		{PropertyFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)},
		{PropertyFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)},
	}
	if n := types.NumHostVisibleAndCoherent(); n != 1 {
		t.Errorf("NumHostVisibleAndCoherent = %d, want 1", n)
	}
	if n := types.NumDeviceLocal(); n != 1 {
		t.Errorf("NumDeviceLocal = %d, want 1", n)
	}
}

func TestVersionString(t *testing.T) {
	if s := (Version{Major: 1, Minor: 3, Patch: 250}).String(); s != "1.3.250" {
		t.Errorf("Version.String = %q", s)
	}
}
