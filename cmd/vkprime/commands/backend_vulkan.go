//go:build cgo

package commands

import (
	"fmt"
	"io"

	"github.com/celer/vkc"
	"github.com/celer/vkc/internal/config"
	"github.com/celer/vkc/vulkan"
	gu "github.com/docker/go-units"
	vk "github.com/vulkan-go/vulkan"
)

func init() {
	registerBackend("vulkan", func(cfg *config.Config) (vkc.Driver, error) {
		drv, err := vulkan.New(vulkan.Options{AppName: "vkprime", Validation: cfg.Vulkan.Validation})
		if err != nil {
			return nil, err
		}
		return drv, nil
	})
	instanceSupport = listInstanceSupport
	adapterDetails = append(adapterDetails, func(w io.Writer, adapter vkc.Adapter) {
		if pd, ok := adapter.(*vulkan.PhysicalDevice); ok {
			showPhysicalDevice(w, pd)
		}
	})
}

func list(w io.Writer, title string, data []string) {
	fmt.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "-----------------------------\n")
	for _, d := range data {
		fmt.Fprintf(w, "\t%s\n", d)
	}
	fmt.Fprintf(w, "\n")
}

func listInstanceSupport(w io.Writer) error {
	if err := vulkan.InitializeForComputeOnly(); err != nil {
		return err
	}
	extensions, err := vulkan.SupportedExtensions()
	if err != nil {
		return err
	}
	list(w, "Extensions", extensions)

	layers, err := vulkan.SupportedLayers()
	if err != nil {
		return err
	}
	list(w, "Layers", layers)
	return nil
}

func showPhysicalDevice(w io.Writer, pd *vulkan.PhysicalDevice) {
	fmt.Fprintf(w, "\n\tAPI\t\t%s\n", pd.APIVersion())
	fmt.Fprintf(w, "\tWorkgroup\t%d invocations max\n", pd.MaxComputeWorkGroupInvocations())

	types := pd.MemoryTypes()
	fmt.Fprintf(w, "\n\tMemory Types (%d host visible and coherent, %d device local)\n",
		types.NumHostVisibleAndCoherent(), types.NumDeviceLocal())
	fmt.Fprintf(w, "\t\tHeapIdx\tFlags\n")
	for _, mt := range types {
		fmt.Fprintf(w, "\t\t%d\t%s\n", mt.HeapIndex, vulkan.MemoryPropertyString(vk.MemoryPropertyFlagBits(mt.PropertyFlags)))
	}

	fmt.Fprintf(w, "\n\tHeaps\n")
	for _, h := range pd.MemoryHeaps() {
		local := ""
		if h.DeviceLocal {
			local = "device-local"
		}
		fmt.Fprintf(w, "\t\t%s\t%s\n", gu.BytesSize(float64(h.Size)), local)
	}
}
