//go:build !cgo

package commands

import (
	"github.com/celer/vkc"
	"github.com/celer/vkc/internal/config"
	"github.com/celer/vkc/wgpu"
)

func init() {
	registerBackend("wgpu", func(*config.Config) (vkc.Driver, error) {
		drv, err := wgpu.New(wgpu.Options{})
		if err != nil {
			return nil, err
		}
		return drv, nil
	})
}
