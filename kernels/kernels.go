// Package kernels holds the compute kernels shipped with vkc as WGSL source.
package kernels

import (
	_ "embed"

	"github.com/celer/vkc"
)

// PrimeWGSL is the source of the prime kernel, entry point main_cs with workgroup size 64 and
// one storage buffer at set 0, binding 0.
//
//go:embed prime.wgsl
var PrimeWGSL string

// Prime compiles PrimeWGSL.
func Prime() (*vkc.Kernel, error) {
	spirv, err := vkc.CompileWGSL(PrimeWGSL)
	if err != nil {
		return nil, err
	}
	k, err := vkc.LoadKernel(spirv)
	if err != nil {
		return nil, err
	}
	k.Source = "prime.wgsl"
	return k, nil
}
