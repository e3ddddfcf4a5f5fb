package vkc

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
)

// EntryPoint is an entry point reflected from a kernel.
type EntryPoint struct {
	Name  string
	Model ExecutionModel
	// WorkgroupSize is the local size on x, y and z. Zero for entry points that are not compute.
	WorkgroupSize [3]uint32
	// Layout lists the resources the entry point binds.
	Layout ResourceLayout
}

// Invocations is the number of invocations in one workgroup.
func (e *EntryPoint) Invocations() uint64 {
	return uint64(e.WorkgroupSize[0]) * uint64(e.WorkgroupSize[1]) * uint64(e.WorkgroupSize[2])
}

func (e *EntryPoint) String() string {
	return fmt.Sprintf("%s (%s, workgroup %dx%dx%d, layout %s)", e.Name, e.Model,
		e.WorkgroupSize[0], e.WorkgroupSize[1], e.WorkgroupSize[2], e.Layout)
}

// Kernel is a SPIR-V module. The binary is treated as opaque apart from what is reflected into
// EntryPoints.
type Kernel struct {
	// Words holds the module in host order.
	Words []uint32
	// ID is the hex SHA-256 of the little endian encoding of Words, kernels with the same ID
	// are interchangeable.
	ID string
	// Source is the file the kernel was loaded from, empty when loaded from memory.
	Source      string
	EntryPoints []*EntryPoint
}

// LoadKernel parses a SPIR-V binary in either byte order.
func LoadKernel(data []byte) (*Kernel, error) {
	words, err := spirvWords(data)
	if err != nil {
		return nil, err
	}
	return NewKernel(words)
}

// NewKernel reflects a kernel from SPIR-V words.
func NewKernel(words []uint32) (*Kernel, error) {
	if len(words) < spirvHeaderSize || words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: missing SPIR-V header", ErrMalformedKernelBinary)
	}
	m, err := parseSPIRV(words)
	if err != nil {
		return nil, err
	}
	if len(m.entries) == 0 {
		return nil, fmt.Errorf("%w: module declares no entry points", ErrEntryPointNotFound)
	}

	k := &Kernel{Words: append([]uint32(nil), words...)}
	sum := sha256.Sum256(k.Bytes())
	k.ID = hex.EncodeToString(sum[:])

	for _, e := range m.entries {
		ep := &EntryPoint{Name: e.name, Model: e.model, Layout: m.layout(e)}
		if e.model == ExecutionModelGLCompute {
			if ep.WorkgroupSize, err = m.workgroupSize(e); err != nil {
				return nil, err
			}
		}
		k.EntryPoints = append(k.EntryPoints, ep)
	}
	return k, nil
}

// LoadKernelFile loads a kernel from path. Files ending in .wgsl are compiled to SPIR-V first,
// anything else is read as a SPIR-V binary.
func LoadKernelFile(path string) (*Kernel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kernel %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".wgsl") {
		data, err = CompileWGSL(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	k, err := LoadKernel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	k.Source = path
	Logger().WithField("kernel", path).Debugf("loaded %d words, %d entry points", len(k.Words), len(k.EntryPoints))
	return k, nil
}

// CompileWGSL compiles WGSL source to a little endian SPIR-V binary.
func CompileWGSL(source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: wgsl compile: %v", ErrMalformedKernelBinary, err)
	}
	return spirv, nil
}

// EntryPoint returns the compute entry point called name.
func (k *Kernel) EntryPoint(name string) (*EntryPoint, error) {
	for _, e := range k.EntryPoints {
		if e.Name != name {
			continue
		}
		if e.Model != ExecutionModelGLCompute {
			return nil, fmt.Errorf("%w: %q is a %s entry point", ErrEntryPointNotFound, name, e.Model)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrEntryPointNotFound, name)
}

// Bytes returns the module as a little endian binary.
func (k *Kernel) Bytes() []byte {
	out := make([]byte, len(k.Words)*4)
	for i, w := range k.Words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
