package vkc

import (
	"encoding/binary"
	"fmt"
)

// SPIR-V constants needed to reflect a compute kernel.
// See: https://registry.khronos.org/SPIR-V/specs/unified1/SPIRV.html
const (
	spirvMagic      = 0x07230203
	spirvHeaderSize = 5

	opName                  = 5
	opEntryPoint            = 15
	opExecutionMode         = 16
	opTypeImage             = 25
	opTypeSampler           = 26
	opTypeSampledImage      = 27
	opTypeArray             = 28
	opTypeRuntimeArray      = 29
	opTypeStruct            = 30
	opTypePointer           = 32
	opConstant              = 43
	opConstantComposite     = 44
	opSpecConstant          = 50
	opSpecConstantComposite = 51
	opVariable              = 59
	opDecorate              = 71
	opExecutionModeID       = 331

	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationBuiltIn       = 11
	decorationBinding       = 33
	decorationDescriptorSet = 34

	builtInWorkgroupSize = 25

	storageClassUniformConstant = 0
	storageClassUniform         = 2
	storageClassStorageBuffer   = 12

	executionModeLocalSize   = 17
	executionModeLocalSizeID = 38

	// SPIR-V 1.4 made entry point interfaces list every global the entry point uses.
	spirvVersion14 = 0x00010400
)

// ExecutionModel is the shader stage of an entry point.
type ExecutionModel uint32

const (
	ExecutionModelVertex    ExecutionModel = 0
	ExecutionModelFragment  ExecutionModel = 4
	ExecutionModelGLCompute ExecutionModel = 5
	ExecutionModelKernel    ExecutionModel = 6
)

func (m ExecutionModel) String() string {
	switch m {
	case ExecutionModelVertex:
		return "vertex"
	case ExecutionModelFragment:
		return "fragment"
	case ExecutionModelGLCompute:
		return "compute"
	case ExecutionModelKernel:
		return "opencl-kernel"
	default:
		return fmt.Sprintf("ExecutionModel(%d)", uint32(m))
	}
}

type spirvEntry struct {
	model ExecutionModel
	id    uint32
	name  string
	iface []uint32
}

type spirvPointer struct {
	storage uint32
	pointee uint32
}

type spirvVariable struct {
	id      uint32
	typeID  uint32
	storage uint32
}

// spirvModule is what reflection collects from one pass over the instruction stream.
type spirvModule struct {
	version uint32
	entries []spirvEntry

	localSize   map[uint32][3]uint32
	localSizeID map[uint32][3]uint32

	constants  map[uint32]uint32
	composites map[uint32][]uint32

	names         map[uint32]string
	sets          map[uint32]uint32
	bindings      map[uint32]uint32
	blocks        map[uint32]uint32
	builtins      map[uint32]uint32
	pointers      map[uint32]spirvPointer
	imageSampled  map[uint32]uint32
	samplers      map[uint32]bool
	sampledImages map[uint32]bool
	arrays        map[uint32]uint32
	variables     []spirvVariable
}

// spirvWords converts a SPIR-V binary to words, accepting either byte order.
func spirvWords(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of 4", ErrMalformedKernelBinary, len(data))
	}
	if len(data) < spirvHeaderSize*4 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedKernelBinary, len(data))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(data) == spirvMagic:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(data) == spirvMagic:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrMalformedKernelBinary, binary.LittleEndian.Uint32(data))
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = order.Uint32(data[i*4:])
	}
	return words, nil
}

// decodeString decodes a nul terminated literal string packed little endian into words.
func decodeString(ops []uint32) (string, int, error) {
	buf := make([]byte, 0, len(ops)*4)
	for i, w := range ops {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf), i + 1, nil
			}
			buf = append(buf, c)
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string literal", ErrMalformedKernelBinary)
}

func parseSPIRV(words []uint32) (*spirvModule, error) {
	m := &spirvModule{
		version:       words[1],
		localSize:     make(map[uint32][3]uint32),
		localSizeID:   make(map[uint32][3]uint32),
		constants:     make(map[uint32]uint32),
		composites:    make(map[uint32][]uint32),
		names:         make(map[uint32]string),
		sets:          make(map[uint32]uint32),
		bindings:      make(map[uint32]uint32),
		blocks:        make(map[uint32]uint32),
		builtins:      make(map[uint32]uint32),
		pointers:      make(map[uint32]spirvPointer),
		imageSampled:  make(map[uint32]uint32),
		samplers:      make(map[uint32]bool),
		sampledImages: make(map[uint32]bool),
		arrays:        make(map[uint32]uint32),
	}

	for i := spirvHeaderSize; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xffff
		if count == 0 || i+count > len(words) {
			return nil, fmt.Errorf("%w: instruction %d at word %d has bad length %d", ErrMalformedKernelBinary, op, i, count)
		}
		ops := words[i+1 : i+count]
		if err := m.instruction(op, ops); err != nil {
			return nil, fmt.Errorf("%w (word %d)", err, i)
		}
		i += count
	}
	return m, nil
}

func short(op uint32, ops []uint32, want int) error {
	if len(ops) < want {
		return fmt.Errorf("%w: opcode %d has %d operands, needs %d", ErrMalformedKernelBinary, op, len(ops), want)
	}
	return nil
}

func (m *spirvModule) instruction(op uint32, ops []uint32) error {
	switch op {
	case opName:
		if err := short(op, ops, 2); err != nil {
			return err
		}
		name, _, err := decodeString(ops[1:])
		if err != nil {
			return err
		}
		m.names[ops[0]] = name

	case opEntryPoint:
		if err := short(op, ops, 3); err != nil {
			return err
		}
		name, n, err := decodeString(ops[2:])
		if err != nil {
			return err
		}
		m.entries = append(m.entries, spirvEntry{
			model: ExecutionModel(ops[0]),
			id:    ops[1],
			name:  name,
			iface: append([]uint32(nil), ops[2+n:]...),
		})

	case opExecutionMode, opExecutionModeID:
		if err := short(op, ops, 2); err != nil {
			return err
		}
		switch {
		case ops[1] == executionModeLocalSize && op == opExecutionMode:
			if err := short(op, ops, 5); err != nil {
				return err
			}
			m.localSize[ops[0]] = [3]uint32{ops[2], ops[3], ops[4]}
		case ops[1] == executionModeLocalSizeID:
			if err := short(op, ops, 5); err != nil {
				return err
			}
			m.localSizeID[ops[0]] = [3]uint32{ops[2], ops[3], ops[4]}
		}

	case opDecorate:
		if err := short(op, ops, 2); err != nil {
			return err
		}
		switch ops[1] {
		case decorationBlock, decorationBufferBlock:
			m.blocks[ops[0]] = ops[1]
		case decorationBinding, decorationDescriptorSet, decorationBuiltIn:
			if err := short(op, ops, 3); err != nil {
				return err
			}
			switch ops[1] {
			case decorationBinding:
				m.bindings[ops[0]] = ops[2]
			case decorationDescriptorSet:
				m.sets[ops[0]] = ops[2]
			default:
				m.builtins[ops[0]] = ops[2]
			}
		}

	case opTypeImage:
		if err := short(op, ops, 8); err != nil {
			return err
		}
		m.imageSampled[ops[0]] = ops[6]
	case opTypeSampler:
		if err := short(op, ops, 1); err != nil {
			return err
		}
		m.samplers[ops[0]] = true
	case opTypeSampledImage:
		if err := short(op, ops, 2); err != nil {
			return err
		}
		m.sampledImages[ops[0]] = true
	case opTypeArray, opTypeRuntimeArray:
		if err := short(op, ops, 2); err != nil {
			return err
		}
		m.arrays[ops[0]] = ops[1]
	case opTypePointer:
		if err := short(op, ops, 3); err != nil {
			return err
		}
		m.pointers[ops[0]] = spirvPointer{storage: ops[1], pointee: ops[2]}

	case opConstant, opSpecConstant:
		// Only 32 bit scalars matter, wider constants are not workgroup sizes.
		if len(ops) == 3 {
			m.constants[ops[1]] = ops[2]
		}
	case opConstantComposite, opSpecConstantComposite:
		if err := short(op, ops, 2); err != nil {
			return err
		}
		m.composites[ops[1]] = append([]uint32(nil), ops[2:]...)

	case opVariable:
		if err := short(op, ops, 3); err != nil {
			return err
		}
		m.variables = append(m.variables, spirvVariable{typeID: ops[0], id: ops[1], storage: ops[2]})
	}
	return nil
}

// resourceKind classifies the resource a descriptor variable binds, 0 if it is not one of the
// kinds this package binds.
func (m *spirvModule) resourceKind(v spirvVariable) ResourceKind {
	ptr, ok := m.pointers[v.typeID]
	if !ok {
		return 0
	}
	t := ptr.pointee
	for {
		elem, ok := m.arrays[t]
		if !ok {
			break
		}
		t = elem
	}

	switch v.storage {
	case storageClassStorageBuffer:
		return KindStorageBuffer
	case storageClassUniform:
		if m.blocks[t] == decorationBufferBlock {
			return KindStorageBuffer
		}
		return KindUniformBuffer
	case storageClassUniformConstant:
		switch {
		case m.samplers[t]:
			return KindSampler
		case m.sampledImages[t]:
			return KindCombinedImageSampler
		}
		if sampled, ok := m.imageSampled[t]; ok {
			if sampled == 2 {
				return KindStorageImage
			}
			return KindSampledImage
		}
	}
	return 0
}

// layout reflects the resource layout used by entry e.
func (m *spirvModule) layout(e spirvEntry) ResourceLayout {
	var used map[uint32]bool
	if m.version >= spirvVersion14 {
		used = make(map[uint32]bool, len(e.iface))
		for _, id := range e.iface {
			used[id] = true
		}
	}

	slots := make([]BindingSlot, 0)
	for _, v := range m.variables {
		set, hasSet := m.sets[v.id]
		binding, hasBinding := m.bindings[v.id]
		if !hasSet || !hasBinding {
			continue
		}
		if used != nil && !used[v.id] {
			continue
		}
		kind := m.resourceKind(v)
		if kind == 0 {
			continue
		}
		slots = append(slots, BindingSlot{Set: int(set), Binding: int(binding), Kind: kind, Name: m.names[v.id]})
	}
	return NewResourceLayout(slots...)
}

// workgroupSize resolves the workgroup size of entry e. A constant decorated with the
// WorkgroupSize builtin overrides any execution mode.
func (m *spirvModule) workgroupSize(e spirvEntry) ([3]uint32, error) {
	for id, b := range m.builtins {
		if b != builtInWorkgroupSize {
			continue
		}
		parts, ok := m.composites[id]
		if !ok || len(parts) != 3 {
			return [3]uint32{}, fmt.Errorf("%w: WorkgroupSize builtin is not a 3 component constant", ErrMalformedKernelBinary)
		}
		return m.resolveIDs(parts)
	}
	if size, ok := m.localSize[e.id]; ok {
		return size, nil
	}
	if ids, ok := m.localSizeID[e.id]; ok {
		return m.resolveIDs(ids[:])
	}
	return [3]uint32{}, fmt.Errorf("%w: compute entry point %q declares no workgroup size", ErrMalformedKernelBinary, e.name)
}

func (m *spirvModule) resolveIDs(ids []uint32) ([3]uint32, error) {
	var ret [3]uint32
	for i, id := range ids {
		v, ok := m.constants[id]
		if !ok {
			return ret, fmt.Errorf("%w: workgroup size refers to unknown constant %%%d", ErrMalformedKernelBinary, id)
		}
		ret[i] = v
	}
	return ret, nil
}
