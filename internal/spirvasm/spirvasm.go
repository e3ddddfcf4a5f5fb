// Package spirvasm assembles small SPIR-V compute modules. The output is structurally valid
// SPIR-V, enough for reflection and the software device, but the functions have empty bodies.
package spirvasm

import "encoding/binary"

// Kind is the resource declared for a binding.
type Kind int

const (
	StorageBuffer Kind = iota
	UniformBuffer
	// LegacyStorageBuffer is a Uniform storage class struct decorated BufferBlock, the pre 1.3
	// spelling of a storage buffer.
	LegacyStorageBuffer
	StorageImage
	SampledImage
	Sampler
	CombinedImageSampler
)

// Binding is a descriptor variable.
type Binding struct {
	Set     uint32
	Binding uint32
	Kind    Kind
	Name    string
	// Unused leaves the variable out of the entry point interface.
	Unused bool
}

// Versions usable in Options.Version.
const (
	Version10 uint32 = 0x00010000
	Version13 uint32 = 0x00010300
	Version14 uint32 = 0x00010400
)

// Options describes the module to assemble.
type Options struct {
	// Version defaults to Version10.
	Version uint32
	// Entry is the compute entry point name, "main" when empty.
	Entry     string
	LocalSize [3]uint32
	// LocalSizeID emits LocalSizeId with constant operands instead of LocalSize.
	LocalSizeID bool
	// WorkgroupBuiltin, when set, emits a constant composite decorated BuiltIn WorkgroupSize.
	WorkgroupBuiltin *[3]uint32
	// Fragment, when set, adds a fragment entry point of that name.
	Fragment  string
	Bindings  []Binding
	BigEndian bool
}

const (
	opName                = 5
	opMemoryModel         = 14
	opEntryPoint          = 15
	opExecutionMode       = 16
	opCapability          = 17
	opTypeVoid            = 19
	opTypeInt             = 21
	opTypeFloat           = 22
	opTypeImage           = 25
	opTypeSampler         = 26
	opTypeSampledImage    = 27
	opTypeRuntimeArray    = 29
	opTypeStruct          = 30
	opTypePointer         = 32
	opTypeFunction        = 33
	opConstant            = 43
	opConstantComposite   = 44
	opFunction            = 54
	opFunctionEnd         = 56
	opVariable            = 59
	opDecorate            = 71
	opMemberDecorate      = 72
	opLabel               = 248
	opReturn              = 253
	opExecutionModeID     = 331
	capabilityShader      = 1
	addressingLogical     = 0
	memoryModelGLSL450    = 1
	modelFragment         = 4
	modelGLCompute        = 5
	modeLocalSize         = 17
	modeLocalSizeID       = 38
	modeOriginUpperLeft   = 7
	decorationBlock       = 2
	decorationBufferBlock = 3
	decorationArrayStride = 6
	decorationBuiltIn     = 11
	decorationBinding     = 33
	decorationSet         = 34
	decorationOffset      = 35
	builtInWorkgroupSize  = 25
	storageUniformConst   = 0
	storageUniform        = 2
	storageStorageBuffer  = 12
	imageDim2D            = 1
)

type section []uint32

func (s *section) emit(op uint32, operands ...uint32) {
	*s = append(*s, uint32(len(operands)+1)<<16|op)
	*s = append(*s, operands...)
}

// str packs a literal string as SPIR-V words: nul terminated, padded to a word.
func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

type assembler struct {
	next uint32

	caps, entries, modes, names, decorations, types, globals, functions section
}

func (a *assembler) id() uint32 {
	a.next++
	return a.next
}

// Words assembles opts into SPIR-V words in host order.
func Words(opts Options) []uint32 {
	a := &assembler{}
	if opts.Entry == "" {
		opts.Entry = "main"
	}
	version := opts.Version
	if version == 0 {
		version = Version10
	}

	a.caps.emit(opCapability, capabilityShader)
	a.caps.emit(opMemoryModel, addressingLogical, memoryModelGLSL450)

	tVoid := a.id()
	a.types.emit(opTypeVoid, tVoid)
	tFunc := a.id()
	a.types.emit(opTypeFunction, tFunc, tVoid)
	tUint := a.id()
	a.types.emit(opTypeInt, tUint, 32, 0)

	constants := map[uint32]uint32{}
	constant := func(v uint32) uint32 {
		if id, ok := constants[v]; ok {
			return id
		}
		id := a.id()
		a.types.emit(opConstant, tUint, id, v)
		constants[v] = id
		return id
	}

	var iface []uint32
	for _, b := range opts.Bindings {
		v := a.binding(b, tUint)
		if !b.Unused {
			iface = append(iface, v)
		}
	}

	main := a.function(tVoid, tFunc)
	a.names.emit(opName, append([]uint32{main}, str(opts.Entry)...)...)
	a.entries.emit(opEntryPoint, append(append([]uint32{modelGLCompute, main}, str(opts.Entry)...), iface...)...)

	if opts.LocalSizeID {
		a.modes.emit(opExecutionModeID, main, modeLocalSizeID,
			constant(opts.LocalSize[0]), constant(opts.LocalSize[1]), constant(opts.LocalSize[2]))
	} else {
		a.modes.emit(opExecutionMode, main, modeLocalSize, opts.LocalSize[0], opts.LocalSize[1], opts.LocalSize[2])
	}

	if opts.WorkgroupBuiltin != nil {
		w := *opts.WorkgroupBuiltin
		x, y, z := constant(w[0]), constant(w[1]), constant(w[2])
		tVec := a.id()
		a.types.emit(23, tVec, tUint, 3) // OpTypeVector
		c := a.id()
		a.types.emit(opConstantComposite, tVec, c, x, y, z)
		a.decorations.emit(opDecorate, c, decorationBuiltIn, builtInWorkgroupSize)
	}

	if opts.Fragment != "" {
		frag := a.function(tVoid, tFunc)
		a.entries.emit(opEntryPoint, append([]uint32{modelFragment, frag}, str(opts.Fragment)...)...)
		a.modes.emit(opExecutionMode, frag, modeOriginUpperLeft)
	}

	out := []uint32{0x07230203, version, 0, a.next + 1, 0}
	for _, s := range []section{a.caps, a.entries, a.modes, a.names, a.decorations, a.types, a.globals, a.functions} {
		out = append(out, s...)
	}
	return out
}

func (a *assembler) function(tVoid, tFunc uint32) uint32 {
	fn := a.id()
	a.functions.emit(opFunction, tVoid, fn, 0, tFunc)
	a.functions.emit(opLabel, a.id())
	a.functions.emit(opReturn)
	a.functions.emit(opFunctionEnd)
	return fn
}

// binding declares the type chain and variable for b and returns the variable id.
func (a *assembler) binding(b Binding, tUint uint32) uint32 {
	var pointee, storage uint32
	switch b.Kind {
	case StorageBuffer, UniformBuffer, LegacyStorageBuffer:
		tArr := a.id()
		a.types.emit(opTypeRuntimeArray, tArr, tUint)
		a.decorations.emit(opDecorate, tArr, decorationArrayStride, 4)
		tStruct := a.id()
		a.types.emit(opTypeStruct, tStruct, tArr)
		a.decorations.emit(opMemberDecorate, tStruct, 0, decorationOffset, 0)
		switch b.Kind {
		case StorageBuffer:
			a.decorations.emit(opDecorate, tStruct, decorationBlock)
			storage = storageStorageBuffer
		case UniformBuffer:
			a.decorations.emit(opDecorate, tStruct, decorationBlock)
			storage = storageUniform
		default:
			a.decorations.emit(opDecorate, tStruct, decorationBufferBlock)
			storage = storageUniform
		}
		pointee = tStruct
	case StorageImage, SampledImage, CombinedImageSampler:
		tFloat := a.id()
		a.types.emit(opTypeFloat, tFloat, 32)
		tImage := a.id()
		sampled := uint32(1)
		format := uint32(0)
		if b.Kind == StorageImage {
			sampled, format = 2, 1 // Rgba32f
		}
		a.types.emit(opTypeImage, tImage, tFloat, imageDim2D, 0, 0, 0, sampled, format)
		pointee = tImage
		if b.Kind == CombinedImageSampler {
			tSampled := a.id()
			a.types.emit(opTypeSampledImage, tSampled, tImage)
			pointee = tSampled
		}
		storage = storageUniformConst
	case Sampler:
		tSampler := a.id()
		a.types.emit(opTypeSampler, tSampler)
		pointee = tSampler
		storage = storageUniformConst
	}

	tPtr := a.id()
	a.types.emit(opTypePointer, tPtr, storage, pointee)
	v := a.id()
	a.globals.emit(opVariable, tPtr, v, storage)
	a.decorations.emit(opDecorate, v, decorationSet, b.Set)
	a.decorations.emit(opDecorate, v, decorationBinding, b.Binding)
	if b.Name != "" {
		a.names.emit(opName, append([]uint32{v}, str(b.Name)...)...)
	}
	return v
}

// Compute assembles opts into a SPIR-V binary.
func Compute(opts Options) []byte {
	words := Words(opts)
	var order binary.ByteOrder = binary.LittleEndian
	if opts.BigEndian {
		order = binary.BigEndian
	}
	out := make([]byte, len(words)*4)
	for i, w := range words {
		order.PutUint32(out[i*4:], w)
	}
	return out
}

// Prime assembles a module shaped like the prime kernel: entry point main_cs with one storage
// buffer at set 0, binding 0.
func Prime(localSize uint32) []byte {
	return Compute(Options{
		Version:   Version13,
		Entry:     "main_cs",
		LocalSize: [3]uint32{localSize, 1, 1},
		Bindings:  []Binding{{Set: 0, Binding: 0, Kind: StorageBuffer, Name: "values"}},
	})
}
