package vkc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/celer/vkc/internal/spirvasm"
)

func TestLoadKernelPrime(t *testing.T) {
	k, err := LoadKernel(spirvasm.Prime(64))
	if err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	if len(k.ID) != 64 {
		t.Errorf("ID = %q, want 64 hex characters", k.ID)
	}

	e, err := k.EntryPoint("main_cs")
	if err != nil {
		t.Fatalf("EntryPoint: %v", err)
	}
	if e.WorkgroupSize != [3]uint32{64, 1, 1} {
		t.Errorf("WorkgroupSize = %v, want [64 1 1]", e.WorkgroupSize)
	}
	if e.Invocations() != 64 {
		t.Errorf("Invocations = %d, want 64", e.Invocations())
	}
	want := NewResourceLayout(BindingSlot{Set: 0, Binding: 0, Kind: KindStorageBuffer, Name: "values"})
	if err := want.Validate(e.Layout); err != nil {
		t.Errorf("layout %s: %v", e.Layout, err)
	}
	if e.Layout[0].Name != "values" {
		t.Errorf("binding name = %q, want values", e.Layout[0].Name)
	}
}

func TestLoadKernelByteOrder(t *testing.T) {
	opts := spirvasm.Options{Entry: "main_cs", LocalSize: [3]uint32{8, 4, 2}}
	little, err := LoadKernel(spirvasm.Compute(opts))
	if err != nil {
		t.Fatalf("little endian: %v", err)
	}
	opts.BigEndian = true
	big, err := LoadKernel(spirvasm.Compute(opts))
	if err != nil {
		t.Fatalf("big endian: %v", err)
	}
	if little.ID != big.ID {
		t.Errorf("byte order changed kernel identity: %s != %s", little.ID, big.ID)
	}
	if got := big.EntryPoints[0].WorkgroupSize; got != [3]uint32{8, 4, 2} {
		t.Errorf("WorkgroupSize = %v", got)
	}
}

func TestKernelWorkgroupSize(t *testing.T) {
	tests := []struct {
		name string
		opts spirvasm.Options
		want [3]uint32
	}{
		{"local size", spirvasm.Options{LocalSize: [3]uint32{768, 1, 1}}, [3]uint32{768, 1, 1}},
		{"local size id", spirvasm.Options{LocalSize: [3]uint32{16, 16, 1}, LocalSizeID: true}, [3]uint32{16, 16, 1}},
		{"builtin overrides mode", spirvasm.Options{LocalSize: [3]uint32{1, 1, 1}, WorkgroupBuiltin: &[3]uint32{32, 2, 1}}, [3]uint32{32, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := LoadKernel(spirvasm.Compute(tt.opts))
			if err != nil {
				t.Fatalf("LoadKernel: %v", err)
			}
			e, err := k.EntryPoint("main")
			if err != nil {
				t.Fatalf("EntryPoint: %v", err)
			}
			if e.WorkgroupSize != tt.want {
				t.Errorf("WorkgroupSize = %v, want %v", e.WorkgroupSize, tt.want)
			}
		})
	}
}

func TestKernelResourceKinds(t *testing.T) {
	k, err := LoadKernel(spirvasm.Compute(spirvasm.Options{
		LocalSize: [3]uint32{1, 1, 1},
		Bindings: []spirvasm.Binding{
			{Set: 1, Binding: 0, Kind: spirvasm.Sampler},
			{Set: 0, Binding: 3, Kind: spirvasm.CombinedImageSampler},
			{Set: 0, Binding: 0, Kind: spirvasm.StorageBuffer},
			{Set: 0, Binding: 1, Kind: spirvasm.UniformBuffer},
			{Set: 0, Binding: 2, Kind: spirvasm.LegacyStorageBuffer},
			{Set: 1, Binding: 1, Kind: spirvasm.StorageImage},
			{Set: 1, Binding: 2, Kind: spirvasm.SampledImage},
		},
	}))
	if err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	want := NewResourceLayout(
		BindingSlot{Set: 0, Binding: 0, Kind: KindStorageBuffer},
		BindingSlot{Set: 0, Binding: 1, Kind: KindUniformBuffer},
		BindingSlot{Set: 0, Binding: 2, Kind: KindStorageBuffer},
		BindingSlot{Set: 0, Binding: 3, Kind: KindCombinedImageSampler},
		BindingSlot{Set: 1, Binding: 0, Kind: KindSampler},
		BindingSlot{Set: 1, Binding: 1, Kind: KindStorageImage},
		BindingSlot{Set: 1, Binding: 2, Kind: KindSampledImage},
	)
	got := k.EntryPoints[0].Layout
	if err := want.Validate(got); err != nil {
		t.Fatalf("layout %s: %v", got, err)
	}
	for i := range want {
		if got[i].Set != want[i].Set || got[i].Binding != want[i].Binding {
			t.Errorf("slot %d = %s, want %s (layout not sorted)", i, got[i], want[i])
		}
	}
	if sets := got.Sets(); len(sets) != 2 || sets[0] != 0 || sets[1] != 1 {
		t.Errorf("Sets = %v, want [0 1]", sets)
	}
}

func TestKernelInterfaceFiltering(t *testing.T) {
	bindings := []spirvasm.Binding{
		{Set: 0, Binding: 0, Kind: spirvasm.StorageBuffer},
		{Set: 0, Binding: 1, Kind: spirvasm.StorageBuffer, Unused: true},
	}
	tests := []struct {
		version uint32
		want    int
	}{
		{spirvasm.Version13, 2},
		{spirvasm.Version14, 1},
	}
	for _, tt := range tests {
		k, err := LoadKernel(spirvasm.Compute(spirvasm.Options{Version: tt.version, LocalSize: [3]uint32{1, 1, 1}, Bindings: bindings}))
		if err != nil {
			t.Fatalf("version %x: %v", tt.version, err)
		}
		if got := len(k.EntryPoints[0].Layout); got != tt.want {
			t.Errorf("version %x: %d bindings, want %d", tt.version, got, tt.want)
		}
	}
}

func TestKernelEntryPointErrors(t *testing.T) {
	k, err := LoadKernel(spirvasm.Compute(spirvasm.Options{Entry: "main_cs", LocalSize: [3]uint32{1, 1, 1}, Fragment: "main_fs"}))
	if err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	if len(k.EntryPoints) != 2 {
		t.Fatalf("%d entry points, want 2", len(k.EntryPoints))
	}
	for _, name := range []string{"missing", "main_fs"} {
		if _, err := k.EntryPoint(name); !errors.Is(err, ErrEntryPointNotFound) {
			t.Errorf("EntryPoint(%q) error = %v, want ErrEntryPointNotFound", name, err)
		}
	}
}

func TestLoadKernelMalformed(t *testing.T) {
	good := spirvasm.Prime(64)

	// OpName claiming three words with only its first present
	truncated := append(append([]byte(nil), good...), 0x05, 0x00, 0x03, 0x00)
	badLength := append([]byte(nil), good...)
	// first instruction after the header claims to run past the end
	badLength[20], badLength[21], badLength[22], badLength[23] = 0x11, 0x00, 0xff, 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unaligned", good[:len(good)-1]},
		{"short header", good[:12]},
		{"bad magic", append([]byte{1, 2, 3, 4}, good[4:]...)},
		{"truncated instruction", truncated},
		{"bad length", badLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadKernel(tt.data); !errors.Is(err, ErrMalformedKernelBinary) {
				t.Errorf("error = %v, want ErrMalformedKernelBinary", err)
			}
		})
	}
}

func TestLoadKernelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prime.spv")
	if err := os.WriteFile(path, spirvasm.Prime(64), 0o644); err != nil {
		t.Fatal(err)
	}
	k, err := LoadKernelFile(path)
	if err != nil {
		t.Fatalf("LoadKernelFile: %v", err)
	}
	if k.Source != path {
		t.Errorf("Source = %q, want %q", k.Source, path)
	}

	if _, err := LoadKernelFile(filepath.Join(t.TempDir(), "missing.spv")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLayoutValidate(t *testing.T) {
	reflected := NewResourceLayout(BindingSlot{Set: 0, Binding: 0, Kind: KindStorageBuffer})
	tests := []struct {
		name   string
		schema ResourceLayout
		ok     bool
	}{
		{"match", NewResourceLayout(BindingSlot{Set: 0, Binding: 0, Kind: KindStorageBuffer, Name: "other"}), true},
		{"wrong kind", NewResourceLayout(BindingSlot{Set: 0, Binding: 0, Kind: KindUniformBuffer}), false},
		{"missing in kernel", NewResourceLayout(
			BindingSlot{Set: 0, Binding: 0, Kind: KindStorageBuffer},
			BindingSlot{Set: 0, Binding: 1, Kind: KindStorageBuffer}), false},
		{"missing in schema", NewResourceLayout(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate(reflected)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrLayoutMismatch) {
				t.Errorf("error = %v, want ErrLayoutMismatch", err)
			}
		})
	}
}
