package vkc

import (
	"fmt"
	"sort"
	"strings"
)

// ResourceKind is the type of resource a binding slot expects.
type ResourceKind int

const (
	KindStorageBuffer ResourceKind = iota + 1
	KindUniformBuffer
	KindStorageImage
	KindSampledImage
	KindSampler
	KindCombinedImageSampler
)

func (k ResourceKind) String() string {
	switch k {
	case KindStorageBuffer:
		return "storage-buffer"
	case KindUniformBuffer:
		return "uniform-buffer"
	case KindStorageImage:
		return "storage-image"
	case KindSampledImage:
		return "sampled-image"
	case KindSampler:
		return "sampler"
	case KindCombinedImageSampler:
		return "combined-image-sampler"
	default:
		return fmt.Sprintf("ResourceKind(%d)", int(k))
	}
}

// IsBuffer reports whether a buffer can be bound to a slot of this kind.
func (k ResourceKind) IsBuffer() bool {
	return k == KindStorageBuffer || k == KindUniformBuffer
}

// BindingSlot is one (set, binding) of a layout.
type BindingSlot struct {
	Set     int
	Binding int
	Kind    ResourceKind
	// Name is the debug name of the variable, empty when the kernel was stripped.
	Name string
}

func (b BindingSlot) String() string {
	if b.Name != "" {
		return fmt.Sprintf("%d.%d:%s(%s)", b.Set, b.Binding, b.Kind, b.Name)
	}
	return fmt.Sprintf("%d.%d:%s", b.Set, b.Binding, b.Kind)
}

// ResourceLayout is the ordered list of binding slots a kernel declares, sorted by set then
// binding. It can be reflected from a kernel or written out by hand as a schema.
type ResourceLayout []BindingSlot

// NewResourceLayout returns slots as a sorted layout.
func NewResourceLayout(slots ...BindingSlot) ResourceLayout {
	l := make(ResourceLayout, len(slots))
	copy(l, slots)
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].Set != l[j].Set {
			return l[i].Set < l[j].Set
		}
		return l[i].Binding < l[j].Binding
	})
	return l
}

// Lookup returns the slot at (set, binding).
func (l ResourceLayout) Lookup(set, binding int) (BindingSlot, bool) {
	for _, s := range l {
		if s.Set == set && s.Binding == binding {
			return s, true
		}
	}
	return BindingSlot{}, false
}

// Sets returns the distinct set indices in ascending order.
func (l ResourceLayout) Sets() []int {
	ret := make([]int, 0)
	for _, s := range l {
		if len(ret) == 0 || ret[len(ret)-1] != s.Set {
			ret = append(ret, s.Set)
		}
	}
	return ret
}

// InSet returns the slots of one set.
func (l ResourceLayout) InSet(set int) ResourceLayout {
	ret := make(ResourceLayout, 0)
	for _, s := range l {
		if s.Set == set {
			ret = append(ret, s)
		}
	}
	return ret
}

// Validate checks that the kernel's reflected layout declares exactly the slots of l with the
// same kinds. Names are not compared.
func (l ResourceLayout) Validate(reflected ResourceLayout) error {
	for _, want := range l {
		got, ok := reflected.Lookup(want.Set, want.Binding)
		if !ok {
			return fmt.Errorf("%w: kernel declares nothing at set %d binding %d", ErrLayoutMismatch, want.Set, want.Binding)
		}
		if got.Kind != want.Kind {
			return fmt.Errorf("%w: set %d binding %d is %s in kernel, schema expects %s", ErrLayoutMismatch, want.Set, want.Binding, got.Kind, want.Kind)
		}
	}
	for _, got := range reflected {
		if _, ok := l.Lookup(got.Set, got.Binding); !ok {
			return fmt.Errorf("%w: kernel declares %s which the schema lacks", ErrLayoutMismatch, got)
		}
	}
	return nil
}

func (l ResourceLayout) String() string {
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
