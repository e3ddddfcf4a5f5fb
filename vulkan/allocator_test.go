//go:build cgo

package vulkan

import (
	"testing"
)

func TestAlign(t *testing.T) {
	if makeAlignUp(12, 3) != 12 {
		t.Fail()
	}

	if makeAlignUp(10, 3) != 12 {
		t.Fail()
	}

	if makeAlignUp(10, 0) != 10 {
		t.Fail()
	}
}

func TestAllocator(t *testing.T) {

	a := LinearAllocator{Size: 1024}

	ra := a.Allocate(2048, 1)
	if ra != nil {
		t.Error("Failed first allocation")
	}

	ra = a.Allocate(512, 1)
	fa := ra
	if ra == nil || ra.Offset != 0 {
		t.Error("Failed 2nd allocation")
	}

	ra = a.Allocate(768, 1)
	if ra != nil {
		t.Error("Failed 3rd allocation")
	}

	ra = a.Allocate(500, 1)
	k := ra
	if ra == nil || ra.Offset != 512 {
		t.Error("Failed 4th allocation")
	}

	ra = a.Allocate(50, 1)
	if ra != nil {
		t.Error("Failed 5th allocation")
	}

	ra = a.Allocate(5, 1)
	if ra == nil || ra.Offset != 1012 {
		t.Error("Failed 6th allocation")
	}

	ra = a.Allocate(20, 1)
	if ra != nil {
		t.Error("Failed 7th allocation")
	}

	a.Free(k)
	t.Logf("Free %s", a.String())
	ra = a.Allocate(500, 1)
	if ra == nil || ra.Offset != 512 {
		t.Error("Failed 8th allocation")
	}

	a.Free(fa)
	t.Log(a.String())
	ra = a.Allocate(20, 1)
	if ra == nil || ra.Offset != 0 {
		t.Error("Failed 9th allocation")
	}

	ra = a.Allocate(40, 1)
	if ra == nil || ra.Offset != 20 {
		t.Error("Failed 10th allocation")
	}

	ra = a.Allocate(12, 1)
	if ra == nil {
		t.Error("Failed 11th allocation")
	}
	ra = a.Allocate(500, 1)
	if ra != nil {
		t.Error("Failed 12th allocation")
	}
	ra = a.Allocate(5, 1)
	if ra == nil {
		t.Error("Failed 13th allocation")
	}
	t.Log(a.String())
}

func TestAllocatorAlignment(t *testing.T) {
	a := LinearAllocator{Size: 256}

	first := a.Allocate(10, 64)
	second := a.Allocate(10, 64)
	if first == nil || second == nil {
		t.Fatalf("allocations failed: %v", a.String())
	}
	if first.Offset != 0 || second.Offset != 64 {
		t.Errorf("offsets = %d, %d, want 0, 64", first.Offset, second.Offset)
	}

	// 64 + 10 aligns up to 128, leaving exactly 128 bytes
	if a.Allocate(128, 64) == nil {
		t.Errorf("128 aligned bytes should fit after %v", a.String())
	}
	if a.Allocate(1, 64) != nil {
		t.Errorf("block should be full: %v", a.String())
	}
	if a.Used() != 148 {
		t.Errorf("Used = %d, want 148", a.Used())
	}

	a.Free(first)
	a.Free(first)
	if a.Empty() {
		t.Error("allocator should still hold two ranges")
	}
	if got := a.Allocate(0, 1); got != nil {
		t.Errorf("zero sized allocation = %v, want nil", got)
	}
}
