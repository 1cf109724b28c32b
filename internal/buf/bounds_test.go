package buf

import (
	"errors"
	"math"
	"testing"

	"github.com/artifactkit/artifactkit/pkg/types"
)

func TestAddOverflowSafe(t *testing.T) {
	if sum, ok := AddOverflowSafe(10, 5); !ok || sum != 15 {
		t.Fatalf("AddOverflowSafe(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddOverflowSafe(math.MaxInt, 1); ok {
		t.Fatalf("expected overflow when adding to MaxInt")
	}
	if _, ok := AddOverflowSafe(-1, 5); ok {
		t.Fatalf("expected rejection of negative length")
	}
}

func TestMulOverflowSafe(t *testing.T) {
	if n, ok := MulOverflowSafe(12, 8); !ok || n != 96 {
		t.Fatalf("MulOverflowSafe(12,8)=%d,%v want 96,true", n, ok)
	}
	if n, ok := MulOverflowSafe(0, 8); !ok || n != 0 {
		t.Fatalf("MulOverflowSafe(0,8)=%d,%v want 0,true", n, ok)
	}
	if _, ok := MulOverflowSafe(math.MaxInt/2, 4); ok {
		t.Fatalf("expected overflow for MaxInt/2 * 4")
	}
	if _, ok := MulOverflowSafe(-3, 4); ok {
		t.Fatalf("expected rejection of negative count")
	}
}

func TestCheckListBounds(t *testing.T) {
	end, err := CheckListBounds(64, 8, 6, 4)
	if err != nil || end != 32 {
		t.Fatalf("CheckListBounds(64,8,6,4)=%d,%v want 32,nil", end, err)
	}

	if _, err := CheckListBounds(16, 8, 4, 4); !errors.Is(err, types.ErrTruncated) {
		t.Fatalf("list past buffer end: got %v, want ErrTruncated", err)
	}
	if _, err := CheckListBounds(16, 0, -1, 4); !errors.Is(err, types.ErrSchema) {
		t.Fatalf("negative count: got %v, want ErrSchema", err)
	}
	if _, err := CheckListBounds(16, 0, math.MaxInt, 8); !errors.Is(err, types.ErrSchema) {
		t.Fatalf("count*size overflow: got %v, want ErrSchema", err)
	}
	if _, err := CheckListBounds(16, math.MaxInt, 1, 1); !errors.Is(err, types.ErrSchema) {
		t.Fatalf("offset+size overflow: got %v, want ErrSchema", err)
	}
}

func TestSliceAndHas(t *testing.T) {
	data := []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15}
	got, ok := Slice(data, 2, 3)
	if !ok || len(got) != 3 || got[0] != 0x12 {
		t.Fatalf("Slice(data,2,3)=%v,%v", got, ok)
	}
	if _, ok := Slice(data, 5, 2); ok {
		t.Fatalf("Slice should fail past the end of the buffer")
	}
	if _, ok := Slice(data, -1, 1); ok {
		t.Fatalf("Slice should reject a negative offset")
	}
	if _, ok := Slice(data, 1, -1); ok {
		t.Fatalf("Slice should reject a negative length")
	}
	if _, ok := Slice(data, 6, 0); !ok {
		t.Fatalf("empty slice at the end of the buffer is in bounds")
	}
	if Has(data, 4, 4) {
		t.Fatalf("Has should be false for an out-of-bounds range")
	}
	if !Has(data, 4, 2) {
		t.Fatalf("Has should be true for a valid range")
	}
}
