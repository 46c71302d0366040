package buffer

import "testing"

func TestGrowableAppendAndEnd(t *testing.T) {
	t.Parallel()

	b := New()
	start := b.End()
	if start != 0 {
		t.Fatalf("End() on empty buffer = %d, want 0", start)
	}

	b.Append([]byte{1, 2, 3})
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	if b.End() != 3 {
		t.Fatalf("End() = %d, want 3", b.End())
	}

	b.AppendByte(4)
	if got := b.Bytes(); len(got) != 4 || got[3] != 4 {
		t.Fatalf("Bytes() = %v, want [1 2 3 4]", got)
	}
}

func TestGrowableSetPatchesInPlace(t *testing.T) {
	t.Parallel()

	b := New()
	start := b.End()
	b.Append([]byte{0xCE, 0, 0, 0, 0})
	b.Append([]byte{0x82, 0x00, 0x64, 0x01, 0x01})

	size := b.End() - start - 5
	b.Set(start+1, byte(size>>24))
	b.Set(start+2, byte(size>>16))
	b.Set(start+3, byte(size>>8))
	b.Set(start+4, byte(size))

	want := []byte{0xCE, 0x00, 0x00, 0x00, 0x05, 0x82, 0x00, 0x64, 0x01, 0x01}
	got := b.Bytes()
	if len(got) != len(want) {
		t.Fatalf("Bytes() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Bytes()[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestGrowableSetOutOfRangePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("Set out of range did not panic")
		}
	}()

	b := New()
	b.Append([]byte{1})
	b.Set(5, 0)
}

func TestGrowableDiscardShiftsContent(t *testing.T) {
	t.Parallel()

	b := New()
	b.Append([]byte{1, 2, 3, 4, 5})
	b.Discard(2)

	want := []byte{3, 4, 5}
	got := b.Bytes()
	if len(got) != len(want) {
		t.Fatalf("Bytes() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Bytes()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestGrowableDiscardMoreThanLenEmpties(t *testing.T) {
	t.Parallel()

	b := New()
	b.Append([]byte{1, 2, 3})
	b.Discard(100)

	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestGrowableResetEmptiesButKeepsStorage(t *testing.T) {
	t.Parallel()

	b := New()
	b.Append([]byte{1, 2, 3, 4, 5})
	cap1 := cap(b.data)

	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", b.Len())
	}
	if cap(b.data) != cap1 {
		t.Fatalf("Reset reallocated storage: cap = %d, want %d", cap(b.data), cap1)
	}

	b.Append([]byte{9})
	if got := b.Bytes(); len(got) != 1 || got[0] != 9 {
		t.Fatalf("Bytes() after reuse = %v, want [9]", got)
	}
}

func TestGrowableSliceAliasesStorage(t *testing.T) {
	t.Parallel()

	b := New()
	b.Append([]byte{10, 20, 30, 40})

	s := b.Slice(1, 3)
	if len(s) != 2 || s[0] != 20 || s[1] != 30 {
		t.Fatalf("Slice(1,3) = %v, want [20 30]", s)
	}
}
