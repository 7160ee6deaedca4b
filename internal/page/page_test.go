package page

import "testing"

func TestAllocContPagesContiguousAndWritable(t *testing.T) {
	a := New(1 << 20)

	base, err := a.AllocContPages(2) // 4 pages
	if err != nil {
		t.Fatalf("AllocContPages: %v", err)
	}
	if base%Size != 0 {
		t.Fatalf("base %#x not page aligned", base)
	}

	kva := a.KVA(base, 4*Size)
	if len(kva) != 4*Size {
		t.Fatalf("KVA length = %d, want %d", len(kva), 4*Size)
	}
	kva[0] = 0xAB
	kva[4*Size-1] = 0xCD

	// a second window into the same region must observe the writes
	again := a.KVA(base+3*Size, Size)
	if again[Size-1] != 0xCD {
		t.Fatalf("second window read %#x, want 0xcd", again[Size-1])
	}

	a.FreeContPages(base, 2)
}

func TestKVAOutOfRangePanics(t *testing.T) {
	a := New(0)
	base, _ := a.AllocPage()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range KVA")
		}
	}()
	a.KVA(base, Size+1)
}

func TestKVAUnmappedPanics(t *testing.T) {
	a := New(0)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unmapped address")
		}
	}()
	a.KVA(0x1000, 8)
}

func TestRefUnref(t *testing.T) {
	a := New(0)
	addr, _ := a.AllocPage()
	a.Ref(addr)
	if a.Unref(addr) {
		t.Fatalf("Unref reported zero after only one extra Ref")
	}
	if !a.Unref(addr) {
		t.Fatalf("Unref should have reported zero")
	}
}

func TestFreeContPagesWrongBasePanics(t *testing.T) {
	a := New(0)
	base, _ := a.AllocContPages(1)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic freeing from a non-base address")
		}
	}()
	a.FreeContPages(base+Size, 1)
}
