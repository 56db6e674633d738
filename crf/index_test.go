package crf

import "testing"

func TestIndex(t *testing.T) {
	ix := NewIndex()
	id0 := ix.IndexOfOrAdd("hello")
	id1 := ix.IndexOfOrAdd("world")
	id2 := ix.IndexOfOrAdd("hello") // duplicate

	if id0 != 0 || id1 != 1 || id2 != 0 {
		t.Errorf("IDs: %d, %d, %d; want 0, 1, 0", id0, id1, id2)
	}
	if ix.Size() != 2 {
		t.Errorf("Size = %d, want 2", ix.Size())
	}
	if ix.IndexOf("missing") != -1 {
		t.Error("IndexOf missing should return -1")
	}
	if ix.Get(1) != "world" {
		t.Errorf("Get(1) = %q, want world", ix.Get(1))
	}
}

func TestIndexLock(t *testing.T) {
	ix := NewIndex()
	ix.IndexOfOrAdd("a")
	ix.Lock()
	if got := ix.IndexOfOrAdd("b"); got != -1 {
		t.Errorf("locked IndexOfOrAdd = %d, want -1", got)
	}
	if ix.Size() != 1 {
		t.Errorf("Size after locked insert = %d, want 1", ix.Size())
	}
	if ix.IndexOfOrAdd("a") != 0 {
		t.Error("locked lookup of existing entry failed")
	}
}

func TestLabelTuplePacking(t *testing.T) {
	tuple := LabelTuple{2, 0, 1}
	packed := tuple.Pack(3)
	if packed != 2*9+0*3+1 {
		t.Errorf("Pack = %d, want %d", packed, 2*9+1)
	}
	back := UnpackLabelTuple(packed, 3, 3)
	if !back.Equal(tuple) {
		t.Errorf("Unpack = %v, want %v", back, tuple)
	}
}

func TestLabelTupleSuffixExtends(t *testing.T) {
	tuple := LabelTuple{2, 0, 1}
	if !tuple.Suffix(2).Equal(LabelTuple{0, 1}) {
		t.Errorf("Suffix(2) = %v", tuple.Suffix(2))
	}
	if !tuple.Extends(LabelTuple{0, 1}) {
		t.Error("tuple should extend its suffix")
	}
	if tuple.Extends(LabelTuple{2, 0}) {
		t.Error("tuple should not extend a non-suffix")
	}
}

func TestLabelTupleIndexObservedSuffixes(t *testing.T) {
	indices := []*LabelTupleIndex{
		NewLabelTupleIndex(1, 3),
		NewLabelTupleIndex(2, 3),
		NewLabelTupleIndex(3, 3),
	}
	addWithSuffixes(LabelTuple{2, 0, 1}, indices)

	if indices[2].IndexOf(LabelTuple{2, 0, 1}) < 0 {
		t.Error("full window not indexed")
	}
	if indices[1].IndexOf(LabelTuple{0, 1}) < 0 {
		t.Error("length-2 suffix not indexed")
	}
	if indices[0].IndexOf(LabelTuple{1}) < 0 {
		t.Error("length-1 suffix not indexed")
	}
	// Prefixes are not closed over.
	if indices[1].IndexOf(LabelTuple{2, 0}) >= 0 {
		t.Error("prefix should not be indexed")
	}
}

func TestAllLabelTuples(t *testing.T) {
	ix := AllLabelTuples(2, 3)
	if ix.Size() != 9 {
		t.Fatalf("Size = %d, want 9", ix.Size())
	}
	// Dense ID equals packed ID.
	for k := range ix.Size() {
		if ix.Get(k).Pack(3) != k {
			t.Errorf("tuple %d packs to %d", k, ix.Get(k).Pack(3))
		}
	}
}
