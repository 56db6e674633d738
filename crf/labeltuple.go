package crf

// LabelTuple is an ordered window of class IDs, leftmost oldest. Tuples of
// length up to the model window parameterize the cliques of the chain.
type LabelTuple []int

// Pack encodes the tuple as an integer in lexicographic order, leftmost
// element most significant: sum of labels[i] * C^(len-1-i).
func (t LabelTuple) Pack(numClasses int) int {
	id := 0
	for _, y := range t {
		id = id*numClasses + y
	}
	return id
}

// UnpackLabelTuple decodes a packed tuple ID back into labels.
func UnpackLabelTuple(id, length, numClasses int) LabelTuple {
	t := make(LabelTuple, length)
	for i := length - 1; i >= 0; i-- {
		t[i] = id % numClasses
		id /= numClasses
	}
	return t
}

// Suffix returns the last k labels of the tuple.
func (t LabelTuple) Suffix(k int) LabelTuple {
	return t[len(t)-k:]
}

// Equal reports structural equality.
func (t LabelTuple) Equal(o LabelTuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

// Extends reports whether one tuple is a suffix of the other.
func (t LabelTuple) Extends(o LabelTuple) bool {
	if len(t) < len(o) {
		return o.Extends(t)
	}
	return t.Suffix(len(o)).Equal(o)
}

// LabelTupleIndex maps label tuples of a fixed length to dense IDs. In
// observed-only mode it holds only the tuples exercised by training data;
// otherwise the full Cartesian product.
type LabelTupleIndex struct {
	Length     int
	NumClasses int
	toID       map[int]int
	tuples     []LabelTuple
}

// NewLabelTupleIndex creates an empty index for tuples of the given length.
func NewLabelTupleIndex(length, numClasses int) *LabelTupleIndex {
	return &LabelTupleIndex{
		Length:     length,
		NumClasses: numClasses,
		toID:       make(map[int]int),
	}
}

// AllLabelTuples creates an index over every tuple of the given length, in
// packed order, so dense ID equals packed ID.
func AllLabelTuples(length, numClasses int) *LabelTupleIndex {
	ix := NewLabelTupleIndex(length, numClasses)
	n := 1
	for range length {
		n *= numClasses
	}
	for id := range n {
		ix.IndexOfOrAdd(UnpackLabelTuple(id, length, numClasses))
	}
	return ix
}

// IndexOf returns the dense ID of a tuple, or -1 if not indexed.
func (ix *LabelTupleIndex) IndexOf(t LabelTuple) int {
	if id, ok := ix.toID[t.Pack(ix.NumClasses)]; ok {
		return id
	}
	return -1
}

// IndexOfOrAdd returns the dense ID of a tuple, inserting it if new.
func (ix *LabelTupleIndex) IndexOfOrAdd(t LabelTuple) int {
	packed := t.Pack(ix.NumClasses)
	if id, ok := ix.toID[packed]; ok {
		return id
	}
	id := len(ix.tuples)
	ix.toID[packed] = id
	cp := make(LabelTuple, len(t))
	copy(cp, t)
	ix.tuples = append(ix.tuples, cp)
	return id
}

// Get returns the tuple for a dense ID.
func (ix *LabelTupleIndex) Get(id int) LabelTuple {
	return ix.tuples[id]
}

// Size returns the number of indexed tuples.
func (ix *LabelTupleIndex) Size() int {
	return len(ix.tuples)
}

// addWithSuffixes inserts a full window into the last index and every
// proper suffix into the index of its own length. Observed-only training
// closes the indices under suffixing, not prefixing.
func addWithSuffixes(window LabelTuple, indices []*LabelTupleIndex) {
	for k := 1; k <= len(window); k++ {
		indices[k-1].IndexOfOrAdd(window.Suffix(k))
	}
}
