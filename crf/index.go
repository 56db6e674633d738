// Package crf implements a higher-order linear-chain Conditional Random
// Field for sequence labeling.
//
// The model conditions each label on up to Window-1 previous labels via
// sparse binary features partitioned by clique order. Inference runs
// forward-backward message passing over a chain of log-space factor
// tables; training minimizes the regularized negative log conditional
// likelihood with quasi-Newton or stochastic optimizers.
package crf

// Index maps between strings and dense integer IDs. Insertion order
// defines the IDs, which are stable for the lifetime of the index.
type Index struct {
	ToID   map[string]int `json:"to_id"`
	ToStr  []string       `json:"to_str"`
	locked bool
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{ToID: make(map[string]int)}
}

// IndexOf returns the ID for a string, or -1 if not present.
func (ix *Index) IndexOf(s string) int {
	if id, ok := ix.ToID[s]; ok {
		return id
	}
	return -1
}

// IndexOfOrAdd returns the ID for a string, inserting it if new.
// On a locked index it behaves like IndexOf.
func (ix *Index) IndexOfOrAdd(s string) int {
	if id, ok := ix.ToID[s]; ok {
		return id
	}
	if ix.locked {
		return -1
	}
	id := len(ix.ToStr)
	ix.ToID[s] = id
	ix.ToStr = append(ix.ToStr, s)
	return id
}

// Get returns the string for an ID. It panics on an out-of-range ID,
// which indicates engine corruption rather than bad input.
func (ix *Index) Get(id int) string {
	return ix.ToStr[id]
}

// Size returns the number of entries.
func (ix *Index) Size() int {
	return len(ix.ToStr)
}

// Lock freezes the index; subsequent IndexOfOrAdd calls no longer insert.
// Training locks the feature index before handing the model to decoders.
func (ix *Index) Lock() {
	ix.locked = true
}

// Contains reports whether the string is indexed.
func (ix *Index) Contains(s string) bool {
	_, ok := ix.ToID[s]
	return ok
}

// rebuild restores the string-to-ID map after deserialization.
func (ix *Index) rebuild() {
	ix.ToID = make(map[string]int, len(ix.ToStr))
	for i, s := range ix.ToStr {
		ix.ToID[s] = i
	}
}
