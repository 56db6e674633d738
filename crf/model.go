package crf

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Binary model format: a magic prefix and version, then length-prefixed
// records in a fixed order (label tuple indices, class index, feature
// index, flags, factory name, window, ragged weights, auxiliary
// sections). Every record carries explicit counts; readers reject any
// disagreement.
var modelMagic = [8]byte{'n', 'e', 'r', 't', 'a', 'g', 'm', 'd'}

const modelVersion uint32 = 1

// SaveClassifier writes the model to a file.
func SaveClassifier(c *Classifier, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("crf: creating model file: %v: %w", err, ErrResource)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := c.SerializeTo(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("crf: writing model file: %v: %w", err, ErrResource)
	}
	return nil
}

// LoadClassifier reads a model from a file, reconstructing its feature
// factory from the registered name.
func LoadClassifier(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crf: opening model file: %v: %w", err, ErrResource)
	}
	defer f.Close()
	c := &Classifier{dropped: make(map[string]bool)}
	if err := c.DeserializeFrom(bufio.NewReader(f)); err != nil {
		return nil, err
	}
	return c, nil
}

// SerializeTo writes the binary model.
func (c *Classifier) SerializeTo(w io.Writer) error {
	if _, err := w.Write(modelMagic[:]); err != nil {
		return wrapWrite(err)
	}
	if err := writeU32(w, modelVersion); err != nil {
		return err
	}

	// Label tuple indices, one per order.
	if err := writeU32(w, uint32(len(c.labelIndices))); err != nil {
		return err
	}
	for _, ix := range c.labelIndices {
		if err := writeU32(w, uint32(ix.Length)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(ix.NumClasses)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(ix.Size())); err != nil {
			return err
		}
		for k := range ix.Size() {
			for _, y := range ix.Get(k) {
				if err := writeU32(w, uint32(y)); err != nil {
					return err
				}
			}
		}
	}

	if err := writeStrings(w, c.classIndex.ToStr); err != nil {
		return err
	}
	if err := writeStrings(w, c.featureIndex.ToStr); err != nil {
		return err
	}

	flagsJSON, err := json.Marshal(c.Flags)
	if err != nil {
		return fmt.Errorf("crf: encoding flags: %v: %w", err, ErrFormat)
	}
	if err := writeBytes(w, flagsJSON); err != nil {
		return err
	}
	if err := writeString(w, c.factory.Name()); err != nil {
		return err
	}
	if err := writeU32(w, uint32(c.Flags.Window)); err != nil {
		return err
	}

	// Ragged weights with each feature's clique order.
	if err := writeU32(w, uint32(len(c.weights))); err != nil {
		return err
	}
	for f, row := range c.weights {
		if err := writeU32(w, uint32(c.featureOrder[f])); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(row))); err != nil {
			return err
		}
		for _, v := range row {
			if err := writeU64(w, math.Float64bits(v)); err != nil {
				return err
			}
		}
	}

	// Auxiliary sections, none at present.
	return writeU32(w, 0)
}

// DeserializeFrom reads the binary model, validating every record
// against its declared sizes.
func (c *Classifier) DeserializeFrom(r io.Reader) error {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("crf: reading model header: %v: %w", err, ErrFormat)
	}
	if magic != modelMagic {
		return fmt.Errorf("crf: bad model magic: %w", ErrFormat)
	}
	version, err := readU32(r)
	if err != nil {
		return err
	}
	if version != modelVersion {
		return fmt.Errorf("crf: unsupported model version %d: %w", version, ErrFormat)
	}

	numOrders, err := readU32(r)
	if err != nil {
		return err
	}
	c.labelIndices = make([]*LabelTupleIndex, numOrders)
	for o := range c.labelIndices {
		length, err := readU32(r)
		if err != nil {
			return err
		}
		if int(length) != o+1 {
			return fmt.Errorf("crf: tuple index %d has length %d: %w", o, length, ErrFormat)
		}
		numClasses, err := readU32(r)
		if err != nil {
			return err
		}
		size, err := readU32(r)
		if err != nil {
			return err
		}
		ix := NewLabelTupleIndex(int(length), int(numClasses))
		tuple := make(LabelTuple, length)
		for range size {
			for i := range tuple {
				y, err := readU32(r)
				if err != nil {
					return err
				}
				if y >= numClasses {
					return fmt.Errorf("crf: tuple label %d out of range: %w", y, ErrFormat)
				}
				tuple[i] = int(y)
			}
			ix.IndexOfOrAdd(tuple)
		}
		c.labelIndices[o] = ix
	}

	classes, err := readStrings(r)
	if err != nil {
		return err
	}
	c.classIndex = &Index{ToStr: classes}
	c.classIndex.rebuild()

	features, err := readStrings(r)
	if err != nil {
		return err
	}
	c.featureIndex = &Index{ToStr: features}
	c.featureIndex.rebuild()
	c.featureIndex.Lock()

	flagsJSON, err := readBytes(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(flagsJSON, &c.Flags); err != nil {
		return fmt.Errorf("crf: decoding flags: %v: %w", err, ErrFormat)
	}

	factoryName, err := readString(r)
	if err != nil {
		return err
	}
	c.factory, err = NewFeatureFactory(factoryName)
	if err != nil {
		return err
	}

	window, err := readU32(r)
	if err != nil {
		return err
	}
	if int(window) != c.Flags.Window || int(window) != len(c.labelIndices) {
		return fmt.Errorf("crf: window %d disagrees with flags and indices: %w", window, ErrFormat)
	}

	numWeights, err := readU32(r)
	if err != nil {
		return err
	}
	if int(numWeights) != c.featureIndex.Size() {
		return fmt.Errorf("crf: %d weight rows for %d features: %w", numWeights, c.featureIndex.Size(), ErrFormat)
	}
	c.featureOrder = make([]int, numWeights)
	c.weights = make([][]float64, numWeights)
	for f := range c.weights {
		ord, err := readU32(r)
		if err != nil {
			return err
		}
		if int(ord) >= len(c.labelIndices) {
			return fmt.Errorf("crf: feature order %d out of range: %w", ord, ErrFormat)
		}
		c.featureOrder[f] = int(ord)
		size, err := readU32(r)
		if err != nil {
			return err
		}
		if int(size) != c.labelIndices[ord].Size() {
			return fmt.Errorf("crf: weight row %d has %d entries, index has %d: %w",
				f, size, c.labelIndices[ord].Size(), ErrFormat)
		}
		row := make([]float64, size)
		for i := range row {
			bits, err := readU64(r)
			if err != nil {
				return err
			}
			row[i] = math.Float64frombits(bits)
		}
		c.weights[f] = row
	}

	numAux, err := readU32(r)
	if err != nil {
		return err
	}
	for range numAux {
		if _, err := readBytes(r); err != nil {
			return err
		}
	}

	c.backgroundID = c.classIndex.IndexOf(c.Flags.BackgroundSymbol)
	if c.backgroundID < 0 {
		return fmt.Errorf("crf: background symbol %q not in class index: %w",
			c.Flags.BackgroundSymbol, ErrFormat)
	}
	return nil
}

// WriteTextModel writes the human-readable dump: tab-separated sections
// carrying the same logical content as the binary form. Re-dumping a
// loaded dump reproduces it byte for byte.
func (c *Classifier) WriteTextModel(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#window\t%d\n", c.Flags.Window)
	fmt.Fprintf(bw, "#factory\t%s\n", c.factory.Name())
	flagsJSON, err := json.Marshal(c.Flags)
	if err != nil {
		return fmt.Errorf("crf: encoding flags: %v: %w", err, ErrFormat)
	}
	fmt.Fprintf(bw, "#flags\t%s\n", flagsJSON)

	fmt.Fprintf(bw, "#classes\t%d\n", c.classIndex.Size())
	for _, s := range c.classIndex.ToStr {
		fmt.Fprintln(bw, s)
	}

	for o, ix := range c.labelIndices {
		fmt.Fprintf(bw, "#tuples\t%d\t%d\n", o+1, ix.Size())
		for k := range ix.Size() {
			parts := make([]string, ix.Length)
			for i, y := range ix.Get(k) {
				parts[i] = strconv.Itoa(y)
			}
			fmt.Fprintln(bw, strings.Join(parts, "\t"))
		}
	}

	fmt.Fprintf(bw, "#features\t%d\n", c.featureIndex.Size())
	for f, s := range c.featureIndex.ToStr {
		fmt.Fprintf(bw, "%s\t%d\n", s, c.featureOrder[f])
	}

	fmt.Fprintf(bw, "#weights\t%d\n", len(c.weights))
	for _, row := range c.weights {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		fmt.Fprintln(bw, strings.Join(parts, "\t"))
	}
	if err := bw.Flush(); err != nil {
		return wrapWrite(err)
	}
	return nil
}

// ReadTextModel parses the dump produced by WriteTextModel.
func (c *Classifier) ReadTextModel(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	line := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", fmt.Errorf("crf: reading model dump: %v: %w", err, ErrResource)
			}
			return "", fmt.Errorf("crf: truncated model dump: %w", ErrFormat)
		}
		return sc.Text(), nil
	}
	header := func(name string) ([]string, error) {
		l, err := line()
		if err != nil {
			return nil, err
		}
		parts := strings.Split(l, "\t")
		if parts[0] != "#"+name {
			return nil, fmt.Errorf("crf: expected #%s section, got %q: %w", name, parts[0], ErrFormat)
		}
		return parts[1:], nil
	}

	h, err := header("window")
	if err != nil {
		return err
	}
	window, err := strconv.Atoi(h[0])
	if err != nil {
		return fmt.Errorf("crf: bad window %q: %w", h[0], ErrFormat)
	}

	h, err = header("factory")
	if err != nil {
		return err
	}
	if c.factory, err = NewFeatureFactory(h[0]); err != nil {
		return err
	}

	h, err = header("flags")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(strings.Join(h, "\t")), &c.Flags); err != nil {
		return fmt.Errorf("crf: decoding flags: %v: %w", err, ErrFormat)
	}
	if c.Flags.Window != window {
		return fmt.Errorf("crf: window %d disagrees with flags: %w", window, ErrFormat)
	}

	h, err = header("classes")
	if err != nil {
		return err
	}
	numClasses, err := strconv.Atoi(h[0])
	if err != nil {
		return fmt.Errorf("crf: bad class count: %w", ErrFormat)
	}
	c.classIndex = NewIndex()
	for range numClasses {
		l, err := line()
		if err != nil {
			return err
		}
		c.classIndex.IndexOfOrAdd(l)
	}

	c.labelIndices = make([]*LabelTupleIndex, window)
	for o := range window {
		h, err = header("tuples")
		if err != nil {
			return err
		}
		length, _ := strconv.Atoi(h[0])
		size, _ := strconv.Atoi(h[1])
		if length != o+1 {
			return fmt.Errorf("crf: tuple section %d has length %d: %w", o, length, ErrFormat)
		}
		ix := NewLabelTupleIndex(length, numClasses)
		for range size {
			l, err := line()
			if err != nil {
				return err
			}
			parts := strings.Split(l, "\t")
			if len(parts) != length {
				return fmt.Errorf("crf: tuple has %d labels, want %d: %w", len(parts), length, ErrFormat)
			}
			tuple := make(LabelTuple, length)
			for i, p := range parts {
				if tuple[i], err = strconv.Atoi(p); err != nil {
					return fmt.Errorf("crf: bad tuple label %q: %w", p, ErrFormat)
				}
			}
			ix.IndexOfOrAdd(tuple)
		}
		c.labelIndices[o] = ix
	}

	h, err = header("features")
	if err != nil {
		return err
	}
	numFeatures, err := strconv.Atoi(h[0])
	if err != nil {
		return fmt.Errorf("crf: bad feature count: %w", ErrFormat)
	}
	c.featureIndex = NewIndex()
	c.featureOrder = make([]int, numFeatures)
	for f := range numFeatures {
		l, err := line()
		if err != nil {
			return err
		}
		i := strings.LastIndexByte(l, '\t')
		if i < 0 {
			return fmt.Errorf("crf: feature line missing order: %w", ErrFormat)
		}
		ord, err := strconv.Atoi(l[i+1:])
		if err != nil || ord < 0 || ord >= window {
			return fmt.Errorf("crf: bad feature order %q: %w", l[i+1:], ErrFormat)
		}
		c.featureIndex.IndexOfOrAdd(l[:i])
		c.featureOrder[f] = ord
	}
	c.featureIndex.Lock()

	h, err = header("weights")
	if err != nil {
		return err
	}
	numWeights, err := strconv.Atoi(h[0])
	if err != nil || numWeights != numFeatures {
		return fmt.Errorf("crf: %d weight rows for %d features: %w", numWeights, numFeatures, ErrFormat)
	}
	c.weights = make([][]float64, numWeights)
	for f := range c.weights {
		l, err := line()
		if err != nil {
			return err
		}
		parts := strings.Split(l, "\t")
		want := c.labelIndices[c.featureOrder[f]].Size()
		if len(parts) != want {
			return fmt.Errorf("crf: weight row %d has %d entries, index has %d: %w",
				f, len(parts), want, ErrFormat)
		}
		row := make([]float64, len(parts))
		for i, p := range parts {
			if row[i], err = strconv.ParseFloat(p, 64); err != nil {
				return fmt.Errorf("crf: bad weight %q: %w", p, ErrFormat)
			}
		}
		c.weights[f] = row
	}

	if c.dropped == nil {
		c.dropped = make(map[string]bool)
	}
	c.backgroundID = c.classIndex.IndexOf(c.Flags.BackgroundSymbol)
	if c.backgroundID < 0 {
		return fmt.Errorf("crf: background symbol %q not in class index: %w",
			c.Flags.BackgroundSymbol, ErrFormat)
	}
	return nil
}

func wrapWrite(err error) error {
	return fmt.Errorf("crf: writing model: %v: %w", err, ErrResource)
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return wrapWrite(err)
	}
	return nil
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return wrapWrite(err)
	}
	return nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("crf: truncated model: %v: %w", err, ErrFormat)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("crf: truncated model: %v: %w", err, ErrFormat)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return wrapWrite(err)
	}
	return nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("crf: truncated model: %v: %w", err, ErrFormat)
	}
	return b, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func writeStrings(w io.Writer, ss []string) error {
	if err := writeU32(w, uint32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(r io.Reader) ([]string, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	ss := make([]string, n)
	for i := range ss {
		if ss[i], err = readString(r); err != nil {
			return nil, err
		}
	}
	return ss, nil
}
