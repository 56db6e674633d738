package crf

// SequenceModel scores candidate labels at single positions of a tag
// sequence. Decoders work on an extended sequence of Length() +
// LeftWindow() + RightWindow() slots where the leading LeftWindow()
// positions are background padding; all position arguments below are in
// extended coordinates.
type SequenceModel interface {
	// Length returns the number of real token positions.
	Length() int

	// LeftWindow returns how many padding slots precede the tokens.
	LeftWindow() int

	// RightWindow returns how many padding slots follow the tokens.
	RightWindow() int

	// PossibleValues returns the class IDs allowed at a position. Padding
	// positions allow only the background class.
	PossibleValues(pos int) []int

	// ScoresOf returns the unnormalized log score of each class at pos
	// given the rest of the sequence.
	ScoresOf(sequence []int, pos int) []float64

	// ScoreOf returns the unnormalized log score of sequence[pos] at pos.
	ScoreOf(sequence []int, pos int) float64

	// ScoreOfSequence returns the log score of the whole assignment.
	ScoreOfSequence(sequence []int) float64
}

// cliqueTreeModel adapts a calibrated CliqueTree to the SequenceModel
// interface. The score of a class at a position is the conditional of
// that label given its preceding window plus the conditionals of each
// following label whose window contains the position, which together form
// the Gibbs conditional of the label given the rest of the sequence.
type cliqueTreeModel struct {
	tree       *CliqueTree
	background []int
	all        []int
}

// NewCliqueTreeModel wraps a calibrated clique tree as a SequenceModel.
func NewCliqueTreeModel(tree *CliqueTree) SequenceModel {
	all := make([]int, tree.NumClasses())
	for i := range all {
		all[i] = i
	}
	return &cliqueTreeModel{
		tree:       tree,
		background: []int{tree.BackgroundID()},
		all:        all,
	}
}

func (m *cliqueTreeModel) Length() int      { return m.tree.Length() }
func (m *cliqueTreeModel) LeftWindow() int  { return m.tree.Window() - 1 }
func (m *cliqueTreeModel) RightWindow() int { return 0 }

func (m *cliqueTreeModel) PossibleValues(pos int) []int {
	if pos < m.LeftWindow() {
		return m.background
	}
	return m.all
}

func (m *cliqueTreeModel) ScoresOf(sequence []int, pos int) []float64 {
	w := m.tree.Window()
	left := m.LeftWindow()
	docPos := pos - left

	prev := LabelTuple(sequence[pos-left : pos])
	scores := m.tree.CondLogProbsGivenPrevious(docPos, prev)

	// Fold in each later position whose window still covers pos.
	window := make(LabelTuple, left)
	for k := 1; k < w && docPos+k < m.tree.Length(); k++ {
		copy(window, sequence[pos+k-left:pos+k])
		for y := range scores {
			window[left-k] = y
			scores[y] += m.tree.CondLogProbGivenPrevious(docPos+k, sequence[pos+k], window)
		}
	}
	return scores
}

func (m *cliqueTreeModel) ScoreOf(sequence []int, pos int) float64 {
	return m.ScoresOf(sequence, pos)[sequence[pos]]
}

func (m *cliqueTreeModel) ScoreOfSequence(sequence []int) float64 {
	left := m.LeftWindow()
	var total float64
	for pos := left; pos < left+m.tree.Length(); pos++ {
		prev := LabelTuple(sequence[pos-left : pos])
		total += m.tree.CondLogProbGivenPrevious(pos-left, sequence[pos], prev)
	}
	return total
}

// FactoredSequenceModel sums the scores of two models over the same tag
// set, combining a CRF with a hand-designed prior during sampling.
type FactoredSequenceModel struct {
	One SequenceModel
	Two SequenceModel
}

// NewFactoredSequenceModel combines two models with identical geometry.
func NewFactoredSequenceModel(one, two SequenceModel) *FactoredSequenceModel {
	return &FactoredSequenceModel{One: one, Two: two}
}

func (m *FactoredSequenceModel) Length() int      { return m.One.Length() }
func (m *FactoredSequenceModel) LeftWindow() int  { return m.One.LeftWindow() }
func (m *FactoredSequenceModel) RightWindow() int { return m.One.RightWindow() }

func (m *FactoredSequenceModel) PossibleValues(pos int) []int {
	return m.One.PossibleValues(pos)
}

func (m *FactoredSequenceModel) ScoresOf(sequence []int, pos int) []float64 {
	a := m.One.ScoresOf(sequence, pos)
	b := m.Two.ScoresOf(sequence, pos)
	for i := range a {
		a[i] += b[i]
	}
	return a
}

func (m *FactoredSequenceModel) ScoreOf(sequence []int, pos int) float64 {
	return m.One.ScoreOf(sequence, pos) + m.Two.ScoreOf(sequence, pos)
}

func (m *FactoredSequenceModel) ScoreOfSequence(sequence []int) float64 {
	return m.One.ScoreOfSequence(sequence) + m.Two.ScoreOfSequence(sequence)
}
