package crf

// Entity-structure priors for Gibbs decoding. Each variant scores a tag
// sequence by how well its entity runs hang together: adjacent
// non-background labels of different classes are penalized, since an
// entity should end in background before another begins. The variants
// differ only in how hard they push.
const (
	nerPriorPenalty = 3.0
	acqPriorPenalty = 1.5
	semPriorPenalty = 0.8
)

// EntityPrior is a SequenceModel over the same geometry as a CRF model,
// combined with it through a FactoredSequenceModel during sampling.
type EntityPrior struct {
	length       int
	leftWindow   int
	numClasses   int
	backgroundID int
	penalty      float64
	background   []int
	all          []int
}

// NewEntityPrior builds a prior matching the geometry of the given model.
func NewEntityPrior(model SequenceModel, numClasses, backgroundID int, penalty float64) *EntityPrior {
	all := make([]int, numClasses)
	for i := range all {
		all[i] = i
	}
	return &EntityPrior{
		length:       model.Length(),
		leftWindow:   model.LeftWindow(),
		numClasses:   numClasses,
		backgroundID: backgroundID,
		penalty:      penalty,
		background:   []int{backgroundID},
		all:          all,
	}
}

func (p *EntityPrior) Length() int      { return p.length }
func (p *EntityPrior) LeftWindow() int  { return p.leftWindow }
func (p *EntityPrior) RightWindow() int { return 0 }

func (p *EntityPrior) PossibleValues(pos int) []int {
	if pos < p.leftWindow {
		return p.background
	}
	return p.all
}

// violation reports whether two adjacent labels break an entity run.
func (p *EntityPrior) violation(a, b int) bool {
	return a != p.backgroundID && b != p.backgroundID && a != b
}

func (p *EntityPrior) ScoresOf(sequence []int, pos int) []float64 {
	end := p.leftWindow + p.length
	scores := make([]float64, p.numClasses)
	for y := range scores {
		if pos > p.leftWindow && p.violation(sequence[pos-1], y) {
			scores[y] -= p.penalty
		}
		if pos+1 < end && p.violation(y, sequence[pos+1]) {
			scores[y] -= p.penalty
		}
	}
	return scores
}

func (p *EntityPrior) ScoreOf(sequence []int, pos int) float64 {
	return p.ScoresOf(sequence, pos)[sequence[pos]]
}

func (p *EntityPrior) ScoreOfSequence(sequence []int) float64 {
	end := p.leftWindow + p.length
	var total float64
	for pos := p.leftWindow + 1; pos < end; pos++ {
		if p.violation(sequence[pos-1], sequence[pos]) {
			total -= p.penalty
		}
	}
	return total
}
