package corpus

import "github.com/happyhackingspace/nertag/crf"

// Gold-tag relabeling between entity encoding schemes, applied to
// documents before the classifier sees them. All converters work from
// the entity spans of the input tags, so any input scheme (bare types,
// IOB1, IOB2) converts to any output scheme.

// ToIOB2 rewrites answers so every entity starts with B- and continues
// with I-.
func ToIOB2(doc []crf.Token, background string) {
	relabel(doc, background, func(pos, start, end int) string {
		if pos == start {
			return "B-"
		}
		return "I-"
	})
}

// ToIOB1 rewrites answers in IOB1: I- everywhere, with B- only where an
// entity immediately follows another entity of the same type.
func ToIOB1(doc []crf.Token, background string) {
	spans := EntitySpans(doc, background)
	prevEnd, prevType := -1, ""
	tags := make([]string, len(doc))
	for i := range tags {
		tags[i] = background
	}
	for _, s := range spans {
		for pos := s.Start; pos < s.End; pos++ {
			if pos == s.Start && s.Start == prevEnd && s.Type == prevType {
				tags[pos] = "B-" + s.Type
			} else {
				tags[pos] = "I-" + s.Type
			}
		}
		prevEnd, prevType = s.End, s.Type
	}
	for i := range doc {
		doc[i].Answer = tags[i]
	}
}

// ToIOE rewrites answers end-marked: I- everywhere with E- on the last
// token of each entity.
func ToIOE(doc []crf.Token, background string) {
	relabel(doc, background, func(pos, start, end int) string {
		if pos == end-1 {
			return "E-"
		}
		return "I-"
	})
}

// ToSBIEO rewrites answers with singleton, begin, inside, and end
// markers.
func ToSBIEO(doc []crf.Token, background string) {
	relabel(doc, background, func(pos, start, end int) string {
		switch {
		case end-start == 1:
			return "S-"
		case pos == start:
			return "B-"
		case pos == end-1:
			return "E-"
		default:
			return "I-"
		}
	})
}

// StripScheme rewrites answers down to bare entity types.
func StripScheme(doc []crf.Token, background string) {
	for i := range doc {
		typ := entityType(doc[i].Answer, background)
		if typ == "" {
			doc[i].Answer = background
		} else {
			doc[i].Answer = typ
		}
	}
}

func relabel(doc []crf.Token, background string, prefix func(pos, start, end int) string) {
	spans := EntitySpans(doc, background)
	tags := make([]string, len(doc))
	for i := range tags {
		tags[i] = background
	}
	for _, s := range spans {
		for pos := s.Start; pos < s.End; pos++ {
			tags[pos] = prefix(pos, s.Start, s.End) + s.Type
		}
	}
	for i := range doc {
		doc[i].Answer = tags[i]
	}
}
