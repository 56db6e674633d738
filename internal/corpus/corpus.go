// Package corpus reads and writes the document formats around the
// tagger: tab/whitespace column files with gold answers, plain text for
// inference, gold-tag relabeling schemes, and the three output formats.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/happyhackingspace/nertag/crf"
	"github.com/happyhackingspace/nertag/internal/textutil"
)

// ReadColumnDocs parses column-formatted documents: each non-blank line
// is one token whose fields are split on whitespace, with the word and
// answer taken from the given zero-based columns. A negative answer
// column reads no answers. Blank lines separate documents.
func ReadColumnDocs(r io.Reader, wordCol, answerCol int) ([][]crf.Token, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var docs [][]crf.Token
	var cur []crf.Token
	flush := func() {
		if len(cur) > 0 {
			docs = append(docs, cur)
			cur = nil
		}
	}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		fields := strings.Fields(line)
		if wordCol >= len(fields) {
			return nil, fmt.Errorf("corpus: line %d has %d columns, word column is %d", lineNo, len(fields), wordCol)
		}
		tok := crf.Token{Word: fields[wordCol]}
		if answerCol >= 0 {
			if answerCol >= len(fields) {
				return nil, fmt.Errorf("corpus: line %d has %d columns, answer column is %d", lineNo, len(fields), answerCol)
			}
			tok.Answer = fields[answerCol]
		}
		cur = append(cur, tok)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("corpus: reading documents: %w", err)
	}
	flush()
	return docs, nil
}

// ReadColumnFile reads column documents from a file.
func ReadColumnFile(path string, wordCol, answerCol int) ([][]crf.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	defer f.Close()
	return ReadColumnDocs(f, wordCol, answerCol)
}

// ReadPlainText tokenizes raw text into one document, NFC-normalized.
func ReadPlainText(text string) []crf.Token {
	words := textutil.Tokenize(norm.NFC.String(text))
	tokens := make([]crf.Token, len(words))
	for i, w := range words {
		tokens[i] = crf.Token{Word: w}
	}
	return tokens
}

// WriteSlashTags writes "word/TAG" tokens separated by spaces, one
// document per line.
func WriteSlashTags(w io.Writer, tokens []crf.Token) error {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Word + "/" + t.Answer
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

// WriteInlineXML writes the document with each entity run wrapped in an
// element named after its type: <PER>John Smith</PER> visited.
func WriteInlineXML(w io.Writer, tokens []crf.Token, background string) error {
	var b strings.Builder
	var openType string
	justOpened := false
	for i, t := range tokens {
		typ := entityType(t.Answer, background)
		if typ != openType {
			if openType != "" {
				b.WriteString("</" + openType + ">")
			}
			if typ != "" {
				if i > 0 {
					b.WriteByte(' ')
				}
				b.WriteString("<" + typ + ">")
				justOpened = true
			}
			openType = typ
		}
		if i > 0 && !justOpened {
			b.WriteByte(' ')
		}
		justOpened = false
		b.WriteString(t.Word)
	}
	if openType != "" {
		b.WriteString("</" + openType + ">")
	}
	_, err := fmt.Fprintln(w, b.String())
	return err
}

// WriteStandoff writes one element per entity with token offsets:
// <entity start="0" end="2" type="PER"/>.
func WriteStandoff(w io.Writer, tokens []crf.Token, background string) error {
	for _, span := range EntitySpans(tokens, background) {
		if _, err := fmt.Fprintf(w, "<entity start=%q end=%q type=%q/>\n",
			fmt.Sprint(span.Start), fmt.Sprint(span.End), span.Type); err != nil {
			return err
		}
	}
	return nil
}

// Span is a contiguous entity: token positions [Start, End) of one type.
type Span struct {
	Start, End int
	Type       string
}

// EntitySpans groups the tagged tokens into maximal same-type runs,
// honoring B- boundaries when the tags carry scheme prefixes.
func EntitySpans(tokens []crf.Token, background string) []Span {
	var spans []Span
	for i := 0; i < len(tokens); {
		typ := entityType(tokens[i].Answer, background)
		if typ == "" {
			i++
			continue
		}
		j := i + 1
		for j < len(tokens) {
			p, t := splitTag(tokens[j].Answer)
			if t != typ || entityType(tokens[j].Answer, background) == "" || p == "B" || p == "S" {
				break
			}
			j++
		}
		spans = append(spans, Span{Start: i, End: j, Type: typ})
		i = j
	}
	return spans
}

// splitTag separates a scheme prefix from the entity type: "B-PER" is
// ("B", "PER"), a bare "PER" is ("", "PER").
func splitTag(tag string) (prefix, typ string) {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		p := tag[:i]
		switch p {
		case "B", "I", "E", "S":
			return p, tag[i+1:]
		}
	}
	return "", tag
}

func entityType(tag, background string) string {
	if tag == background || tag == "" {
		return ""
	}
	_, typ := splitTag(tag)
	return typ
}
