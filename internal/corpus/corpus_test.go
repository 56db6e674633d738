package corpus

import (
	"strings"
	"testing"

	"github.com/happyhackingspace/nertag/crf"
)

const columnInput = `John	B-PER
Smith	I-PER
visited	O
Berlin	B-LOC

EU	B-ORG
rejects	O
`

func TestReadColumnDocs(t *testing.T) {
	docs, err := ReadColumnDocs(strings.NewReader(columnInput), 0, 1)
	if err != nil {
		t.Fatalf("ReadColumnDocs: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if len(docs[0]) != 4 || len(docs[1]) != 2 {
		t.Fatalf("document lengths %d, %d", len(docs[0]), len(docs[1]))
	}
	if docs[0][0].Word != "John" || docs[0][0].Answer != "B-PER" {
		t.Errorf("first token = %+v", docs[0][0])
	}
	if docs[1][1].Word != "rejects" || docs[1][1].Answer != "O" {
		t.Errorf("last token = %+v", docs[1][1])
	}
}

func TestReadColumnDocsNoAnswer(t *testing.T) {
	docs, err := ReadColumnDocs(strings.NewReader("a\nb\n"), 0, -1)
	if err != nil {
		t.Fatalf("ReadColumnDocs: %v", err)
	}
	if docs[0][0].Answer != "" {
		t.Errorf("answer = %q, want empty", docs[0][0].Answer)
	}
}

func TestReadColumnDocsBadColumn(t *testing.T) {
	if _, err := ReadColumnDocs(strings.NewReader("one\n"), 0, 3); err == nil {
		t.Error("expected an error for a missing answer column")
	}
}

func TestReadPlainText(t *testing.T) {
	tokens := ReadPlainText("John Smith visited Berlin.")
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = tok.Word
	}
	want := []string{"John", "Smith", "visited", "Berlin", "."}
	if len(words) != len(want) {
		t.Fatalf("tokens = %v, want %v", words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, words[i], want[i])
		}
	}
}

func taggedDoc() []crf.Token {
	return []crf.Token{
		{Word: "John", Answer: "PER"},
		{Word: "Smith", Answer: "PER"},
		{Word: "visited", Answer: "O"},
		{Word: "Berlin", Answer: "LOC"},
	}
}

func TestEntitySpans(t *testing.T) {
	spans := EntitySpans(taggedDoc(), "O")
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0] != (Span{Start: 0, End: 2, Type: "PER"}) {
		t.Errorf("span 0 = %+v", spans[0])
	}
	if spans[1] != (Span{Start: 3, End: 4, Type: "LOC"}) {
		t.Errorf("span 1 = %+v", spans[1])
	}
}

func TestEntitySpansRespectsBoundaries(t *testing.T) {
	doc := []crf.Token{
		{Word: "a", Answer: "B-PER"},
		{Word: "b", Answer: "B-PER"}, // adjacent new entity
		{Word: "c", Answer: "I-PER"},
	}
	spans := EntitySpans(doc, "O")
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2: %+v", len(spans), spans)
	}
	if spans[0].End != 1 || spans[1].Start != 1 || spans[1].End != 3 {
		t.Errorf("spans = %+v", spans)
	}
}

func TestWriteSlashTags(t *testing.T) {
	var b strings.Builder
	if err := WriteSlashTags(&b, taggedDoc()); err != nil {
		t.Fatalf("WriteSlashTags: %v", err)
	}
	want := "John/PER Smith/PER visited/O Berlin/LOC\n"
	if b.String() != want {
		t.Errorf("got %q, want %q", b.String(), want)
	}
}

func TestWriteInlineXML(t *testing.T) {
	var b strings.Builder
	if err := WriteInlineXML(&b, taggedDoc(), "O"); err != nil {
		t.Fatalf("WriteInlineXML: %v", err)
	}
	want := "<PER>John Smith</PER> visited <LOC>Berlin</LOC>\n"
	if b.String() != want {
		t.Errorf("got %q, want %q", b.String(), want)
	}
}

func TestWriteStandoff(t *testing.T) {
	var b strings.Builder
	if err := WriteStandoff(&b, taggedDoc(), "O"); err != nil {
		t.Fatalf("WriteStandoff: %v", err)
	}
	want := "<entity start=\"0\" end=\"2\" type=\"PER\"/>\n<entity start=\"3\" end=\"4\" type=\"LOC\"/>\n"
	if b.String() != want {
		t.Errorf("got %q, want %q", b.String(), want)
	}
}
