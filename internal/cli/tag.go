package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/nertag"
	"github.com/happyhackingspace/nertag/crf"
	"github.com/happyhackingspace/nertag/internal/corpus"
)

// Output formats for tagged documents.
const (
	formatSlash    = "slash"
	formatXML      = "xml"
	formatStandoff = "standoff"
)

func (c *CLI) newTagCommand() *cobra.Command {
	var modelPath string
	var format string
	var column bool

	cmd := &cobra.Command{
		Use:   "tag [textfile]",
		Short: "Tag text from a file or stdin with a trained model",
		Args:  cobra.MaximumNArgs(1),
		Example: `  nertag tag input.txt --model model.bin
  cat input.txt | nertag tag --model model.bin --format xml
  nertag tag test.tsv --model model.bin --column --format standoff`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			t, err := nertag.Load(modelPath)
			if err != nil {
				return err
			}
			slog.Debug("Model loaded", "path", modelPath, "duration", time.Since(start))

			var in io.Reader = os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var docs [][]crf.Token
			if column {
				docs, err = corpus.ReadColumnDocs(in, 0, -1)
				if err != nil {
					return err
				}
			} else {
				data, err := io.ReadAll(in)
				if err != nil {
					return err
				}
				docs = [][]crf.Token{corpus.ReadPlainText(string(data))}
			}

			bg := t.Classifier().Flags.BackgroundSymbol
			for _, doc := range docs {
				tagged, err := t.TagTokens(doc)
				if err != nil {
					return err
				}
				if err := writeTagged(os.Stdout, tagged, format, bg); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "model.bin", "Path to model file")
	cmd.Flags().StringVar(&format, "format", formatSlash, "Output format: slash, xml, or standoff")
	cmd.Flags().BoolVar(&column, "column", false, "Read pre-tokenized column input instead of plain text")
	return cmd
}

func writeTagged(w io.Writer, tokens []crf.Token, format, background string) error {
	switch format {
	case formatSlash:
		return corpus.WriteSlashTags(w, tokens)
	case formatXML:
		return corpus.WriteInlineXML(w, tokens, background)
	case formatStandoff:
		return corpus.WriteStandoff(w, tokens, background)
	}
	return fmt.Errorf("unknown output format %q", format)
}
