package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/nertag"
)

func (c *CLI) newServeCommand() *cobra.Command {
	var modelPath string
	var addr string
	var format string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tagger over a line-oriented TCP socket",
		Long: `Serve accepts one line of plain text per connection line and replies
with the tagged form in the configured output format. The loaded model is
shared read-only across connections.`,
		Example: `  nertag serve --model model.bin --addr :9191
  echo "John Smith visited Berlin" | nc localhost 9191`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := nertag.Load(modelPath)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", addr, err)
			}
			defer ln.Close()
			slog.Info("Serving tagger", "addr", addr, "format", format)

			for {
				conn, err := ln.Accept()
				if err != nil {
					return err
				}
				go c.handleConn(conn, t, format)
			}
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "model.bin", "Path to model file")
	cmd.Flags().StringVar(&addr, "addr", ":9191", "Listen address")
	cmd.Flags().StringVar(&format, "format", formatSlash, "Output format: slash, xml, or standoff")
	return cmd
}

// handleConn tags each input line and writes one reply per line. The
// per-request state is confined to this goroutine; the model is only
// read.
func (c *CLI) handleConn(conn net.Conn, t *nertag.Tagger, format string) {
	defer conn.Close()
	bg := t.Classifier().Flags.BackgroundSymbol
	sc := bufio.NewScanner(conn)
	w := bufio.NewWriter(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		tagged, err := t.TagText(line)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			w.Flush()
			break
		}
		if err := writeTagged(w, tagged, format, bg); err != nil {
			slog.Warn("Write failed", "error", err)
			break
		}
		if err := w.Flush(); err != nil {
			break
		}
	}
}
