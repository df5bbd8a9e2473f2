// Package netio reads and writes the plain-text cascade and network files.
//
// Every file starts with a node listing, one "id,name" line per node,
// terminated by a blank line. What follows depends on the file:
//
//	cascades:  "node,time,node,time,..." per cascade, optionally
//	           prefixed by "id;"
//	network:   "src,dst" optionally followed by "time,alpha" pairs
//
// Repeated network lines for the same edge merge into one history, so a
// per-topic edge list appended across steps loads as a network.
package netio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// ErrMalformed is wrapped by every parse error.
var ErrMalformed = errors.New("malformed input")

// lineReader scans non-comment lines and tracks line numbers for errors.
type lineReader struct {
	scanner *bufio.Scanner
	line    int
}

func newLineReader(r io.Reader) *lineReader {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)
	return &lineReader{scanner: scanner}
}

// next returns the next line with surrounding whitespace removed.
func (lr *lineReader) next() (string, bool) {
	for lr.scanner.Scan() {
		lr.line++
		text := strings.TrimSpace(lr.scanner.Text())
		if strings.HasPrefix(text, "#") {
			continue
		}
		return text, true
	}
	return "", false
}

func (lr *lineReader) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s: %w", lr.line, fmt.Sprintf(format, args...), ErrMalformed)
}

func (lr *lineReader) err() error {
	if err := lr.scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// readNodes reads the "id,name" header up to its blank terminator.
func (lr *lineReader) readNodes(net *network.Network, model shaping.Model) error {
	for {
		text, ok := lr.next()
		if !ok || text == "" {
			return lr.err()
		}
		id, name, found := strings.Cut(text, ",")
		if !found {
			return lr.errorf("node line %q needs id,name", text)
		}
		nid, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return lr.errorf("node id %q: %v", id, err)
		}
		net.AddNode(network.Node{ID: nid, Name: strings.TrimSpace(name), Model: model})
	}
}

func writeNodes(w *bufio.Writer, nodes []network.Node) error {
	for _, n := range nodes {
		if _, err := fmt.Fprintf(w, "%d,%s\n", n.ID, n.Name); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
