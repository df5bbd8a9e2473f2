package netio

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/diffmix/internal/inference"
	"github.com/nvandessel/diffmix/internal/network"
)

// TopicEdgeWriter writes one edge list per topic, named
// "<prefix>_<topic>.txt". Begin truncates each file and writes the node
// listing; every step then appends "src,dst,time,alpha" lines.
type TopicEdgeWriter struct {
	prefix string
	topics int
}

// NewTopicEdgeWriter creates a writer for files under prefix.
func NewTopicEdgeWriter(prefix string) *TopicEdgeWriter {
	return &TopicEdgeWriter{prefix: prefix}
}

// Path returns the file holding topic k.
func (tw *TopicEdgeWriter) Path(k int) string {
	return fmt.Sprintf("%s_%d.txt", tw.prefix, k)
}

// Begin implements inference.Sink.
func (tw *TopicEdgeWriter) Begin(_ context.Context, nodes []network.Node, topics int) error {
	if dir := filepath.Dir(tw.prefix); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	tw.topics = topics
	for k := 0; k < topics; k++ {
		if err := tw.write(k, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, func(w *bufio.Writer) error {
			return writeNodes(w, nodes)
		}); err != nil {
			return err
		}
	}
	return nil
}

// RecordStep implements inference.Sink.
func (tw *TopicEdgeWriter) RecordStep(_ context.Context, res inference.StepResult) error {
	for k, edges := range res.TopicEdges {
		if k >= tw.topics {
			return fmt.Errorf("step %d reports topic %d, only %d files were opened", res.Index, k, tw.topics)
		}
		err := tw.write(k, os.O_APPEND|os.O_WRONLY, func(w *bufio.Writer) error {
			for _, e := range edges {
				line := strings.Join([]string{
					strconv.Itoa(e.Src),
					strconv.Itoa(e.Dst),
					formatFloat(e.Time),
					formatFloat(e.Alpha),
				}, ",")
				if _, err := w.WriteString(line + "\n"); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (tw *TopicEdgeWriter) write(k, flag int, fn func(*bufio.Writer) error) error {
	path := tw.Path(k)
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
