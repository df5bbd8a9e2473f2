package netio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// LoadNetwork reads a network file. Nodes get hazard family model. Edge
// lines may carry any number of time,alpha samples; lines repeating an
// edge add to its history.
func LoadNetwork(r io.Reader, model shaping.Model) (*network.Network, error) {
	lr := newLineReader(r)
	net := network.New()
	if err := lr.readNodes(net, model); err != nil {
		return nil, err
	}

	for {
		text, ok := lr.next()
		if !ok {
			break
		}
		if text == "" {
			continue
		}

		fields := strings.Split(text, ",")
		if len(fields) < 2 || len(fields)%2 != 0 {
			return nil, lr.errorf("edge line needs src,dst then time,alpha pairs, got %d fields", len(fields))
		}
		vals, err := parseFloats(fields)
		if err != nil {
			return nil, lr.errorf("edge values: %v", err)
		}

		src, dst := int(vals[0]), int(vals[1])
		if !net.IsNode(src) || !net.IsNode(dst) {
			return nil, lr.errorf("edge %d,%d names an unknown node", src, dst)
		}
		h := net.AddEdge(src, dst)
		for i := 2; i < len(vals); i += 2 {
			h.Set(vals[i], vals[i+1])
		}
	}
	if err := lr.err(); err != nil {
		return nil, err
	}
	return net, nil
}

// SaveNetwork writes net in the format LoadNetwork reads, one line per edge
// carrying its full history.
func SaveNetwork(w io.Writer, net *network.Network) error {
	bw := bufio.NewWriter(w)
	if err := writeNodes(bw, net.Nodes()); err != nil {
		return fmt.Errorf("writing nodes: %w", err)
	}
	for _, e := range net.Edges() {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d,%d", e.Src, e.Dst)
		h := net.History(e.Src, e.Dst)
		for i := range h.Times {
			sb.WriteByte(',')
			sb.WriteString(formatFloat(h.Times[i]))
			sb.WriteByte(',')
			sb.WriteString(formatFloat(h.Alphas[i]))
		}
		sb.WriteByte('\n')
		if _, err := bw.WriteString(sb.String()); err != nil {
			return fmt.Errorf("writing edge %d,%d: %w", e.Src, e.Dst, err)
		}
	}
	return bw.Flush()
}
