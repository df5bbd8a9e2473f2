package netio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// LoadCascades reads a cascade file. Nodes get hazard family model.
// Cascades without an explicit "id;" prefix are numbered by position.
// Every cascade is sorted by time; cascades naming unknown nodes are
// rejected.
func LoadCascades(r io.Reader, model shaping.Model) (*network.Network, []*cascade.Cascade, error) {
	lr := newLineReader(r)
	net := network.New()
	if err := lr.readNodes(net, model); err != nil {
		return nil, nil, err
	}

	var cascades []*cascade.Cascade
	for {
		text, ok := lr.next()
		if !ok {
			break
		}
		if text == "" {
			continue
		}

		id := len(cascades)
		if head, rest, found := strings.Cut(text, ";"); found {
			v, err := strconv.Atoi(strings.TrimSpace(head))
			if err != nil {
				return nil, nil, lr.errorf("cascade id %q: %v", head, err)
			}
			id, text = v, rest
		}

		fields := strings.Split(text, ",")
		if len(fields)%2 != 0 {
			return nil, nil, lr.errorf("cascade needs node,time pairs, got %d fields", len(fields))
		}
		vals, err := parseFloats(fields)
		if err != nil {
			return nil, nil, lr.errorf("cascade values: %v", err)
		}

		c := cascade.New(id)
		for i := 0; i < len(vals); i += 2 {
			node := int(vals[i])
			if !net.IsNode(node) {
				return nil, nil, lr.errorf("cascade %d names unknown node %d", id, node)
			}
			c.Add(node, vals[i+1])
		}
		c.Sort()
		cascades = append(cascades, c)
	}
	if err := lr.err(); err != nil {
		return nil, nil, err
	}
	return net, cascades, nil
}

// SaveCascades writes the nodes of net and every cascade in the format
// LoadCascades reads, with explicit cascade IDs.
func SaveCascades(w io.Writer, net *network.Network, cascades []*cascade.Cascade) error {
	bw := bufio.NewWriter(w)
	if err := writeNodes(bw, net.Nodes()); err != nil {
		return fmt.Errorf("writing nodes: %w", err)
	}
	for _, c := range cascades {
		var sb strings.Builder
		sb.WriteString(strconv.Itoa(c.ID))
		sb.WriteByte(';')
		for i, h := range c.Hits {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(h.NodeID))
			sb.WriteByte(',')
			sb.WriteString(formatFloat(h.Time))
		}
		sb.WriteByte('\n')
		if _, err := bw.WriteString(sb.String()); err != nil {
			return fmt.Errorf("writing cascade %d: %w", c.ID, err)
		}
	}
	return bw.Flush()
}
