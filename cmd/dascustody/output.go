package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agenthands/dascustody/pkg/cidutil"
	"github.com/agenthands/dascustody/pkg/dascustody"
	jsoniter "github.com/json-iterator/go"
)

const (
	outputText = "text"
	outputJSON = "json"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type assignmentView struct {
	NodeID   string                   `json:"node_id"`
	PeerID   string                   `json:"peer_id,omitempty"`
	Subnets  []dascustody.SubnetIndex `json:"subnets"`
	Columns  []dascustody.ColumnIndex `json:"columns"`
	Record   string                   `json:"record,omitempty"`
	Deadline *time.Time               `json:"deadline,omitempty"`
}

func newAssignmentView(a dascustody.Assignment) assignmentView {
	v := assignmentView{
		NodeID:  a.NodeID.Hex(),
		Subnets: a.Subnets,
		Columns: a.Columns,
	}
	if a.PeerID != "" {
		v.PeerID = a.PeerID.String()
	}
	if len(a.Record.Bytes) > 0 {
		v.Record, _ = cidutil.NewBuilder().String(a.Record)
	}
	if !a.Deadline.IsZero() {
		d := a.Deadline.UTC()
		v.Deadline = &d
	}
	if v.Subnets == nil {
		v.Subnets = []dascustody.SubnetIndex{}
	}
	if v.Columns == nil {
		v.Columns = []dascustody.ColumnIndex{}
	}
	return v
}

// printer renders results in the selected format. Text output keeps lists on
// one line so it can be piped to other tools.
type printer struct {
	w      io.Writer
	format string
}

func (p printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) value(name string, v any) error {
	if p.format == outputJSON {
		return p.json(map[string]any{name: v})
	}
	_, err := fmt.Fprintln(p.w, v)
	return err
}

func (p printer) list(name string, items any) error {
	if p.format == outputJSON {
		return p.json(map[string]any{name: items})
	}
	_, err := fmt.Fprintln(p.w, joinList(items))
	return err
}

func (p printer) assignment(a dascustody.Assignment) error {
	v := newAssignmentView(a)
	if p.format == outputJSON {
		return p.json(v)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "node-id:  %s\n", v.NodeID)
	if v.PeerID != "" {
		fmt.Fprintf(&b, "peer-id:  %s\n", v.PeerID)
	}
	fmt.Fprintf(&b, "subnets:  %s\n", joinList(v.Subnets))
	fmt.Fprintf(&b, "columns:  %s\n", joinList(v.Columns))
	if v.Record != "" {
		fmt.Fprintf(&b, "record:   %s\n", v.Record)
	}
	if v.Deadline != nil {
		fmt.Fprintf(&b, "deadline: %s\n", v.Deadline.Format(time.RFC3339))
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}

func joinList(items any) string {
	var parts []string
	switch xs := items.(type) {
	case []dascustody.SubnetIndex:
		for _, x := range xs {
			parts = append(parts, fmt.Sprint(uint64(x)))
		}
	case []dascustody.ColumnIndex:
		for _, x := range xs {
			parts = append(parts, fmt.Sprint(uint64(x)))
		}
	case []string:
		return strings.Join(xs, "\n")
	default:
		return fmt.Sprint(items)
	}
	return strings.Join(parts, " ")
}
