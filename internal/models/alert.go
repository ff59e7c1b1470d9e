package models

import (
	"strings"
	"time"
)

// AlertFragment is a single triggered condition rendered as one line.
type AlertFragment struct {
	Rule string
	Text string
}

// AlertBlock groups the fragments raised for one instrument in one round.
// Header carries the identifying lines printed above the fragments.
type AlertBlock struct {
	Symbol    string
	Time      time.Time
	Header    []string
	Fragments []AlertFragment
}

// Render returns the block as message text: header lines first, then one
// line per fragment.
func (b AlertBlock) Render() string {
	lines := make([]string, 0, len(b.Header)+len(b.Fragments))
	lines = append(lines, b.Header...)
	for _, f := range b.Fragments {
		lines = append(lines, f.Text)
	}
	return strings.Join(lines, "\n")
}

// Rules lists the rule names of the block's fragments.
func (b AlertBlock) Rules() []string {
	out := make([]string, 0, len(b.Fragments))
	for _, f := range b.Fragments {
		out = append(out, f.Rule)
	}
	return out
}

// JoinBlocks renders blocks separated by a blank line, prefixed with header
// when it is not empty.
func JoinBlocks(header string, blocks []AlertBlock) string {
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.Render())
	}
	body := strings.Join(parts, "\n\n")
	if header == "" {
		return body
	}
	return header + "\n\n" + body
}
