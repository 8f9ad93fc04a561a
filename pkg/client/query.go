package client

import (
	"github.com/teleclaude/teleclaude/pkg/attachments"
	"github.com/teleclaude/teleclaude/pkg/claudecode"
)

// Query is one immutable user submission: optional text plus an ordered
// sequence of processed attachments.
type Query struct {
	Text        string
	Attachments []attachments.Attachment
}

// Blocks projects the query onto content blocks: the text block first when
// present, then each attachment's block in order.
func (q Query) Blocks() []claudecode.ContentBlock {
	var blocks []claudecode.ContentBlock
	if q.Text != "" {
		blocks = append(blocks, claudecode.TextBlock(q.Text))
	}
	for _, a := range q.Attachments {
		blocks = append(blocks, a.Block)
	}
	return blocks
}
