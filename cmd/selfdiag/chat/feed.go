package chat

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mrsinham/selfdiag/internal/diagnosis"
)

// feedBuffer holds messages produced while the UI is busy rendering. A full
// session transcript is far below it.
const feedBuffer = 256

// transcriptMsg carries one message appended to the session transcript.
type transcriptMsg diagnosis.Message

// Feed forwards session messages to the UI. Register Push as the session
// listener before calling Start.
type Feed struct {
	ch chan diagnosis.Message
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{ch: make(chan diagnosis.Message, feedBuffer)}
}

// Push queues msg for the UI.
func (f *Feed) Push(msg diagnosis.Message) {
	f.ch <- msg
}

// wait blocks until the next message is available.
func (f *Feed) wait() tea.Cmd {
	return func() tea.Msg {
		return transcriptMsg(<-f.ch)
	}
}
