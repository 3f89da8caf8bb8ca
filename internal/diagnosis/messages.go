package diagnosis

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderSystem Sender = "system"
	SenderUser   Sender = "user"
)

// Message is one entry of the transcript. Order is its position in the log.
type Message struct {
	Sender Sender `yaml:"sender"`
	Text   string `yaml:"text"`
	Order  int    `yaml:"order"`
}

// MarshalYAML writes Text double-quoted. Block scalars cannot carry the
// leading newlines of some prompts, so the plain encoding does not read
// back.
func (m Message) MarshalYAML() (any, error) {
	str := func(v string, style yaml.Style) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v, Style: style}
	}
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			str("sender", 0), str(string(m.Sender), 0),
			str("text", 0), str(m.Text, yaml.DoubleQuotedStyle),
			str("order", 0), {Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(m.Order)},
		},
	}, nil
}

// MessageLog is the append-only transcript of a session.
type MessageLog struct {
	messages []Message
}

// Append adds a message and returns it with its order assigned.
func (l *MessageLog) Append(sender Sender, text string) Message {
	msg := Message{Sender: sender, Text: text, Order: len(l.messages)}
	l.messages = append(l.messages, msg)
	return msg
}

// Messages returns a copy of the transcript.
func (l *MessageLog) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *MessageLog) Len() int { return len(l.messages) }

// Reset empties the log.
func (l *MessageLog) Reset() { l.messages = nil }
