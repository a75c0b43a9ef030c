// Package bus carries messages between chat channels and the agent
// gateway. Channels publish inbound messages; the gateway replies on
// the outbound side, keyed by channel name.
package bus

import "time"

// InboundMessage is one user message arriving from a chat channel.
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

// SessionKey identifies the conversation this message belongs to.
// One chat per channel maps to one agent session.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a reply or notification headed to a channel.
// Metadata carries channel-specific hints; "approval_id" marks the
// message as an approval prompt the channel should make answerable.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ReplyTo  string
	Metadata map[string]any
}
