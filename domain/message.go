// Package domain contains core concepts of the chat relay.
// This file defines Message events and their canonical rendering.
// Messages are immutable once built and shared by pointer between delivery workers.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageKind int

const (
	UserJoinedKind MessageKind = iota
	UserLeftKind
	ChatKind
)

func (k MessageKind) String() string {
	switch k {
	case UserJoinedKind:
		return "user_joined"
	case UserLeftKind:
		return "user_left"
	case ChatKind:
		return "chat"
	default:
		return "unknown"
	}
}

// Message represents an immutable chat event.
// Fields are unexported so that no consumer can rewrite a message
// already enqueued in other peers' mailboxes.
type Message struct {
	id        uuid.UUID
	kind      MessageKind
	sender    string
	content   string
	rendered  string
	createdAt time.Time
}

// NewUserJoined announces a peer that completed the username handshake.
func NewUserJoined(username string) *Message {
	return newMessage(UserJoinedKind, username, "", fmt.Sprintf("%s joined the chat", username))
}

// NewUserLeft announces a peer whose session ended.
func NewUserLeft(username string) *Message {
	return newMessage(UserLeftKind, username, "", fmt.Sprintf("%s left the chat, :(", username))
}

// NewChat wraps one line typed by sender.
func NewChat(sender, content string) *Message {
	return newMessage(ChatKind, sender, content, fmt.Sprintf("%s: %s", sender, content))
}

func newMessage(kind MessageKind, sender, content, rendered string) *Message {
	return &Message{
		id:        uuid.New(),
		kind:      kind,
		sender:    sender,
		content:   content,
		rendered:  rendered,
		createdAt: time.Now().UTC(),
	}
}

func (m *Message) ID() uuid.UUID        { return m.id }
func (m *Message) Kind() MessageKind    { return m.kind }
func (m *Message) Sender() string       { return m.sender }
func (m *Message) Content() string      { return m.content }
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// Render returns the line written to peers, without the trailing newline.
// The text is computed once at construction.
func (m *Message) Render() string { return m.rendered }

func (m *Message) String() string { return m.rendered }
