package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role tags a conversation turn. Only these three values are ever persisted.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source tells where the user text came from.
type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
)

var ErrUnknownRole = errors.New("unknown role")

// Turn is one role-tagged message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemTurn(content string) Turn    { return Turn{Role: RoleSystem, Content: content} }
func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// NormalizeRole maps provider-specific role labels onto the closed vocabulary.
func NormalizeRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "system":
		return RoleSystem, nil
	case "user", "human":
		return RoleUser, nil
	case "assistant", "ai", "model", "agent", "bot":
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// UnmarshalJSON accepts legacy role labels such as "human" or "ai".
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string `json:"role"`
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	label := raw.Role
	if label == "" {
		label = raw.Type
	}
	role, err := NormalizeRole(label)
	if err != nil {
		return err
	}
	t.Role = role
	t.Content = raw.Content
	return nil
}

// ParseSource defaults to text for anything that is not voice.
func ParseSource(raw string) Source {
	if strings.EqualFold(strings.TrimSpace(raw), string(SourceVoice)) {
		return SourceVoice
	}
	return SourceText
}

// CloneTurns returns a copy that can be appended to without aliasing.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns), len(turns)+2)
	copy(out, turns)
	return out
}

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserMessage    MessageType = "user_message"
	TypeModeSwitch     MessageType = "mode_switch"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type UserMessage struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"user_id"`
	Text   string      `json:"text"`
	Source string      `json:"source,omitempty"`
}

type ModeSwitch struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"user_id"`
	Mode   string      `json:"mode"`
}

type AssistantReply struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"user_id"`
	Kind   string      `json:"kind"`
	Text   string      `json:"text"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.UserID) == "" || strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid user_message")
		}
		return msg, nil
	case TypeModeSwitch:
		var msg ModeSwitch
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.UserID) == "" {
			return nil, errors.New("invalid mode_switch")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
