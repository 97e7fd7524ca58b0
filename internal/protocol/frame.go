package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/model"
)

// Frame types.
const (
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeConnectionEstablished = "connection_established"
	TypeNotification          = "notification"
	TypeMedicationReminder    = "medication_reminder"
	TypeUserStatusChange      = "user_status_change"
	TypeNewMessage            = "new_message"
)

var (
	ErrMissingType = errors.New("frame has no type")
	ErrWrongType   = errors.New("unexpected frame type")
)

// Frame is a parsed inbound frame. Data is left raw so that each consumer
// decodes only the payloads it cares about.
type Frame struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"` // Server-provided, number or string
	ReceivedAt time.Time       `json:"-"` // Local receive time
}

// Parse decodes a raw frame. A frame without a type is rejected.
func Parse(raw []byte, receivedAt time.Time) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if strings.TrimSpace(f.Type) == "" {
		return Frame{}, ErrMissingType
	}
	f.ReceivedAt = receivedAt
	return f, nil
}

// IsNotification reports whether the frame carries a Notification payload.
func (f Frame) IsNotification() bool {
	return f.Type == TypeNotification || f.Type == TypeMedicationReminder
}

// outbound is the wire shape of a frame we send.
type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Ping is the heartbeat payload.
type Ping struct {
	Timestamp int64 `json:"timestamp"` // Epoch milliseconds
}

// EncodePing builds a heartbeat frame stamped with t.
func EncodePing(t time.Time) ([]byte, error) {
	return json.Marshal(outbound{
		Type: TypePing,
		Data: Ping{Timestamp: t.UnixMilli()},
	})
}

// Encode builds an outbound frame of the given type.
func Encode(frameType string, data any) ([]byte, error) {
	if frameType == "" {
		return nil, ErrMissingType
	}
	return json.Marshal(outbound{Type: frameType, Data: data})
}

// -----------------------------------------------------------------------------
// Inbound payloads
// -----------------------------------------------------------------------------

// ConnectionEstablished is the handshake payload.
type ConnectionEstablished struct {
	ConnectionID string `json:"connection_id"`
}

// NotificationPayload is the wire form of a notification.
type NotificationPayload struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	NotificationType string `json:"notification_type,omitempty"`
	Status           string `json:"status,omitempty"`
	CreatedAt        Time   `json:"created_at"`
	MedicationID     *int64 `json:"medication_id,omitempty"`
}

// ToModel converts the payload. fallbackKind is used when the payload does
// not name its own type; an absent status means unread.
func (p NotificationPayload) ToModel(fallbackKind string) model.Notification {
	kind := p.NotificationType
	if kind == "" {
		kind = fallbackKind
	}
	status := model.NotificationStatus(p.Status)
	if !status.Valid() {
		status = model.StatusUnread
	}
	return model.Notification{
		ID:           p.ID,
		Title:        p.Title,
		Message:      p.Message,
		Kind:         model.NotificationKind(kind),
		Status:       status,
		CreatedAt:    p.CreatedAt.Time,
		MedicationID: p.MedicationID,
	}
}

// UserStatusChange is the presence payload.
type UserStatusChange struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

// NewMessage is the chat push payload.
type NewMessage struct {
	Message struct {
		ID         int64  `json:"id"`
		SenderID   int64  `json:"sender_id"`
		ReceiverID int64  `json:"receiver_id"`
		Content    string `json:"content"`
		CreatedAt  Time   `json:"created_at"`
	} `json:"message"`
}

// -----------------------------------------------------------------------------
// Decoders
// -----------------------------------------------------------------------------

// DecodeConnectionEstablished extracts the server-assigned connection id.
func DecodeConnectionEstablished(f Frame) (string, error) {
	if f.Type != TypeConnectionEstablished {
		return "", fmt.Errorf("%w: %s", ErrWrongType, f.Type)
	}
	var p ConnectionEstablished
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return "", fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return p.ConnectionID, nil
}

// DecodeNotification extracts a notification from a notification or
// medication_reminder frame.
func DecodeNotification(f Frame) (model.Notification, error) {
	if !f.IsNotification() {
		return model.Notification{}, fmt.Errorf("%w: %s", ErrWrongType, f.Type)
	}
	var p NotificationPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return model.Notification{}, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return p.ToModel(f.Type), nil
}

// DecodePresence extracts a presence event.
func DecodePresence(f Frame) (model.PresenceEvent, error) {
	if f.Type != TypeUserStatusChange {
		return model.PresenceEvent{}, fmt.Errorf("%w: %s", ErrWrongType, f.Type)
	}
	var p UserStatusChange
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return model.PresenceEvent{}, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return model.PresenceEvent{
		UserID: p.UserID,
		Status: model.PresenceStatus(p.Status),
	}, nil
}

// DecodeChatMessage extracts the message of a new_message frame.
func DecodeChatMessage(f Frame) (model.ChatMessage, error) {
	if f.Type != TypeNewMessage {
		return model.ChatMessage{}, fmt.Errorf("%w: %s", ErrWrongType, f.Type)
	}
	var p NewMessage
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return model.ChatMessage{}, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return model.ChatMessage{
		ID:         p.Message.ID,
		SenderID:   p.Message.SenderID,
		ReceiverID: p.Message.ReceiverID,
		Content:    p.Message.Content,
		CreatedAt:  p.Message.CreatedAt.Time,
	}, nil
}
