package effects

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/model"
)

// Webhook posts each notification as JSON to a local notifier gateway.
type Webhook struct {
	URL    string
	Client *http.Client
}

type webhookPayload struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	Kind         string `json:"kind"`
	MedicationID *int64 `json:"medication_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Apply(ctx context.Context, n model.Notification) error {
	return postJSON(ctx, w.client(), w.URL, webhookPayload{
		ID:           n.ID,
		Title:        n.Title,
		Message:      n.Message,
		Kind:         string(n.Kind),
		MedicationID: n.MedicationID,
		CreatedAt:    n.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (w *Webhook) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func postJSON(ctx context.Context, client *http.Client, url string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Bell rings the terminal bell for medication reminders.
type Bell struct {
	mu sync.Mutex
	W  io.Writer
}

func (b *Bell) Name() string { return "bell" }

func (b *Bell) Apply(_ context.Context, n model.Notification) error {
	if n.Kind != model.KindMedicationReminder {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.W.Write([]byte{'\a'})
	return err
}

// Badge reports the current unread count after each notification.
type Badge struct {
	Unread func() int
	Report func(unread int)
}

func (b *Badge) Name() string { return "badge" }

func (b *Badge) Apply(_ context.Context, _ model.Notification) error {
	if b.Unread == nil || b.Report == nil {
		return nil
	}
	b.Report(b.Unread())
	return nil
}

// Log writes each notification to a logger, standing in for an on-screen
// display.
type Log struct {
	Logger *slog.Logger
}

func (l *Log) Name() string { return "display" }

func (l *Log) Apply(_ context.Context, n model.Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		"id", n.ID,
		"kind", n.Kind,
		"title", n.Title,
		"message", n.Message,
	)
	return nil
}
