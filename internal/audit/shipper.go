// Package audit handles structured audit log shipping for consumer lifecycle
// events. Every transition is already recorded as an immutable database row in
// the same transaction that applied it; shipping mirrors those records to
// external destinations (file, webhook) for security teams whose retention
// requirements outlive the application database. Shipping is best-effort and
// asynchronous — the database row is the source of truth, so a failed ship is
// logged and dropped rather than retried into the request path.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// LogEntry represents a structured audit record of one registry event.
type LogEntry struct {
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	ActorID      int64                  `json:"actor_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	OldStage     string                 `json:"old_stage,omitempty"`
	NewStage     string                 `json:"new_stage,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Shipper defines the interface for audit log shipping.
type Shipper interface {
	// Ship sends an audit log entry to the destination.
	Ship(ctx context.Context, entry *LogEntry) error
	// Close cleans up any resources.
	Close() error
}

// FileShipper appends JSON lines to a local file.
type FileShipper struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileShipper opens (or creates) the audit file in append mode.
func NewFileShipper(path string) (*FileShipper, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &FileShipper{file: f}, nil
}

// Ship writes one JSON line.
func (s *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *FileShipper) Close() error {
	return s.file.Close()
}

// WebhookShipper POSTs entries as JSON to an HTTP endpoint.
type WebhookShipper struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookShipper creates a webhook shipper. Headers are attached to every
// request (e.g. an Authorization header for the receiving SIEM).
func NewWebhookShipper(url string, headers map[string]string, timeout time.Duration) *WebhookShipper {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Ship POSTs the entry.
func (s *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ship to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op for webhooks.
func (s *WebhookShipper) Close() error {
	return nil
}

// MultiShipper fans an entry out to several destinations, returning the first
// error after attempting all of them.
type MultiShipper struct {
	shippers []Shipper
}

// NewMultiShipper combines shippers; nil entries are skipped.
func NewMultiShipper(shippers ...Shipper) *MultiShipper {
	out := make([]Shipper, 0, len(shippers))
	for _, s := range shippers {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiShipper{shippers: out}
}

// Ship delivers to every destination.
func (m *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	var firstErr error
	for _, s := range m.shippers {
		if err := s.Ship(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every destination.
func (m *MultiShipper) Close() error {
	var firstErr error
	for _, s := range m.shippers {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
