// Package audit - shipper.go routes audit records to secondary destinations
// (file, webhook) so they can reach a SIEM or log aggregator independently of
// the primary database trail. Shipping is best-effort: the database row is
// the record of truth and has already been committed by the time Ship runs.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/leadpilot/governance/internal/db/models"
)

// Shipper sends committed audit records to a secondary destination
type Shipper interface {
	Ship(ctx context.Context, entry *models.AuditLog) error
	Close() error
}

// ShipperConfig holds configuration for one audit shipper
type ShipperConfig struct {
	Enabled bool           `json:"enabled" mapstructure:"enabled"`
	Type    string         `json:"type" mapstructure:"type"` // "file" or "webhook"
	Webhook *WebhookConfig `json:"webhook,omitempty" mapstructure:"webhook"`
	File    *FileConfig    `json:"file,omitempty" mapstructure:"file"`
}

// WebhookConfig holds webhook shipper configuration
type WebhookConfig struct {
	URL     string            `json:"url" mapstructure:"url"`
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Timeout time.Duration     `json:"timeout" mapstructure:"timeout"`
}

// FileConfig holds file shipper configuration
type FileConfig struct {
	Path       string `json:"path" mapstructure:"path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
}

// MultiShipper fans one record out to every configured destination
type MultiShipper struct {
	shippers []Shipper
}

// NewMultiShipper creates shippers for all enabled configs
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error
		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
	}

	return ms, nil
}

// Ship sends an entry to all destinations, continuing past individual failures
func (ms *MultiShipper) Ship(ctx context.Context, entry *models.AuditLog) error {
	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			lastErr = err
			slog.Warn("Audit shipper error", "error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper POSTs each record as JSON to a configured endpoint
type WebhookShipper struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewWebhookShipper creates a webhook shipper
func NewWebhookShipper(cfg *WebhookConfig) *WebhookShipper {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Ship sends one entry to the webhook
func (ws *WebhookShipper) Ship(ctx context.Context, entry *models.AuditLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op for webhook shippers
func (ws *WebhookShipper) Close() error { return nil }

// FileShipper appends records as JSON lines to a local file with size-based rotation
type FileShipper struct {
	cfg  *FileConfig
	mu   sync.Mutex
	file *os.File
}

// NewFileShipper creates a file shipper, opening the target for append
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

// Ship writes one entry as a JSON line
func (fs *FileShipper) Ship(ctx context.Context, entry *models.AuditLog) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				slog.Warn("Failed to rotate audit log", "path", fs.cfg.Path, "error", err)
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i)
		newPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i+1)
		_ = os.Rename(oldPath, newPath)
	}
	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
