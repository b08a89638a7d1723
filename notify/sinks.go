package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LogSink writes events to a zap logger. It never fails.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.String("severity", e.Severity),
		zap.String("connection", e.ConnectionID),
		zap.Time("at", e.At),
	}
	if e.Trade != nil {
		fields = append(fields,
			zap.String("trade", e.Trade.ID),
			zap.String("symbol", e.Trade.Symbol),
			zap.Float64("stop_loss", e.Trade.StopLoss))
	}
	if len(e.Meta) > 0 {
		fields = append(fields, zap.Any("meta", e.Meta))
	}
	s.logger.Info(e.Message, fields...)
	return nil
}

// WebhookSink POSTs each event as JSON. Any non-2xx response is an error.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
