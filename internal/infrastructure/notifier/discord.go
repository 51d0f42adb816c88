package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jhj/kis_autotrader/internal/domain"
)

var severityColor = map[domain.Severity]int{
	domain.SeverityInfo:     0x3498db,
	domain.SeveritySuccess:  0x2ecc71,
	domain.SeverityWarning:  0xf1c40f,
	domain.SeverityError:    0xe74c3c,
	domain.SeverityCritical: 0x8e0000,
}

type Filter struct {
	Trades bool
	Errors bool
}

// DiscordNotifier posts embeds to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	filter     Filter
	client     *http.Client
	log        *zap.Logger
	timeNow    func() time.Time
}

func NewDiscordNotifier(webhookURL string, filter Filter, log *zap.Logger) *DiscordNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		filter:     filter,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
		timeNow:    time.Now,
	}
}

func (d *DiscordNotifier) allowed(s domain.Severity) bool {
	switch s {
	case domain.SeveritySuccess:
		return d.filter.Trades
	case domain.SeverityError:
		return d.filter.Errors
	default:
		return true
	}
}

func (d *DiscordNotifier) Notify(ctx context.Context, title, message string, severity domain.Severity) error {
	if d.webhookURL == "" || !d.allowed(severity) {
		return nil
	}
	color, ok := severityColor[severity]
	if !ok {
		color = severityColor[domain.SeverityInfo]
	}

	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"footer":      map[string]string{"text": "KIS Auto Trader"},
				"timestamp":   d.timeNow().Format(time.RFC3339),
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes notifications to the log instead of a chat channel.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, title, message string, severity domain.Severity) error {
	fields := []zap.Field{zap.String("title", title), zap.String("message", message)}
	switch severity {
	case domain.SeverityError, domain.SeverityCritical:
		l.log.Error("Notification", fields...)
	case domain.SeverityWarning:
		l.log.Warn("Notification", fields...)
	default:
		l.log.Info("Notification", fields...)
	}
	return nil
}

// Multi fans a notification out to every notifier and reports the first error.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, title, message string, severity domain.Severity) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, title, message, severity); err != nil && first == nil {
			first = err
		}
	}
	return first
}
