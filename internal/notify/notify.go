package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/metrics"
)

// ErrThrottled is returned when the per-minute send budget is spent.
var ErrThrottled = errors.New("notification rate limit exceeded")

// Notifier is the interface for sending alert notifications.
type Notifier interface {
	Notify(ctx context.Context, a alert.Alert) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	perMinute := cfg.RatePerMinute
	if perMinute < 1 {
		perMinute = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config:  cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		logger:  logger,
	}
}

// Notify sends one alert. Alerts below the minimum severity are skipped
// without error; alerts over the rate budget return ErrThrottled.
func (c *Client) Notify(ctx context.Context, a alert.Alert) error {
	if !c.config.Enabled {
		return nil
	}
	if !c.config.allows(a.Severity) {
		metrics.NotificationsTotal.WithLabelValues("filtered").Inc()
		return nil
	}
	if !c.limiter.Allow() {
		metrics.NotificationsTotal.WithLabelValues("throttled").Inc()
		c.logger.Debug("notification throttled", zap.String("kind", string(a.Kind)), zap.Uint64("seq", a.Seq))
		return ErrThrottled
	}

	title := FormatTitle(c.config.Symbol, a)
	message := FormatAlertMessage(a)
	tags := tagsFor(c.config.Tags, a.Kind)
	priority := priorityFor(c.config.Priority, a.Severity)

	if err := c.send(ctx, title, message, tags, priority); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	return nil
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// Notify is a no-op.
func (n *NoopNotifier) Notify(_ context.Context, _ alert.Alert) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
