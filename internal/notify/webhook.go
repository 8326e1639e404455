package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vaidashi/bakery-production/pkg/errors"
	"github.com/vaidashi/bakery-production/pkg/logger"
	"github.com/vaidashi/bakery-production/pkg/retry"
)

const webhookQueueSize = 256

// WebhookNotifier posts notifications to an HTTP endpoint from a background
// worker, so Notify never blocks on the network.
type WebhookNotifier struct {
	url         string
	httpClient  *http.Client
	logger      logger.Logger
	retryConfig *retry.RetryConfig
	queue       chan Notification
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	mu          sync.Mutex
}

// NewWebhookNotifier creates a WebhookNotifier
func NewWebhookNotifier(url string, timeout time.Duration, logger logger.Logger) *WebhookNotifier {
	ctx, cancel := context.WithCancel(context.Background())

	retryConfig := &retry.RetryConfig{
		MaxAttempts: 3,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      1.5,
			JitterFactor:    0.2,
		},
		Logger: logger,
		RetryableErrors: []error{
			errors.ErrTimeout,
			errors.ErrTemporaryFailure,
			errors.ErrServiceUnavailable,
		},
	}

	return &WebhookNotifier{
		url:         url,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		retryConfig: retryConfig,
		queue:       make(chan Notification, webhookQueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Notify queues n for delivery. It is dropped when the queue is full.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) {
	select {
	case w.queue <- n:
	default:
		w.logger.Warn("Webhook queue full, dropping notification", "message", n.Message)
	}
}

// Start starts the delivery worker
func (w *WebhookNotifier) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		w.deliver()
	}()

	w.logger.Info("Webhook notifier started", "url", w.url)
}

// Stop drains nothing further and waits for the worker to exit
func (w *WebhookNotifier) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.cancel()
	w.wg.Wait()
	w.running = false

	w.logger.Info("Webhook notifier stopped")
}

func (w *WebhookNotifier) deliver() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case n := <-w.queue:
			if err := w.Send(w.ctx, n); err != nil {
				w.logger.Error("Failed to deliver notification", "error", err, "message", n.Message)
			}
		}
	}
}

// Send posts one notification, retrying transient failures
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)

	if err != nil {
		return errors.NewInternalError(fmt.Sprintf("failed to marshal notification: %v", err))
	}

	sendFunc := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))

		if err != nil {
			return errors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)

		if err != nil {
			if err, ok := err.(net.Error); ok && err.Timeout() {
				return errors.NewTimeoutError("webhook request timed out")
			}
			return errors.NewTemporaryError(fmt.Sprintf("failed to send request: %v", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
			return errors.NewTimeoutError(fmt.Sprintf("webhook timed out: %d", resp.StatusCode))
		case resp.StatusCode >= 500:
			return errors.NewTemporaryError(fmt.Sprintf("webhook server error: %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return errors.NewAppError(
				errors.ErrInternal,
				fmt.Sprintf("webhook rejected notification: %d", resp.StatusCode),
				resp.StatusCode,
				false,
			)
		}

		return nil
	}

	return retry.Retry(ctx, sendFunc, w.retryConfig)
}
