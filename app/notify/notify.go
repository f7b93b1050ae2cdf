// Package notify delivers task creation events to configured webhook
// destinations. Delivery is best-effort: failures are logged and never
// surfaced to the request path.
package notify

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
	"github.com/go-pkgz/syncs"
)

// concurrent deliveries cap for the fan-out to multiple destinations
const maxConcurrent = 4

// WebhookSender defines the subset of go-pkgz/notify webhook client used by the service
type WebhookSender interface {
	Send(ctx context.Context, destination, text string) error
}

// Service fans task events out to all configured destinations
type Service struct {
	webhooks []string
	sender   WebhookSender
	timeout  time.Duration
}

// NewService creates a notification service for the given webhook URLs,
// returns nil if no destinations configured
func NewService(webhooks []string, timeout time.Duration) *Service {
	if len(webhooks) == 0 {
		return nil
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	sender := notify.NewWebhook(notify.WebhookParams{
		Timeout: timeout,
		Headers: []string{"Content-Type:application/json"},
	})
	return &Service{webhooks: webhooks, sender: sender, timeout: timeout}
}

// TaskCreated notifies all destinations about a newly stored task,
// blocking until every delivery completed or timed out
func (s *Service) TaskCreated(ctx context.Context, id int64, name string) {
	if s == nil {
		return
	}

	msg, err := json.Marshal(map[string]any{"event": "task_created", "id": id, "task": name})
	if err != nil {
		log.Printf("[WARN] failed to marshal notification for task %d: %v", id, err)
		return
	}

	gr := syncs.NewSizedGroup(maxConcurrent, syncs.Context(ctx))
	for _, dest := range s.webhooks {
		gr.Go(func(ctx context.Context) {
			sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			if err := s.sender.Send(sendCtx, dest, string(msg)); err != nil {
				log.Printf("[WARN] failed to notify %s about task %d: %v", dest, id, err)
				return
			}
			log.Printf("[DEBUG] notified %s about task %d", dest, id)
		})
	}
	gr.Wait()
}
