// Package publisher announces completed runs.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/techscan/internal/crawler"
	"github.com/JakeFAU/techscan/internal/logging"
)

// RunCompleted is the notification payload for a finished run.
type RunCompleted struct {
	crawler.RunSummary
	Technologies map[string]int `json:"technologies"`
}

// Notifier publishes a RunCompleted message once a run's results are saved.
type Notifier struct {
	pub    crawler.Publisher
	topic  string
	logger *zap.Logger
}

// NewNotifier returns a Notifier publishing to topic.
func NewNotifier(pub crawler.Publisher, topic string, logger *zap.Logger) (*Notifier, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("notify topic is required")
	}
	return &Notifier{pub: pub, topic: topic, logger: logging.OrNop(logger).Named("notifier")}, nil
}

// Name identifies the sink in logs and metrics.
func (*Notifier) Name() string { return "pubsub" }

// Write publishes the run summary with per-technology page counts.
func (n *Notifier) Write(ctx context.Context, summary crawler.RunSummary, results crawler.AggregateResult) error {
	counts := map[string]int{}
	for _, r := range results {
		for _, tech := range r.Technologies {
			counts[tech]++
		}
	}
	id, err := n.pub.Publish(ctx, n.topic, RunCompleted{RunSummary: summary, Technologies: counts})
	if err != nil {
		return fmt.Errorf("notify run %s: %w", summary.RunID, err)
	}
	n.logger.Info("run notification published", zap.String("topic", n.topic), zap.String("message_id", id))
	return nil
}
