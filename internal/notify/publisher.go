package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"caresignal/internal/correlation"
	"caresignal/internal/platform/config"
)

// Publisher puts created compound events on the escalation/notification
// stream. Delivery is best-effort from the engine's perspective; consumers
// own retry and dedup policy.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// New returns nil when kafka publishing is disabled, which callers treat as
// "no notifier".
func New(cfg config.KafkaConfig, logger *slog.Logger) *Publisher {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka event publishing disabled")
		}
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger,
	}
}

// eventMessage is the wire shape consumed by the escalation subsystem.
type eventMessage struct {
	EventID                 string  `json:"event_id"`
	SubjectID               string  `json:"subject_id"`
	RuleName                string  `json:"rule_name"`
	Severity                string  `json:"severity"`
	Confidence              float64 `json:"confidence"`
	WindowStart             string  `json:"window_start"`
	WindowEnd               string  `json:"window_end"`
	ContributingSignalCount int     `json:"contributing_signal_count"`
	RequiresHumanAction     bool    `json:"requires_human_action"`
	CreatedAt               string  `json:"created_at"`
}

func (p *Publisher) Publish(ctx context.Context, event correlation.CompoundEvent) error {
	payload, err := json.Marshal(eventMessage{
		EventID:                 event.ID.String(),
		SubjectID:               event.SubjectID,
		RuleName:                event.RuleName,
		Severity:                event.Severity,
		Confidence:              event.Confidence,
		WindowStart:             event.WindowStart.UTC().Format(time.RFC3339),
		WindowEnd:               event.WindowEnd.UTC().Format(time.RFC3339),
		ContributingSignalCount: event.ContributingSignalCount,
		RequiresHumanAction:     event.RequiresHumanAction,
		CreatedAt:               event.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal event message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		// Key by subject so one resident's events stay ordered per partition.
		Key:   []byte(event.SubjectID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("write event message: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
