package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// PublishableEvent is a processed event ready for outbound publishing.
type PublishableEvent struct {
	Sequence       int64       `json:"sequence"`
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	Owner          *string     `json:"owner,omitempty"`
	Payload        interface{} `json:"payload"`
	StateHash      []byte      `json:"state_hash"`
	Timestamp      time.Time   `json:"timestamp"`
}

// OutboundMessage is a cross-chain message bound for a relayer.
type OutboundMessage struct {
	MessageHash string `json:"message_hash"`
	TargetChain uint64 `json:"target_chain"`
	Nonce       uint64 `json:"nonce"`
	Kind        string `json:"kind"`
	Payload     string `json:"payload"` // 0x-prefixed hex
	SentAt      int64  `json:"sent_at"`
	ValidUntil  int64  `json:"valid_until"`
}

// OutboundPublisher publishes processed events and outbound cross-chain
// messages to NATS for downstream consumers. Events go out after
// persistence is confirmed; a failed publish is non-fatal because
// consumers can rebuild from the event log.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	log       zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				op.log.Warn().Err(err).Int64("sequence", evt.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

// publish sends to guardx.events.{event_type}, suffixed with the owner
// address when the event has owner context.
func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("guardx.events.%s", evt.EventType)
	if evt.Owner != nil {
		subject = fmt.Sprintf("%s.%s", subject, *evt.Owner)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// PublishOutboundMessage hands an outbound cross-chain message to the
// relayer stream on guardx.xchain.out.{chain}.
func (op *OutboundPublisher) PublishOutboundMessage(ctx context.Context, msg OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	subject := fmt.Sprintf("guardx.xchain.out.%d", msg.TargetChain)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStreams creates the outbound event and relayer streams.
func EnsureOutboundStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "GUARDX_EVENTS",
			Subjects:  []string{"guardx.events.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GUARDX_XCHAIN_OUT",
			Subjects:  []string{"guardx.xchain.out.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}
