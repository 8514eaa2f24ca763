// Package ingestion is the non-deterministic shell in front of the core:
// it consumes NATS JetStream subjects, validates and parses payloads into
// typed events, and forwards them to the single-threaded processor.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// PriceRateLimit caps per-subject price ingestion. Bursts beyond the
// limit are dropped at the edge; the oracle only needs fresh ticks, not
// every tick.
const PriceRateLimit = rate.Limit(50)

// PriceRateBurst is the token bucket size for price subjects.
const PriceRateBurst = 100

// RawEvent is the parsed-but-untyped message from NATS, ready for the
// shell to convert into a typed event.Event before handing to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after successful processing
	NakFunc   func() // NAK on failure (redelivered)
}

// SubjectConfig maps one NATS subject to an event type.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string

	// RateLimited subjects share a token bucket; excess messages are
	// ACKed and dropped rather than redelivered.
	RateLimited bool
}

// DefaultSubjects returns the standard subject configuration. Each event
// type has its own subject so consumers scale independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "guardx.prices.>", EventType: "PriceObserved", ConsumerName: "engine-prices", StreamName: "GUARDX_PRICES", RateLimited: true},
		{Subject: "guardx.deposits.>", EventType: "Deposit", ConsumerName: "engine-deposits", StreamName: "GUARDX_CUSTODY"},
		{Subject: "guardx.withdrawals.>", EventType: "Withdrawal", ConsumerName: "engine-withdrawals", StreamName: "GUARDX_CUSTODY"},
		{Subject: "guardx.policy.set.>", EventType: "PolicyUpdated", ConsumerName: "engine-policy-set", StreamName: "GUARDX_POLICY"},
		{Subject: "guardx.policy.delete.>", EventType: "PolicyDeleted", ConsumerName: "engine-policy-del", StreamName: "GUARDX_POLICY"},
		{Subject: "guardx.trigger.>", EventType: "ExecutionStarted", ConsumerName: "engine-triggers", StreamName: "GUARDX_TRIGGERS"},
		{Subject: "guardx.xchain.inbound.>", EventType: "MessageReceived", ConsumerName: "engine-xchain-in", StreamName: "GUARDX_XCHAIN"},
		{Subject: "guardx.xchain.lock.>", EventType: "LockRequested", ConsumerName: "engine-xchain-lock", StreamName: "GUARDX_XCHAIN"},
		{Subject: "guardx.xchain.unlock.>", EventType: "UnlockRequested", ConsumerName: "engine-xchain-unlock", StreamName: "GUARDX_XCHAIN"},
		{Subject: "guardx.xchain.migrate.>", EventType: "MigrateRequested", ConsumerName: "engine-xchain-migrate", StreamName: "GUARDX_XCHAIN"},
		{Subject: "guardx.xchain.coordinate.>", EventType: "CoordinationRequested", ConsumerName: "engine-xchain-coord", StreamName: "GUARDX_XCHAIN"},
		{Subject: "guardx.admin.grants.create.>", EventType: "GrantCreated", ConsumerName: "engine-grants-create", StreamName: "GUARDX_ADMIN"},
		{Subject: "guardx.admin.grants.toggle.>", EventType: "GrantToggled", ConsumerName: "engine-grants-toggle", StreamName: "GUARDX_ADMIN"},
		{Subject: "guardx.admin.scripts.bind.>", EventType: "ScriptBound", ConsumerName: "engine-scripts-bind", StreamName: "GUARDX_ADMIN"},
		{Subject: "guardx.governance.propose.>", EventType: "ProposalSubmitted", ConsumerName: "engine-gov-propose", StreamName: "GUARDX_GOVERNANCE"},
		{Subject: "guardx.governance.vote.>", EventType: "ProposalVoted", ConsumerName: "engine-gov-vote", StreamName: "GUARDX_GOVERNANCE"},
		{Subject: "guardx.governance.execute.>", EventType: "ProposalExecutionRequested", ConsumerName: "engine-gov-execute", StreamName: "GUARDX_GOVERNANCE"},
	}
}

// NATSSubscriber subscribes to JetStream subjects and feeds raw events
// into the shell's event channel.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	limiter   *rate.Limiter
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		limiter:   rate.NewLimiter(PriceRateLimit, PriceRateBurst),
		log:       log,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		rateLimited := cfg.RateLimited
		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			if rateLimited && !ns.limiter.Allow() {
				msg.Ack()
				return
			}

			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't
// exist. Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "GUARDX_PRICES",
			Subjects:  []string{"guardx.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GUARDX_CUSTODY",
			Subjects:  []string{"guardx.deposits.>", "guardx.withdrawals.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GUARDX_POLICY",
			Subjects:  []string{"guardx.policy.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GUARDX_TRIGGERS",
			Subjects:  []string{"guardx.trigger.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			// Subjects are listed explicitly: guardx.xchain.out.> belongs
			// to GUARDX_XCHAIN_OUT and must not overlap.
			Name:      "GUARDX_XCHAIN",
			Subjects:  []string{"guardx.xchain.inbound.>", "guardx.xchain.lock.>", "guardx.xchain.unlock.>", "guardx.xchain.migrate.>", "guardx.xchain.coordinate.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GUARDX_ADMIN",
			Subjects:  []string{"guardx.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GUARDX_GOVERNANCE",
			Subjects:  []string{"guardx.governance.>"},
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

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
