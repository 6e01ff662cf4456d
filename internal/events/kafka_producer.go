package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/metrics"
	"github.com/ErlanBelekov/referral-tracker/internal/requestid"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

var jsonMarshal = json.Marshal

const (
	queueSize    = 1000
	writeTimeout = 10 * time.Second
	sendRetries  = 3
)

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(b, sendRetries)
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer queues events in memory and writes them to Kafka from a single
// goroutine. Events are keyed by candidate id so one candidate's events
// stay ordered within a partition.
type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *slog.Logger
	closeChan chan struct{}
	backOff   func() backoff.BackOff
	done      sync.WaitGroup
	closeOnce sync.Once
}

func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           writeTimeout,
	}, logger, queueSize, defaultBackOff)
}

func newProducer(w KafkaWriter, logger *slog.Logger, size int, backOff func() backoff.BackOff) *Producer {
	p := &Producer{
		writer:    w,
		events:    make(chan Event, size),
		logger:    logger.With("component", "kafka_producer"),
		closeChan: make(chan struct{}),
		backOff:   backOff,
	}
	p.done.Add(1)
	go p.eventLoop()
	return p
}

func (p *Producer) Publish(ctx context.Context, e Event) {
	if e.RequestID == "" {
		e.RequestID = requestid.FromContext(ctx)
	}
	select {
	case p.events <- e:
	default:
		metrics.EventsTotal.WithLabelValues("dropped").Inc()
		p.logger.WarnContext(ctx, "kafka producer queue full, dropping event",
			"event_type", e.Type,
			"candidate_id", e.CandidateID,
		)
	}
}

func (p *Producer) eventLoop() {
	defer p.done.Done()
	for {
		select {
		case e := <-p.events:
			p.sendEvent(e)
		case <-p.closeChan:
			p.drain()
			return
		}
	}
}

// drain flushes whatever is still queued at shutdown.
func (p *Producer) drain() {
	for {
		select {
		case e := <-p.events:
			p.sendEvent(e)
		default:
			return
		}
	}
}

func (p *Producer) sendEvent(e Event) {
	value, err := jsonMarshal(e)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("failed").Inc()
		p.logger.Error("failed to serialize event", "error", err, "candidate_id", e.CandidateID)
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.CandidateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		err := p.writer.WriteMessages(ctx, msg)
		if err != nil {
			p.logger.Warn("kafka write failed", "attempt", attempt, "error", err, "candidate_id", e.CandidateID)
		}
		return err
	}, p.backOff())
	if err != nil {
		metrics.EventsTotal.WithLabelValues("failed").Inc()
		p.logger.Error("failed to produce event",
			"error", err,
			"event_type", e.Type,
			"candidate_id", e.CandidateID,
		)
		return
	}
	metrics.EventsTotal.WithLabelValues("sent").Inc()
}

// Close stops accepting work, flushes the queue and closes the writer.
func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		p.done.Wait()
		if err := p.writer.Close(); err != nil {
			p.logger.Error("failed to close kafka writer", "error", err)
		}
	})
}
