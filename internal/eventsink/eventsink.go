// Package eventsink publishes registry activity and configuration reload
// events to Kafka.
package eventsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/metrics"
)

// Event types.
const (
	TypeActivity = "activity"
	TypeReload   = "reload"
)

// ErrNoBrokers is returned by Dial without seed brokers.
var ErrNoBrokers = errors.New("eventsink: no brokers configured")

// Event is the JSON value of every published record.
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	NodeID   string         `json:"nodeId,omitempty"`
	Time     time.Time      `json:"time"`
	Activity *ActivityEvent `json:"activity,omitempty"`
	Reload   *ReloadEvent   `json:"reload,omitempty"`
}

// ActivityEvent mirrors one REG_LOG record.
type ActivityEvent struct {
	Path       string    `json:"path"`
	User       string    `json:"user"`
	Action     string    `json:"action"`
	ActionData string    `json:"actionData,omitempty"`
	TenantID   int       `json:"tenantId"`
	LoggedTime time.Time `json:"loggedTime"`
}

// ReloadEvent reports one configuration reload attempt.
type ReloadEvent struct {
	Source   string `json:"source"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Warnings int    `json:"warnings"`
}

// Producer is the part of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Config configures Dial.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Sink publishes events to one topic.
type Sink struct {
	producer Producer
	topic    string
	nodeID   string
	metrics  *metrics.Metrics
	now      func() time.Time
	close    func()
}

// New wraps an existing producer. nodeID tags every event; m may be nil.
func New(p Producer, topic, nodeID string, m *metrics.Metrics) *Sink {
	return &Sink{
		producer: p,
		topic:    topic,
		nodeID:   nodeID,
		metrics:  m,
		now:      time.Now,
		close:    func() {},
	}
}

// Dial connects to the brokers and checks they answer.
func Dial(ctx context.Context, cfg Config, nodeID string, m *metrics.Metrics) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging kafka: %w", err)
	}
	log.Info(log.CatEvents, "Connected event sink", "brokers", cfg.Brokers, "topic", cfg.Topic)

	s := New(client, cfg.Topic, nodeID, m)
	s.close = client.Close
	return s, nil
}

// AddLogs publishes one activity event per record, keyed by path so a
// resource's history stays on one partition. It satisfies logwriter.Sink.
func (s *Sink) AddLogs(ctx context.Context, records []dataaccess.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	rs := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		ev := s.newEvent(TypeActivity)
		ev.Activity = &ActivityEvent{
			Path:       r.Path,
			User:       r.UserID,
			Action:     r.Action.String(),
			ActionData: r.ActionData,
			TenantID:   r.TenantID,
			LoggedTime: r.LoggedTime,
		}
		rec, err := s.record([]byte(r.Path), ev)
		if err != nil {
			return err
		}
		rs = append(rs, rec)
	}
	return s.produce(ctx, rs)
}

// PublishReload publishes the outcome of a reload from source.
func (s *Sink) PublishReload(ctx context.Context, source string, warnings int, reloadErr error) error {
	ev := s.newEvent(TypeReload)
	ev.Reload = &ReloadEvent{Source: source, OK: reloadErr == nil, Warnings: warnings}
	if reloadErr != nil {
		ev.Reload.Error = reloadErr.Error()
	}
	rec, err := s.record([]byte(TypeReload), ev)
	if err != nil {
		return err
	}
	return s.produce(ctx, []*kgo.Record{rec})
}

// Close releases the Kafka client when the sink was created by Dial.
func (s *Sink) Close() {
	s.close()
}

func (s *Sink) newEvent(typ string) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   typ,
		NodeID: s.nodeID,
		Time:   s.now().UTC(),
	}
}

func (s *Sink) record(key []byte, ev Event) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	return &kgo.Record{
		Topic: s.topic,
		Key:   key,
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}

func (s *Sink) produce(ctx context.Context, rs []*kgo.Record) error {
	err := s.producer.ProduceSync(ctx, rs...).FirstErr()
	for range rs {
		s.metrics.ObserveEvent(err)
	}
	if err != nil {
		log.ErrorErr(log.CatEvents, "Failed to publish events", err, "count", len(rs))
		return fmt.Errorf("publishing %d events: %w", len(rs), err)
	}
	return nil
}
