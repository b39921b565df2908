// Package notify publishes change notifications after successful
// submissions. Topics follow <service>.<object_type>.<action>; the body is
// {"uuid": ..., "time": ...}. Publishing is secondary to the submission:
// failures are logged and never returned to the caller.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"moflow/internal/platform/kafka/producer"
	"moflow/pkg/requestcontext"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionUpdate Action = "update"
)

var (
	services    = []string{"employee", "org_unit"}
	objectTypes = []string{
		"address",
		"association",
		"employee",
		"engagement",
		"it",
		"leave",
		"manager",
		"org_unit",
		"related_unit",
		"role",
	}
	actions = []Action{ActionCreate, ActionDelete, ActionUpdate}
)

// Notification announces that an object changed, effective from Time.
type Notification struct {
	Service    string
	ObjectType string
	Action     Action
	UUID       string
	Time       time.Time
}

// Topic validates the notification and returns its topic name.
func (n Notification) Topic() (string, error) {
	return Topic(n.Service, n.ObjectType, n.Action)
}

// Topic returns <service>.<object_type>.<action>. Unknown parts are
// programming errors.
func Topic(service, objectType string, action Action) (string, error) {
	if !slices.Contains(services, service) {
		return "", fmt.Errorf("notify: service %q not allowed, use one of %v", service, services)
	}
	if !slices.Contains(objectTypes, objectType) {
		return "", fmt.Errorf("notify: object type %q not allowed, use one of %v", objectType, objectTypes)
	}
	if !slices.Contains(actions, action) {
		return "", fmt.Errorf("notify: action %q not allowed, use one of %v", action, actions)
	}
	return fmt.Sprintf("%s.%s.%s", service, objectType, action), nil
}

// Topics lists every valid topic, for creating them up front.
func Topics() []string {
	out := make([]string, 0, len(services)*len(objectTypes)*len(actions))
	for _, s := range services {
		for _, o := range objectTypes {
			for _, a := range actions {
				out = append(out, fmt.Sprintf("%s.%s.%s", s, o, a))
			}
		}
	}
	return out
}

// Notifier delivers change notifications.
type Notifier interface {
	Notify(ctx context.Context, notes ...Notification)
}

// Nop discards notifications. Used when no brokers are configured.
type Nop struct{}

func (Nop) Notify(context.Context, ...Notification) {}

// Publisher is the transport the Kafka notifier writes to.
type Publisher interface {
	Publish(ctx context.Context, msg producer.Message) error
}

type body struct {
	UUID string `json:"uuid"`
	Time string `json:"time"`
}

// KafkaNotifier publishes each notification as one record keyed by uuid.
type KafkaNotifier struct {
	publisher Publisher
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*KafkaNotifier)

func WithLogger(l *slog.Logger) Option {
	return func(k *KafkaNotifier) {
		if l != nil {
			k.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(k *KafkaNotifier) { k.metrics = m }
}

func NewKafkaNotifier(p Publisher, opts ...Option) *KafkaNotifier {
	k := &KafkaNotifier{publisher: p, logger: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *KafkaNotifier) Notify(ctx context.Context, notes ...Notification) {
	for _, n := range notes {
		topic, err := n.Topic()
		if err != nil {
			k.logger.ErrorContext(ctx, "invalid change notification", "error", err)
			k.metrics.failed()
			continue
		}
		when := n.Time
		if when.IsZero() {
			when = requestcontext.Now(ctx)
		}
		value, err := json.Marshal(body{UUID: n.UUID, Time: when.UTC().Format(time.RFC3339)})
		if err != nil {
			k.logger.ErrorContext(ctx, "encode change notification", "topic", topic, "error", err)
			k.metrics.failed()
			continue
		}
		msg := producer.Message{Topic: topic, Key: []byte(n.UUID), Value: value}
		if reqID := requestcontext.RequestID(ctx); reqID != "" {
			msg.Headers = map[string]string{"request_id": reqID}
		}
		if err := k.publisher.Publish(ctx, msg); err != nil {
			k.logger.ErrorContext(ctx, "failed to publish change notification",
				"topic", topic,
				"uuid", n.UUID,
				"error", err,
			)
			k.metrics.failed()
			continue
		}
		k.metrics.published(topic)
	}
}

// ParseDate reads a YYYY-MM-DD effective date. An empty or malformed date
// yields the zero time, which Notify replaces with the request time.
func ParseDate(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
