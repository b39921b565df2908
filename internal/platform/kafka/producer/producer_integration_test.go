//go:build integration

package producer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"moflow/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *Producer
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())
	p, err := New(Config{Brokers: s.redpanda.Brokers, ClientID: "moflow-test"}, slog.Default())
	s.Require().NoError(err)
	s.producer = p
}

func (s *ProducerSuite) TearDownSuite() {
	s.producer.Close(context.Background())
	s.redpanda.Terminate(s.T())
}

func (s *ProducerSuite) TestEnsureTopicsIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Require().NoError(s.producer.EnsureTopics(ctx, 1, 1, "employee.employee.create", "org_unit.org_unit.update"))
	s.Require().NoError(s.producer.EnsureTopics(ctx, 1, 1, "employee.employee.create"))
}

func (s *ProducerSuite) TestPublishRoundTrip() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "employee.engagement.update"
	s.Require().NoError(s.producer.EnsureTopics(ctx, 1, 1, topic))
	s.Require().NoError(s.producer.Publish(ctx, Message{
		Topic:   topic,
		Key:     []byte("emp-1"),
		Value:   []byte(`{"uuid":"emp-1","time":"2024-06-15T00:00:00Z"}`),
		Headers: map[string]string{"request_id": "req-1"},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	recs := fetches.Records()
	s.Require().NotEmpty(recs)
	s.Equal("emp-1", string(recs[0].Key))
	s.JSONEq(`{"uuid":"emp-1","time":"2024-06-15T00:00:00Z"}`, string(recs[0].Value))
	s.Equal("request_id", recs[0].Headers[0].Key)
}

func (s *ProducerSuite) TestPing() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.NoError(s.producer.Ping(ctx))
}
