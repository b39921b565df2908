package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type TracingSuite struct {
	suite.Suite
}

func TestTracingSuite(t *testing.T) {
	suite.Run(t, new(TracingSuite))
}

func (s *TracingSuite) TestNoEndpointStillPropagates() {
	shutdown, err := Setup(context.Background(), "", "moflow", false)
	s.Require().NoError(err)
	defer func() { s.NoError(shutdown(context.Background())) }()

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	s.True(span.SpanContext().IsValid())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	s.NotEmpty(carrier.Get("traceparent"))
}

func (s *TracingSuite) TestRejectsEndpointWithoutHost() {
	_, err := Setup(context.Background(), "http://", "moflow", false)
	s.ErrorContains(err, "missing host")
}
