package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefaults() {
	cfg, err := FromEnv()
	s.Require().NoError(err)

	s.Equal(":8080", cfg.Server.Addr)
	s.Equal(30*time.Second, cfg.Gateway.Timeout)
	s.Equal(AuditStoreMemory, cfg.Audit.Store)
	s.Equal(8*time.Hour, cfg.Session.TTL)
	s.Equal("da", cfg.Locale.Default)
	s.False(cfg.Kafka.Enabled())
}

func (s *ConfigSuite) TestOverrides() {
	s.T().Setenv("MO_BASE_URL", "https://mo.example.org")
	s.T().Setenv("MO_HEADERS", "Session:abc,X-Client:moflow")
	s.T().Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,k1:9092")
	s.T().Setenv("SESSION_TTL", "30m")

	cfg, err := FromEnv()
	s.Require().NoError(err)

	s.Equal("https://mo.example.org", cfg.Gateway.BaseURL)
	s.Equal(map[string]string{"Session": "abc", "X-Client": "moflow"}, cfg.Gateway.Headers)
	s.Equal([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	s.True(cfg.Kafka.Enabled())
	s.Equal(30*time.Minute, cfg.Session.TTL)
}

func (s *ConfigSuite) TestInvalidCombinations() {
	s.Run("relative base url", func() {
		s.T().Setenv("MO_BASE_URL", "/service")
		_, err := FromEnv()
		s.ErrorContains(err, "MO_BASE_URL")
	})

	s.Run("redis store without url", func() {
		s.T().Setenv("AUDIT_STORE", AuditStoreRedis)
		_, err := FromEnv()
		s.ErrorContains(err, "REDIS_URL")
	})

	s.Run("unknown store", func() {
		s.T().Setenv("AUDIT_STORE", "postgres")
		_, err := FromEnv()
		s.ErrorContains(err, "unknown AUDIT_STORE")
	})

	s.Run("bad duration", func() {
		s.T().Setenv("SESSION_TTL", "soon")
		_, err := FromEnv()
		s.Error(err)
	})
}
