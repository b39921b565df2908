//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "moflow/pkg/platform/audit"
	"moflow/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *Store
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) TearDownSuite() {
	s.redis.Terminate(s.T())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.store = New(s.redis.Client, uuid.NewString(), time.Hour)
}

func (s *RedisStoreSuite) TestAppendAssignsSequenceInOrder() {
	for i := range 4 {
		s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
			Kind:      audit.KindEmployeeCreate,
			SubjectID: fmt.Sprintf("e-%d", i),
		}))
	}

	all, err := s.store.All(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	for i, e := range all {
		s.Equal(uint64(i+1), e.Seq)
		s.Equal(fmt.Sprintf("e-%d", i), e.SubjectID)
	}

	recent, err := s.store.Recent(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal("e-2", recent[0].SubjectID)
	s.Equal("e-3", recent[1].SubjectID)
}

func (s *RedisStoreSuite) TestKeyExpires() {
	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{Kind: audit.KindError}))
	ttl, err := s.redis.Client.PTTL(s.ctx, s.store.key).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}
