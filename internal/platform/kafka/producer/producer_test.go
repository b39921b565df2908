package producer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}
