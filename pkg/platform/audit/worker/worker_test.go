package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "moflow/pkg/platform/audit"
	"moflow/pkg/platform/audit/store/memory"
)

func TestWorker_DrainsClosedInbox(t *testing.T) {
	store := memory.NewInMemoryStore()
	inbox := make(chan audit.Entry, 3)
	inbox <- audit.Entry{Kind: audit.KindEmployeeCreate, SubjectID: "a"}
	inbox <- audit.Entry{Kind: audit.KindError}
	inbox <- audit.Entry{Kind: audit.KindOrganisationMove, SubjectID: "b"}
	close(inbox)

	err := NewWorker(store, inbox, nil).Run(context.Background())
	require.NoError(t, err)

	entries, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, audit.KindEmployeeCreate, entries[0].Kind)
	assert.Equal(t, audit.KindOrganisationMove, entries[2].Kind)
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	inbox := make(chan audit.Entry)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewWorker(memory.NewInMemoryStore(), inbox, nil).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
