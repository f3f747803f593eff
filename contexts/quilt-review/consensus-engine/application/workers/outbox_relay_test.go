package workers

import (
	"context"
	"errors"
	"testing"

	"quiltqc/contexts/quilt-review/consensus-engine/adapters/memory"
	"quiltqc/contexts/quilt-review/consensus-engine/application/commands"

	"github.com/stretchr/testify/require"
)

func TestOutboxRelayPublishesConsensusEvents(t *testing.T) {
	store := memory.NewStore(5)
	seedVotes(t, store, 1, "[1]", "[1]")
	_, err := commands.CheckConsensusUseCase{Votes: store, Blocks: store, Clock: store, IDGen: store}.
		Execute(context.Background(), 1)
	require.NoError(t, err)

	relay := OutboxRelay{Outbox: store, Publisher: store, Clock: store}
	published, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, published)

	events := store.PublishedEvents()
	require.Len(t, events, 1)
	require.Equal(t, commands.EventConsensusReached, events[0].EventType)

	published, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, published)
}

func TestOutboxRelayKeepsRowPendingWhenPublishFails(t *testing.T) {
	store := memory.NewStore(5)
	seedVotes(t, store, 1, "[1]", "[1]")
	_, err := commands.CheckConsensusUseCase{Votes: store, Blocks: store, Clock: store, IDGen: store}.
		Execute(context.Background(), 1)
	require.NoError(t, err)
	store.FailOn("publish", errors.New("broker down"))

	relay := OutboxRelay{Outbox: store, Publisher: store}
	_, err = relay.RunOnce(context.Background())
	require.Error(t, err)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}
