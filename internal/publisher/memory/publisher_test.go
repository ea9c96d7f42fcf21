package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "runs", map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "runs", msgs[0].Topic)
	assert.Equal(t, "audit", msgs[1].Topic)

	msgs[0].Topic = "modified"
	assert.Equal(t, "runs", pub.Messages()[0].Topic, "Messages returns a copy")
}

func TestPublisherTopicFilter(t *testing.T) {
	t.Parallel()

	pub := New()
	_, _ = pub.Publish(context.Background(), "runs", 1)
	_, _ = pub.Publish(context.Background(), "other", 2)
	_, _ = pub.Publish(context.Background(), "runs", 3)

	got := pub.ByTopic("runs")
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[1].Payload)
}
