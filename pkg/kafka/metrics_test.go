package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerMetrics_CountPublishOutcomes(t *testing.T) {
	topic := Topic("metrics", "test")
	published := testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic))
	failed := testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic))

	evt, err := NewEvent("metrics.test", "k", "cart-service", nil)
	require.NoError(t, err)

	require.NoError(t, NewProducerWithWriter(&recordingWriter{}, nil, nil).Publish(context.Background(), topic, evt))
	require.Error(t, NewProducerWithWriter(&recordingWriter{err: errors.New("down")}, nil, nil).Publish(context.Background(), topic, evt))

	assert.Equal(t, published+1, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
	assert.Equal(t, failed+1, testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic)))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(ProducerPublishDuration), 1)
}
