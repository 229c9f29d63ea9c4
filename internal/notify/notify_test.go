package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/sendcore/internal/domain"
)

func TestRedisSinkPublishesPerTenantChannel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub := client.Subscribe(context.Background(), "sendcore:progress:t1")
	defer sub.Close()
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	sink := NewRedisSink(client, "")
	sink.NotifyProgress("t1", "c1", domain.ProgressSummary{
		CampaignID: "c1", TotalCount: 10, SentCount: 4, FailedCount: 1,
	})

	select {
	case msg := <-sub.Channel():
		var evt ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, "t1", evt.TenantID)
		assert.Equal(t, "c1", evt.CampaignID)
		assert.Equal(t, 4, evt.SentCount)
		assert.False(t, evt.Done)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress event received")
	}
}

func TestLogSinkNeverPanics(t *testing.T) {
	LogSink{}.NotifyProgress("t1", "c1", domain.ProgressSummary{Done: true})
}
