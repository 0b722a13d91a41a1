package publisher

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ events []Event }

func (r *recorder) Deliver(ev Event) { r.events = append(r.events, ev) }

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("redis down") }

func TestStreamPublisher_XAdd(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sp := NewStreamPublisher(client, 100)
	ctx := context.Background()

	require.NoError(t, sp.Publish(ctx, Event{
		Type:    EventPredictionsRefreshed,
		Payload: PredictionsRefreshed{Season: "2025-26", Count: 30, ModelVersion: "lstm_v1"},
	}))

	msgs, err := client.XRange(ctx, StreamPredictions, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventPredictionsRefreshed, msgs[0].Values["type"])
	assert.JSONEq(t, `{"season":"2025-26","count":30,"model_version":"lstm_v1"}`, msgs[0].Values["data"].(string))
}

func TestStreamFor(t *testing.T) {
	assert.Equal(t, StreamLiveGames, StreamFor(EventGamesLive))
	assert.Equal(t, StreamPredictions, StreamFor(EventPredictionsRefreshed))
	assert.Equal(t, StreamIngestion, StreamFor(EventIngestionCompleted))
}

func TestFanout_DeliversDespitePrimaryFailure(t *testing.T) {
	rec := &recorder{}
	f := NewFanout(failing{}, rec)
	late := &recorder{}
	f.Subscribe(late)

	err := f.Publish(context.Background(), Event{Type: EventGamesLive, Payload: map[string]int{"id": 1}})
	require.Error(t, err)
	assert.Len(t, rec.events, 1)
	assert.Len(t, late.events, 1)

	assert.NoError(t, NewFanout(nil, rec).Publish(context.Background(), Event{Type: EventGamesLive}))
	assert.Len(t, rec.events, 2)
}
