// Package publisher emits domain events to Redis streams and to in-process
// subscribers such as the websocket hub.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamLiveGames   = "courtcast.games.live"
	StreamIngestion   = "courtcast.ingestion"
	StreamPredictions = "courtcast.predictions"
)

// Event types
const (
	EventGamesLive            = "games.live"
	EventIngestionCompleted   = "ingestion.completed"
	EventPredictionsRefreshed = "predictions.refreshed"
)

// Event is one published message.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher delivers events. Publishing is best-effort; callers log the
// error and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// IngestionCompleted is the payload of EventIngestionCompleted.
type IngestionCompleted struct {
	IngestionType string `json:"ingestion_type"`
	Status        string `json:"status"`
	Records       int    `json:"records"`
}

// PredictionsRefreshed is the payload of EventPredictionsRefreshed.
type PredictionsRefreshed struct {
	Season       string `json:"season"`
	Count        int    `json:"count"`
	ModelVersion string `json:"model_version"`
}

// StreamPublisher XADDs events to Redis streams, one stream per event family.
type StreamPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewStreamPublisher creates a publisher over an existing client. Streams
// are approximately trimmed to maxLen entries when maxLen > 0.
func NewStreamPublisher(client *redis.Client, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, maxLen: maxLen}
}

// Publish implements Publisher.
func (sp *StreamPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: StreamFor(ev.Type),
		Values: map[string]interface{}{
			"type":      ev.Type,
			"data":      string(data),
			"timestamp": ev.Timestamp.Unix(),
		},
	}
	if sp.maxLen > 0 {
		args.MaxLen = sp.maxLen
		args.Approx = true
	}
	return sp.client.XAdd(ctx, args).Err()
}

// StreamFor maps an event type to its stream.
func StreamFor(eventType string) string {
	switch eventType {
	case EventGamesLive:
		return StreamLiveGames
	case EventPredictionsRefreshed:
		return StreamPredictions
	default:
		return StreamIngestion
	}
}
