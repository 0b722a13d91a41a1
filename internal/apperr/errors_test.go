package apperr

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"drift", SchemaDrift("roster row", "PLAYER_ID"), Skip},
		{"missing ref", MissingRef("team", 1610612738), Skip},
		{"upstream wrapped", errors.Wrap(Mark(errors.New("503"), ErrUpstreamUnavailable), "fetch box score"), Skip},
		{"store", Mark(errors.New("connection refused"), ErrStoreUnavailable), Abort},
		{"store via fmt", fmt.Errorf("upsert game: %w", Mark(errors.New("bad conn"), ErrStoreUnavailable)), Abort},
		{"canceled", errors.Wrap(context.Canceled, "refresh"), Abort},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "refresh"), Abort},
		{"client timeout marked unavailable", Mark(
			errors.Wrap(&url.Error{Op: "Get", URL: "https://stats.nba.com/stats/boxscoretraditionalv3", Err: context.DeadlineExceeded}, "boxscore unavailable after 2 attempts"),
			ErrUpstreamUnavailable,
		), Skip},
		{"canceled marked drift", Mark(context.Canceled, ErrUpstreamSchemaDrift), Skip},
		{"store beats upstream", Mark(Mark(errors.New("bad conn"), ErrUpstreamUnavailable), ErrStoreUnavailable), Abort},
		{"no model", errors.Wrap(ErrNoActiveModel, "generate"), Fatal},
		{"unknown", errors.New("boom"), Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestMarkKeepsMessage(t *testing.T) {
	err := Mark(errors.New("status 429"), ErrUpstreamUnavailable)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.Equal(t, "status 429", err.Error())
	assert.Nil(t, Mark(nil, ErrUpstreamUnavailable))
}
