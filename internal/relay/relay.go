// Package relay forwards the backend's push notifications to a broker so
// that many dashboard instances share one upstream connection.
package relay

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-booking-dashboard/internal/live"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
)

const maxPublishRetries = 3

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

type Relay struct {
	channel   *live.Channel
	publisher Publisher
	logger    observability.Logger
	retry     time.Duration
}

func New(channel *live.Channel, publisher Publisher, logger observability.Logger) *Relay {
	return &Relay{channel: channel, publisher: publisher, logger: logger, retry: time.Second}
}

// Run publishes one message per upstream notification until ctx is done or
// the channel gives up. It returns the number of messages published.
func (r *Relay) Run(ctx context.Context) (int, error) {
	signals, err := r.channel.Subscribe(ctx)
	if err != nil {
		return 0, err
	}
	defer r.channel.Close()

	r.logger.Info("notification relay started")
	published := 0
	for sig := range signals {
		body := []byte(strconv.FormatUint(sig.Seq, 10))
		if err := r.publishWithRetry(ctx, body); err != nil {
			r.logger.WithField("seq", sig.Seq).Error("failed to relay notification after retries: ", err)
			continue
		}
		published++
	}
	return published, ctx.Err()
}

func (r *Relay) publishWithRetry(ctx context.Context, body []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.retry
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxPublishRetries), ctx)

	return backoff.Retry(func() error {
		err := r.publisher.Publish(ctx, body)
		if err != nil && errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
