package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultQuotePrefix = "router:quote:"

// CachedFeed keeps recent quotes in redis. Staleness is still judged on the
// quote's publish time, so a cached quote can never outlive MaxQuoteAge.
type CachedFeed struct {
	inner  domain.PriceFeed
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCachedFeed(inner domain.PriceFeed, client *redis.Client, ttl time.Duration, prefix string, logger *slog.Logger) *CachedFeed {
	if prefix == "" {
		prefix = defaultQuotePrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFeed{
		inner:  inner,
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

type cachedQuote struct {
	FeedID      string `json:"feed_id"`
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

func (f *CachedFeed) Quote(ctx context.Context, feedID string) (domain.Quote, error) {
	key := f.prefix + feedID
	raw, err := f.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached cachedQuote
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return domain.Quote{
				FeedID:      cached.FeedID,
				Price:       cached.Price,
				Conf:        cached.Conf,
				Expo:        cached.Expo,
				PublishTime: time.Unix(cached.PublishTime, 0).UTC(),
			}, nil
		}
		f.logger.Warn("discarding undecodable cached quote", "feed_id", feedID)
	} else if !errors.Is(err, redis.Nil) {
		f.logger.Warn("quote cache read failed", "feed_id", feedID, "error", err)
	}

	q, err := f.inner.Quote(ctx, feedID)
	if err != nil {
		return domain.Quote{}, err
	}

	payload, err := json.Marshal(cachedQuote{
		FeedID:      q.FeedID,
		Price:       q.Price,
		Conf:        q.Conf,
		Expo:        q.Expo,
		PublishTime: q.PublishTime.Unix(),
	})
	if err == nil {
		if setErr := f.client.Set(ctx, key, payload, f.ttl).Err(); setErr != nil {
			f.logger.Warn("quote cache write failed", "feed_id", feedID, "error", setErr)
		}
	}
	return q, nil
}
