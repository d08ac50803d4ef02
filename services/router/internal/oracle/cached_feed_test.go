package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCachedFeedServesFromRedis(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	inner := &fakeFeed{quotes: map[string]domain.Quote{"deep": deepQuote()}}
	feed := NewCachedFeed(inner, client, 5*time.Second, "test:", nil)
	ctx := context.Background()

	first, err := feed.Quote(ctx, "deep")
	if err != nil {
		t.Fatalf("first quote: %v", err)
	}
	second, err := feed.Quote(ctx, "deep")
	if err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", inner.calls)
	}
	if first.Price != second.Price || !first.PublishTime.Equal(second.PublishTime) {
		t.Fatalf("expected cached quote to match upstream")
	}

	s.FastForward(6 * time.Second)
	if _, err := feed.Quote(ctx, "deep"); err != nil {
		t.Fatalf("quote after expiry: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", inner.calls)
	}
}
