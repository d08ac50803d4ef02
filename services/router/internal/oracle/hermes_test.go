package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHermesFeedParsesLatestPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/updates/price/latest" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("ids[]"); got != "0xabc" {
			t.Errorf("unexpected feed id %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"parsed":[{"id":"abc","price":{"price":"2000000","conf":"1500","expo":-8,"publish_time":1760000000}}]}`))
	}))
	defer srv.Close()

	feed := NewHermesFeed(srv.URL, 0)
	q, err := feed.Quote(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Price != 2_000_000 || q.Conf != 1_500 || q.Expo != -8 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if q.PublishTime.Unix() != 1760000000 {
		t.Fatalf("unexpected publish time %v", q.PublishTime)
	}
}

func TestHermesFeedErrorsOnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	feed := NewHermesFeed(srv.URL, 0)
	if _, err := feed.Quote(context.Background(), "abc"); err == nil {
		t.Fatalf("expected error on non-200 status")
	}
}
