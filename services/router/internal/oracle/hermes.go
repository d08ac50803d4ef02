package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

// HermesFeed reads the latest parsed price updates from a Pyth Hermes endpoint.
type HermesFeed struct {
	baseURL string
	client  *http.Client
}

func NewHermesFeed(baseURL string, timeout time.Duration) *HermesFeed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HermesFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesParsed struct {
	ID    string      `json:"id"`
	Price hermesPrice `json:"price"`
}

type hermesResponse struct {
	Parsed []hermesParsed `json:"parsed"`
}

func (f *HermesFeed) Quote(ctx context.Context, feedID string) (domain.Quote, error) {
	q := url.Values{}
	q.Add("ids[]", feedID)
	q.Set("parsed", "true")
	endpoint := f.baseURL + "/v2/updates/price/latest?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("build hermes request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("hermes request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Quote{}, fmt.Errorf("hermes status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Quote{}, fmt.Errorf("decode hermes response: %w", err)
	}
	for _, p := range payload.Parsed {
		if !sameFeed(p.ID, feedID) {
			continue
		}
		return p.toQuote()
	}
	return domain.Quote{}, fmt.Errorf("feed %s missing from hermes response", feedID)
}

func (p hermesParsed) toQuote() (domain.Quote, error) {
	price, err := strconv.ParseInt(p.Price.Price, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse price: %w", err)
	}
	conf, err := strconv.ParseUint(p.Price.Conf, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse conf: %w", err)
	}
	return domain.Quote{
		FeedID:      p.ID,
		Price:       price,
		Conf:        conf,
		Expo:        p.Price.Expo,
		PublishTime: time.Unix(p.Price.PublishTime, 0).UTC(),
	}, nil
}
