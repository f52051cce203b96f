package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"riskvault/internal/config"
	"riskvault/internal/feed"

	"go.uber.org/zap"
)

// Client is the REST side of Hermes, used to backfill the latest quote at
// startup before the stream delivers its first update.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// LatestPriceFeeds fetches the current quote for each feed id.
func (c *Client) LatestPriceFeeds(ctx context.Context, ids []string) (map[string]feed.PriceSample, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("ids[]", id)
	}
	endpoint := c.baseURL + "/api/latest_price_feeds?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("hermes: http %d: %s", resp.StatusCode, string(body))
	}
	var feedsResp []priceFeed
	if err := json.NewDecoder(resp.Body).Decode(&feedsResp); err != nil {
		return nil, err
	}
	out := make(map[string]feed.PriceSample, len(feedsResp))
	for _, pf := range feedsResp {
		sample, err := pf.Price.Sample()
		if err != nil {
			if c.log != nil {
				c.log.Warn("hermes backfill sample rejected", zap.String("id", pf.ID), zap.Error(err))
			}
			continue
		}
		out[normalizeID(pf.ID)] = sample
	}
	return out, nil
}

// Backfill seeds the feed store with the latest quotes for the configured
// instruments. Missing or rejected feeds are logged, not fatal.
func Backfill(ctx context.Context, c *Client, cfg config.HermesConfig, feeds *feed.Store) error {
	ids := make([]string, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		ids = append(ids, f.ID)
	}
	samples, err := c.LatestPriceFeeds(ctx, ids)
	if err != nil {
		return err
	}
	for _, f := range cfg.Feeds {
		sample, ok := samples[normalizeID(f.ID)]
		if !ok {
			continue
		}
		if err := feeds.Update(f.Symbol, sample); err != nil && c.log != nil {
			c.log.Warn("hermes backfill dropped",
				zap.String("instrument", f.Symbol), zap.Error(err))
		}
	}
	return nil
}
