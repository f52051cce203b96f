// Package hermes consumes Pyth Hermes price feeds over websocket with a REST
// backfill, and converts them into ledger price samples.
package hermes

import (
	"fmt"
	"strconv"
	"time"

	"riskvault/internal/feed"

	"github.com/shopspring/decimal"
)

type wsMessage struct {
	Type      string    `json:"type"`
	PriceFeed priceFeed `json:"price_feed"`
	Status    string    `json:"status"`
	Error     string    `json:"error"`
}

type priceFeed struct {
	ID    string    `json:"id"`
	Price priceData `json:"price"`
}

// priceData is the fixed-point form Hermes publishes: an integer mantissa and
// a decimal exponent, plus an absolute confidence interval in price units.
type priceData struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// Sample converts the fixed-point quote into a price sample. The confidence
// interval is normalized into a [0, 1] score: 1 minus the relative width, so
// a tight interval scores near 1 and a wide one falls below any sane floor.
func (p priceData) Sample() (feed.PriceSample, error) {
	mantissa, err := strconv.ParseInt(p.Price, 10, 64)
	if err != nil {
		return feed.PriceSample{}, fmt.Errorf("hermes: parse price %q: %w", p.Price, err)
	}
	confMantissa, err := strconv.ParseInt(p.Conf, 10, 64)
	if err != nil {
		return feed.PriceSample{}, fmt.Errorf("hermes: parse conf %q: %w", p.Conf, err)
	}
	price := decimal.New(mantissa, p.Expo)
	if !price.IsPositive() {
		return feed.PriceSample{}, fmt.Errorf("hermes: non-positive price %s", price)
	}
	interval := decimal.New(confMantissa, p.Expo)
	score := decimal.NewFromInt(1).Sub(interval.Div(price))
	if score.IsNegative() {
		score = decimal.Zero
	}
	return feed.PriceSample{
		Price:      price,
		Confidence: score,
		Timestamp:  time.Unix(p.PublishTime, 0),
	}, nil
}

type subscribeRequest struct {
	Type    string   `json:"type"`
	IDs     []string `json:"ids"`
	Verbose bool     `json:"verbose"`
	Binary  bool     `json:"binary"`
}
