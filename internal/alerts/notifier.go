package alerts

import (
	"context"
	"fmt"
	"time"

	"riskvault/internal/ledger"

	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// Notifier filters committed ledger events down to the ones worth waking an
// operator for and pushes them over Telegram. Sends run on the caller's
// goroutine budget; failures are logged and dropped.
type Notifier struct {
	telegram *Telegram
	log      *zap.Logger
}

func NewNotifier(telegram *Telegram, log *zap.Logger) *Notifier {
	return &Notifier{telegram: telegram, log: log}
}

// Notify formats and sends the alert for one event, if it warrants one.
func (n *Notifier) Notify(event ledger.Event) {
	if n == nil || n.telegram == nil {
		return
	}
	message := format(event)
	if message == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := n.telegram.Send(ctx, message); err != nil && n.log != nil {
		n.log.Warn("alert send failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func format(event ledger.Event) string {
	switch event.Type {
	case ledger.EventLiquidation:
		return fmt.Sprintf("Liquidated vault %s on %s: repaid %s (interest %s), bad debt %s",
			event.Principal.Hex(), event.Instrument,
			event.Amount, event.InterestPaid, event.BadDebt)
	case ledger.EventBadDebt:
		return fmt.Sprintf("Bad debt write-off on vault %s (%s): %s",
			event.Principal.Hex(), event.Instrument, event.Amount)
	case ledger.EventDeleverage:
		return fmt.Sprintf("Auto-deleveraged vault %s on %s by %s (lambda now %d)",
			event.Principal.Hex(), event.Instrument, event.Amount, event.Lambda)
	default:
		return ""
	}
}
