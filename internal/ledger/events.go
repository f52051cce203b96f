package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventDeposit     EventType = "deposit"
	EventBorrow      EventType = "borrow"
	EventRepay       EventType = "repay"
	EventWithdraw    EventType = "withdraw"
	EventDeleverage  EventType = "deleverage"
	EventLiquidation EventType = "liquidation"
	EventBadDebt     EventType = "bad_debt"
)

// Event is the auditable record of one committed state change. BadDebt is an
// event, not an error: a shortfall is surfaced for downstream accounting,
// never silently dropped.
type Event struct {
	Type          EventType       `json:"type"`
	Principal     common.Address  `json:"principal"`
	Caller        common.Address  `json:"caller"`
	Instrument    string          `json:"instrument"`
	Amount        decimal.Decimal `json:"amount"`
	InterestPaid  decimal.Decimal `json:"interest_paid"`
	PrincipalPaid decimal.Decimal `json:"principal_paid"`
	Lambda        int64           `json:"lambda"`
	BadDebt       decimal.Decimal `json:"bad_debt"`
	Time          time.Time       `json:"time"`
}

// EventSink receives committed events. Implementations must not call back
// into the ledger.
type EventSink interface {
	Record(Event)
}

type noopSink struct{}

func (noopSink) Record(Event) {}
