package engine

// EventType enumerates the order intents and notifications the engine
// emits per bar.
type EventType int

const (
	EventOrderSubmit EventType = iota
	EventOrderCancel
	EventOrderReject
	EventOrderFill
	EventStopHit
	EventTakeProfitHit
	EventStopMigrated
	EventForcedFlatten
	EventDailyReset
)

func (t EventType) String() string {
	switch t {
	case EventOrderSubmit:
		return "ORDER_SUBMIT"
	case EventOrderCancel:
		return "ORDER_CANCEL"
	case EventOrderReject:
		return "ORDER_REJECT"
	case EventOrderFill:
		return "ORDER_FILL"
	case EventStopHit:
		return "STOP_HIT"
	case EventTakeProfitHit:
		return "TAKE_PROFIT_HIT"
	case EventStopMigrated:
		return "STOP_MIGRATED"
	case EventForcedFlatten:
		return "FORCED_FLATTEN"
	default:
		return "DAILY_RESET"
	}
}

// Event is one entry in the per-run audit trail.
type Event struct {
	Ts      int64
	Type    EventType
	Symbol  string
	OrderID OrderID
	Kind    OrderKind
	Side    TradeSide
	Price   float64
	Qty     float64
	Detail  string
}

// EventLog is an append-only event trail for a single run.
type EventLog struct {
	Events []Event
}

// Append records an event.
func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }
