package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tradeloop/internal/gateway/notifier"
	"tradeloop/internal/logger"
)

type EventType string

const (
	EventEngineStarted        EventType = "engine_started"
	EventEngineStopped        EventType = "engine_stopped"
	EventTickStarted          EventType = "tick_started"
	EventTickCompleted        EventType = "tick_completed"
	EventTickFailed           EventType = "tick_failed"
	EventDayRollover          EventType = "day_rollover"
	EventEquityUnavailable    EventType = "equity_unavailable"
	EventMarketClosed         EventType = "market_closed"
	EventSymbolSkipped        EventType = "symbol_skipped"
	EventOpportunityDiscarded EventType = "opportunity_discarded"
	EventOrderSubmitted       EventType = "order_submitted"
	EventOrderFailed          EventType = "order_failed"
	EventPositionExit         EventType = "position_exit"
	EventLedgerFailed         EventType = "ledger_failed"
	EventRiskPaused           EventType = "risk_paused"
	EventRiskResumed          EventType = "risk_resumed"
)

// Event is one structured record of something the engine did or skipped.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	TickID   string         `json:"tick_id,omitempty"`
	Symbol   string         `json:"symbol,omitempty"`
	Strategy string         `json:"strategy,omitempty"`
	Message  string         `json:"message,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// EventSink receives engine events. Emit may be called from several
// goroutines during one tick.
type EventSink interface {
	Emit(Event)
}

type MultiSink []EventSink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// LogSink writes events through the process logger.
type LogSink struct{}

func (LogSink) Emit(ev Event) {
	attrs := []any{"event", string(ev.Type)}
	if ev.TickID != "" {
		attrs = append(attrs, "tick", ev.TickID)
	}
	if ev.Symbol != "" {
		attrs = append(attrs, "symbol", ev.Symbol)
	}
	if ev.Strategy != "" {
		attrs = append(attrs, "strategy", ev.Strategy)
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, k, v)
	}
	msg := ev.Message
	if msg == "" {
		msg = string(ev.Type)
	}
	logger.L().Log(context.Background(), levelFor(ev.Type), msg, attrs...)
}

func levelFor(t EventType) slog.Level {
	switch t {
	case EventTickFailed, EventLedgerFailed:
		return slog.LevelError
	case EventOrderFailed, EventRiskPaused, EventEquityUnavailable:
		return slog.LevelWarn
	case EventTickStarted, EventSymbolSkipped, EventOpportunityDiscarded, EventMarketClosed:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// MemorySink keeps the most recent events for the control surface.
type MemorySink struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = 200
	}
	return &MemorySink{limit: limit}
}

func (m *MemorySink) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if over := len(m.events) - m.limit; over > 0 {
		m.events = append([]Event(nil), m.events[over:]...)
	}
}

// Events returns a copy, oldest first.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MemorySink) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// NotifySink forwards lifecycle and risk events to an operator channel.
// Delivery happens off the caller's goroutine.
type NotifySink struct {
	Notifier notifier.TextNotifier
	Timeout  time.Duration
}

func (n NotifySink) Emit(ev Event) {
	if n.Notifier == nil {
		return
	}
	var icon, title string
	switch ev.Type {
	case EventRiskPaused:
		icon, title = "🛑", "Daily loss limit reached"
	case EventRiskResumed:
		icon, title = "✅", "Trading resumed"
	case EventEngineStarted:
		icon, title = "▶️", "Engine started"
	case EventEngineStopped:
		icon, title = "⏹", "Engine stopped"
	default:
		return
	}
	var lines []string
	if ev.Message != "" {
		lines = append(lines, ev.Message)
	}
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, ev.Fields[k]))
	}
	text := notifier.Message{
		Icon:      icon,
		Title:     title,
		Sections:  []notifier.Section{{Lines: lines}},
		Timestamp: ev.Time,
	}.RenderMarkdown()
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.Notifier.SendText(ctx, text); err != nil {
			logger.Warnf("notify %s failed: %v", ev.Type, err)
		}
	}()
}
