// Package notify forwards finished write operations to operator chat
// channels (Discord, Telegram). Delivery runs on its own goroutine so a slow
// webhook never holds up the transaction lifecycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/format"
)

const (
	queueSize   = 64
	sendTimeout = 10 * time.Second
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier turns terminal lifecycle events into messages for every sender.
// Events are filtered by state ("confirmed", "failed") or by kind and state
// ("bet.failed"); an empty filter passes every terminal event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan domain.TxEvent
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan domain.TxEvent, queueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// OnTxEvent queues ev when it is terminal and passes the filter. A full
// queue drops the event.
func (n *Notifier) OnTxEvent(ev domain.TxEvent) {
	if !ev.State.Terminal() || !n.allowed(ev) || !n.Enabled() {
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.logger.Warn("notify queue full, dropping event",
			slog.String("operation_id", ev.OperationID),
		)
	}
}

func (n *Notifier) allowed(ev domain.TxEvent) bool {
	if len(n.events) == 0 {
		return true
	}
	state := string(ev.State)
	return n.events[state] || n.events[string(ev.Kind)+"."+state]
}

// Run delivers queued events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-n.queue:
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			title, msg := Render(ev)
			_ = n.dispatch(sctx, title, msg)
			cancel()
		}
	}
}

// dispatch sends to every sender. One failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

var kindLabels = map[domain.OpKind]string{
	domain.OpCreate:            "Create prediction",
	domain.OpBet:               "Bet against",
	domain.OpRequestSettlement: "Request settlement",
	domain.OpFinalize:          "Finalize settlement",
	domain.OpWithdraw:          "Withdraw",
	domain.OpApprove:           "Approve stake token",
}

// Render builds the title and body for a terminal event.
func Render(ev domain.TxEvent) (string, string) {
	label, ok := kindLabels[ev.Kind]
	if !ok {
		label = string(ev.Kind)
	}
	title := fmt.Sprintf("%s %s", label, ev.State)

	var b strings.Builder
	fmt.Fprintf(&b, "operation %s", ev.OperationID)
	if ev.Key != "" {
		fmt.Fprintf(&b, " (%s)", ev.Key)
	}
	if ev.TxHash != "" {
		fmt.Fprintf(&b, "\ntx %s", format.FormatAddress(ev.TxHash))
	}
	switch ev.State {
	case domain.TxConfirmed:
		fmt.Fprintf(&b, "\nblock %d, gas used %d", ev.BlockNumber, ev.GasUsed)
	case domain.TxFailed:
		if ev.Error != "" {
			fmt.Fprintf(&b, "\nerror: %s", ev.Error)
		}
	}
	return title, b.String()
}
