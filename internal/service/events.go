package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/txflow"
)

const publishTimeout = 5 * time.Second

// EventPublisher forwards lifecycle events to the signal bus: live on
// ChannelTx and durably on StreamTx.
type EventPublisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

var _ txflow.Listener = (*EventPublisher)(nil)

// NewEventPublisher creates an EventPublisher over bus.
func NewEventPublisher(bus domain.SignalBus, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:    bus,
		logger: logger.With(slog.String("component", "tx_events")),
	}
}

// OnTxEvent publishes ev. Bus failures are logged and dropped.
func (p *EventPublisher) OnTxEvent(ev domain.TxEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal tx event", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.bus.Publish(ctx, domain.ChannelTx, payload); err != nil {
		p.logger.Warn("publish tx event",
			slog.String("operation_id", ev.OperationID),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.StreamAppend(ctx, domain.StreamTx, payload); err != nil {
		p.logger.Warn("append tx event",
			slog.String("operation_id", ev.OperationID),
			slog.String("error", err.Error()),
		)
	}
}

// LogListener logs every lifecycle transition.
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener creates a LogListener.
func NewLogListener(logger *slog.Logger) *LogListener {
	return &LogListener{logger: logger.With(slog.String("component", "tx"))}
}

// OnTxEvent logs ev at info, or warn for failures.
func (l *LogListener) OnTxEvent(ev domain.TxEvent) {
	attrs := []any{
		slog.String("operation_id", ev.OperationID),
		slog.String("kind", string(ev.Kind)),
		slog.String("key", ev.Key),
		slog.String("state", string(ev.State)),
	}
	if ev.TxHash != "" {
		attrs = append(attrs, slog.String("tx_hash", ev.TxHash))
	}
	if ev.State == domain.TxConfirmed {
		attrs = append(attrs, slog.Uint64("block", ev.BlockNumber), slog.Uint64("gas_used", ev.GasUsed))
	}
	if ev.State == domain.TxFailed {
		l.logger.Warn("tx failed", append(attrs, slog.String("error", ev.Error))...)
		return
	}
	l.logger.Info("tx transition", attrs...)
}

// Listeners fans one event out to several listeners in order.
type Listeners []txflow.Listener

// OnTxEvent calls every non-nil listener.
func (ls Listeners) OnTxEvent(ev domain.TxEvent) {
	for _, l := range ls {
		if l != nil {
			l.OnTxEvent(ev)
		}
	}
}
