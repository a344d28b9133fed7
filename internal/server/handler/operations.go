package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/alphamarket/internal/domain"
)

const (
	defaultEventPage = 50
	maxEventPage     = 500
)

// OperationLookup returns write operations by id.
type OperationLookup interface {
	Get(id string) (domain.Operation, error)
}

// EventLog reads the durable lifecycle event stream.
type EventLog interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// OperationHandler serves write operation state.
type OperationHandler struct {
	ops    OperationLookup
	events EventLog
	logger *slog.Logger
}

// NewOperationHandler creates an OperationHandler. events may be nil, in
// which case the feed route answers 404.
func NewOperationHandler(ops OperationLookup, events EventLog, logger *slog.Logger) *OperationHandler {
	return &OperationHandler{ops: ops, events: events, logger: logHandler(logger, "operations")}
}

// Get returns the current state of one operation.
// GET /api/operations/{id}
func (h *OperationHandler) Get(w http.ResponseWriter, r *http.Request) {
	op, err := h.ops.Get(pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load operation")
		return
	}
	writeJSON(w, http.StatusOK, op)
}

type eventEntry struct {
	ID    string         `json:"id"`
	Event domain.TxEvent `json:"event"`
}

// Events pages through lifecycle events after a stream id. Pass the last
// returned id as ?after= to continue.
// GET /api/operations/events?after=0&count=50
func (h *OperationHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotFound, "event feed disabled")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count, err := queryUint(r, "count", defaultEventPage)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read events")
		return
	}
	if count == 0 || count > maxEventPage {
		count = maxEventPage
	}

	msgs, err := h.events.StreamRead(r.Context(), domain.StreamTx, after, int(count))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read events")
		return
	}
	out := make([]eventEntry, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.TxEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			h.logger.WarnContext(r.Context(), "handler: skipping malformed event",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, eventEntry{ID: m.ID, Event: ev})
	}
	next := after
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "next": next})
}
