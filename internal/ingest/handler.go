package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/twmb/franz-go/pkg/kgo"

	"issuance/internal/platform/kafka"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

const maxEventBytes = 1 << 20

// EventDispatcher applies one raw event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, raw []byte) error
}

type Handler struct {
	dispatcher EventDispatcher
	logger     *slog.Logger
}

func NewHandler(dispatcher EventDispatcher, logger *slog.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.HandleFunc("/ingest", h.HandleIngest)
}

// HandleIngest accepts a single event. Only POST is allowed.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}
	ctx := r.Context()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event body could not be read"))
		return
	}
	if err := h.dispatcher.Dispatch(ctx, raw); err != nil {
		h.logger.WarnContext(ctx, "ingest failed", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RecordHandler adapts the dispatcher to a Kafka consumer. The acting
// principal is read from the record's principal header and the record key
// becomes the request id.
func RecordHandler(dispatcher EventDispatcher) kafka.Handler {
	return func(ctx context.Context, rec *kgo.Record) error {
		ctx = requestcontext.WithPrincipal(ctx, id.PrincipalID(kafka.Header(rec, kafka.PrincipalHeader)))
		if len(rec.Key) > 0 {
			ctx = requestcontext.WithRequestID(ctx, string(rec.Key))
		}
		return dispatcher.Dispatch(ctx, rec.Value)
	}
}
