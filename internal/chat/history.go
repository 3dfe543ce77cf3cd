package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/johndosdos/conecta/internal/metrics"
	"github.com/johndosdos/conecta/internal/model"
	"github.com/johndosdos/conecta/internal/store"
)

// HistorySync observes a durable log and hands every snapshot, decoded and
// in store order, to the caller, which replaces its view with it.
type HistorySync struct {
	store   store.Store
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewHistorySync(st store.Store, log *slog.Logger, m *metrics.Metrics) *HistorySync {
	if log == nil {
		log = slog.Default()
	}
	return &HistorySync{store: st, log: log, metrics: m}
}

// Subscribe starts observing path. A setup failure is returned; a later
// store failure is passed to onError once and delivery stops without retry.
func (h *HistorySync) Subscribe(ctx context.Context, path string, onUpdate func([]model.Entry), onError func(error)) (store.Subscription, error) {
	var once sync.Once
	reportErr := func(err error) {
		once.Do(func() {
			h.log.Error("history subscription failed", "path", path, "error", err)
			if onError != nil {
				onError(err)
			}
		})
	}

	return h.store.Subscribe(ctx, path, func(docs []store.Document) {
		onUpdate(h.decode(path, docs))
	}, reportErr)
}

// decode skips entries that do not parse so one corrupt document never
// blanks the conversation.
func (h *HistorySync) decode(path string, docs []store.Document) []model.Entry {
	entries := make([]model.Entry, 0, len(docs))
	for _, d := range docs {
		m, err := model.DecodeMessage(d.Data)
		if err != nil {
			h.metrics.IncMalformed(metrics.Durable)
			h.log.Warn("skipping malformed record", "path", path, "key", d.Key, "error", err)
			continue
		}
		entries = append(entries, model.DurableEntry(d.Key, m))
	}
	return entries
}
