package chat

import (
	"context"
	"log/slog"
	"slices"

	"github.com/johndosdos/conecta/internal/channel"
	"github.com/johndosdos/conecta/internal/metrics"
	"github.com/johndosdos/conecta/internal/model"
)

type viewOp struct {
	apply func(v *View) bool // reports whether entries changed
	reply chan struct{}
}

// View is the ordered entries of one conversation. All reads and writes go
// through Run, so snapshot replacement and live appends never interleave.
type View struct {
	key     channel.Key
	log     *slog.Logger
	metrics *metrics.Metrics

	ops  chan viewOp
	done chan struct{}

	// Owned by Run.
	entries  []model.Entry
	watchers map[int]chan []model.Entry
	nextID   int
}

// NewView returns a View for key. Start it with Run.
func NewView(key channel.Key, log *slog.Logger, m *metrics.Metrics) *View {
	if log == nil {
		log = slog.Default()
	}
	return &View{
		key:      key,
		log:      log,
		metrics:  m,
		ops:      make(chan viewOp),
		done:     make(chan struct{}),
		watchers: make(map[int]chan []model.Entry),
	}
}

// Run applies view operations until ctx is cancelled. Watch channels are
// closed when it returns.
func (v *View) Run(ctx context.Context) {
	defer func() {
		for id, w := range v.watchers {
			close(w)
			delete(v.watchers, id)
		}
		close(v.done)
	}()

	for {
		select {
		case op := <-v.ops:
			if op.apply(v) {
				v.notify()
			}
			close(op.reply)

		case <-ctx.Done():
			v.log.Debug("view stopped", "channel", v.key.String(), "reason", ctx.Err())
			return
		}
	}
}

// Done is closed once Run has returned.
func (v *View) Done() <-chan struct{} { return v.done }

func (v *View) do(ctx context.Context, apply func(v *View) bool) error {
	op := viewOp{apply: apply, reply: make(chan struct{})}
	select {
	case v.ops <- op:
	case <-v.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Run always finishes an op it has received.
	<-op.reply
	return nil
}

// notify hands every watcher a copy of the entries. A watcher that has not
// read the previous copy gets it replaced.
func (v *View) notify() {
	for _, w := range v.watchers {
		snap := slices.Clone(v.entries)
		select {
		case <-w:
		default:
		}
		w <- snap
	}
}

// Replace substitutes the whole view with a durable snapshot.
func (v *View) Replace(ctx context.Context, entries []model.Entry) error {
	snap := slices.Clone(entries)
	return v.do(ctx, func(v *View) bool {
		v.entries = snap
		v.metrics.IncSnapshotApplied()
		return true
	})
}

// AppendLive appends a broker delivery unless it is an echo of the last
// entry. It reports whether the entry was appended.
func (v *View) AppendLive(ctx context.Context, m model.Message) (bool, error) {
	var appended bool
	err := v.do(ctx, func(v *View) bool {
		if ShouldSuppress(m.Text, v.entries) {
			return false
		}
		v.entries = append(v.entries, model.PendingEntry(m))
		appended = true
		return true
	})
	return appended, err
}

// AppendLocal appends this session's own outgoing record as pending.
func (v *View) AppendLocal(ctx context.Context, m model.Message) error {
	return v.do(ctx, func(v *View) bool {
		v.entries = append(v.entries, model.PendingEntry(m))
		return true
	})
}

// Entries returns a copy of the current view.
func (v *View) Entries(ctx context.Context) ([]model.Entry, error) {
	var out []model.Entry
	err := v.do(ctx, func(v *View) bool {
		out = slices.Clone(v.entries)
		return false
	})
	return out, err
}

// Watch returns a channel that receives the view after every change,
// starting with the current one. Call stop to unregister.
func (v *View) Watch(ctx context.Context) (<-chan []model.Entry, func(), error) {
	ch := make(chan []model.Entry, 1)
	var id int
	err := v.do(ctx, func(v *View) bool {
		v.nextID++
		id = v.nextID
		v.watchers[id] = ch
		ch <- slices.Clone(v.entries)
		return false
	})
	if err != nil {
		return nil, nil, err
	}

	stop := func() {
		_ = v.do(context.Background(), func(v *View) bool {
			if w, ok := v.watchers[id]; ok {
				delete(v.watchers, id)
				close(w)
			}
			return false
		})
	}
	return ch, stop, nil
}
