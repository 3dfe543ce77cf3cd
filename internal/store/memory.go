package store

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/johndosdos/conecta/internal/model"
)

// MemMaxDocumentsPerPath bounds each path's log in a MemoryStore.
const MemMaxDocumentsPerPath = 10_000

// MemoryStore is the dev and test store used when no database is configured.
// It keeps at most MemMaxDocumentsPerPath documents per path; past that the
// oldest are dropped, so it is not a complete log for long conversations.
type MemoryStore struct {
	mu        sync.Mutex
	logs      map[string][]Document
	subs      map[string]map[*memSubscription]struct{}
	appendErr error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs: make(map[string][]Document),
		subs: make(map[string]map[*memSubscription]struct{}),
	}
}

// FailAppend makes subsequent appends return err. Pass nil to clear.
func (s *MemoryStore) FailAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// Documents returns a copy of the log at path.
func (s *MemoryStore) Documents(path string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Document(nil), s.logs[path]...)
}

// Records decodes the log at path, skipping malformed documents.
func (s *MemoryStore) Records(path string) []model.Message {
	var out []model.Message
	for _, d := range s.Documents(path) {
		if m, err := model.DecodeMessage(d.Data); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (s *MemoryStore) Append(ctx context.Context, path string, m model.Message) (string, error) {
	if path == "" {
		return "", errors.New("store: missing path")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := m.Encode()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.appendErr != nil {
		err := s.appendErr
		s.mu.Unlock()
		return "", err
	}
	s.mu.Unlock()

	return s.AppendRaw(path, p), nil
}

// AppendRaw pushes an undecoded document, as another writer of the log might.
func (s *MemoryStore) AppendRaw(path string, data []byte) string {
	key := ulid.Make().String()

	s.mu.Lock()
	log := append(s.logs[path], Document{Key: key, Data: append([]byte(nil), data...)})
	if len(log) > MemMaxDocumentsPerPath {
		log = log[len(log)-MemMaxDocumentsPerPath:]
	}
	s.logs[path] = log
	subs := s.subscribersLocked(path)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.signal()
	}
	return key
}

// Break ends every subscription on path with err, as a revoked permission
// would.
func (s *MemoryStore) Break(path string, err error) {
	s.mu.Lock()
	subs := s.subscribersLocked(path)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, onSnapshot func([]Document), onError func(error)) (Subscription, error) {
	if path == "" {
		return nil, errors.New("store: missing path")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memSubscription{
		store:   s,
		path:    path,
		cancel:  cancel,
		dirty:   make(chan struct{}, 1),
		failed:  make(chan error, 1),
		done:    make(chan struct{}),
		onSnap:  onSnapshot,
		onError: onError,
	}

	s.mu.Lock()
	if s.subs[path] == nil {
		s.subs[path] = make(map[*memSubscription]struct{})
	}
	s.subs[path][sub] = struct{}{}
	s.mu.Unlock()

	sub.signal()
	go sub.run(subCtx)

	return sub, nil
}

func (s *MemoryStore) subscribersLocked(path string) []*memSubscription {
	out := make([]*memSubscription, 0, len(s.subs[path]))
	for sub := range s.subs[path] {
		out = append(out, sub)
	}
	return out
}

func (s *MemoryStore) remove(sub *memSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[sub.path], sub)
}

type memSubscription struct {
	store   *MemoryStore
	path    string
	cancel  context.CancelFunc
	dirty   chan struct{}
	failed  chan error
	done    chan struct{}
	onSnap  func([]Document)
	onError func(error)
}

// signal coalesces change notifications; the next delivery always reads the
// latest log.
func (m *memSubscription) signal() {
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

func (m *memSubscription) fail(err error) {
	select {
	case m.failed <- err:
	default:
	}
}

func (m *memSubscription) run(ctx context.Context) {
	defer close(m.done)
	defer m.store.remove(m)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-m.failed:
			if m.onError != nil {
				m.onError(err)
			}
			return
		case <-m.dirty:
			snap := m.store.Documents(m.path)
			if m.onSnap != nil {
				m.onSnap(snap)
			}
		}
	}
}

func (m *memSubscription) Cancel() error {
	m.cancel()
	<-m.done
	return nil
}
