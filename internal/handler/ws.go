package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/conecta/internal/channel"
	"github.com/johndosdos/conecta/internal/chat"
	"github.com/johndosdos/conecta/internal/model"
)

const writeTimeout = 10 * time.Second

// Frame types written to the websocket.
const (
	FrameView     = "view"
	FrameAdvisory = "advisory"
	FrameError    = "error"
)

type Frame struct {
	Type    string      `json:"type"`
	Entries []FrameItem `json:"entries,omitempty"`
	Message string      `json:"message,omitempty"`
}

type FrameItem struct {
	Key       string `json:"key,omitempty"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Pending   bool   `json:"pending"`
}

func viewFrame(entries []model.Entry) Frame {
	items := make([]FrameItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, FrameItem{
			Key:       e.Key,
			SenderID:  e.SenderID,
			Text:      e.Text,
			Timestamp: e.Timestamp,
			Pending:   e.Origin == model.Pending,
		})
	}
	return Frame{Type: FrameView, Entries: items}
}

// ServeWs opens a session with the {target} participant and bridges it to
// the websocket: every view change goes out as a frame, every incoming text
// frame is sent.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := chi.URLParam(r, "target")

	sess, err := s.Open(ctx, s.Identify(r), target)
	switch {
	case errors.Is(err, channel.ErrNoActiveSession):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	case errors.Is(err, channel.ErrInvalidTarget), errors.Is(err, channel.ErrInvalidIdentity):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.Log.ErrorContext(ctx, "failed to open session", "target", target, "error", err)
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.Log.WarnContext(ctx, "session close incomplete", "error", err)
		}
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.Log.WarnContext(ctx, "websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, stop, err := sess.Watch(ctx)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "view unavailable")
		return
	}
	defer stop()

	s.Log.InfoContext(ctx, "websocket session opened", "self", sess.Self(), "channel", sess.Channel().Key.String())

	notices := make(chan Frame, 8)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readSends(ctx, cancel, conn, sess, notices)
	}()
	// The reader may be inside Send; it must be gone before the session closes.
	defer func() {
		cancel()
		<-readDone
	}()

	for {
		var f Frame
		select {
		case entries, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			f = viewFrame(entries)
		case msg := <-sess.Advisories():
			f = Frame{Type: FrameAdvisory, Message: msg}
		case err := <-sess.Errors():
			f = Frame{Type: FrameError, Message: err.Error()}
		case f = <-notices:
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(writeCtx, conn, f)
		cancelWrite()
		if err != nil {
			s.Log.WarnContext(ctx, "failed to write frame", "type", f.Type, "error", err)
			return
		}
	}
}

// readSends turns text frames into sends until the peer goes away.
func (s *Server) readSends(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *chat.Session, notices chan<- Frame) {
	defer cancel()

	for {
		msgType, p, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				s.Log.WarnContext(ctx, "websocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		if _, err := sess.Send(ctx, string(p)); err != nil {
			select {
			case notices <- Frame{Type: FrameError, Message: err.Error()}:
			case <-ctx.Done():
				return
			}
		}
	}
}
