package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/elec-mate/coursepages/internal/session"
)

const socketWriteTimeout = 5 * time.Second

// socketReply is sent for every answer read from the socket.
type socketReply struct {
	Feedback *session.Feedback `json:"feedback,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// handleSocket streams answers for one mount. Each JSON answer read is applied
// to the mount and answered with its feedback.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Open(r.Context(), id); err != nil {
		s.mountError(w, id, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originHosts(s.origins),
	})
	if err != nil {
		slog.Warn("websocket accept failed", "mount", id, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	slog.Debug("websocket connected", "mount", id)
	for {
		var a session.Answer
		if err := wsjson.Read(ctx, conn, &a); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				slog.Debug("websocket closed", "mount", id, "error", err)
			}
			return
		}

		reply, err := s.socketAnswer(ctx, id, a)
		if werr := socketWrite(ctx, conn, reply); werr != nil {
			slog.Debug("websocket write failed", "mount", id, "error", werr)
			return
		}
		if errors.Is(err, session.ErrMountNotFound) {
			conn.Close(websocket.StatusPolicyViolation, "mount expired")
			return
		}
	}
}

func (s *Server) socketAnswer(ctx context.Context, id string, a session.Answer) (socketReply, error) {
	if _, err := session.ParseWidget(string(a.Widget)); err != nil {
		return socketReply{Error: err.Error()}, err
	}
	fb, err := s.sessions.Answer(ctx, id, a)
	if err != nil {
		slog.Debug("websocket answer rejected", "mount", id, "error", err)
		return socketReply{Error: err.Error()}, err
	}
	return socketReply{Feedback: &fb}, nil
}

func socketWrite(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, socketWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

// originHosts turns allowed origins such as "https://elec-mate.com" into the
// host patterns the websocket handshake checks.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, o)
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
