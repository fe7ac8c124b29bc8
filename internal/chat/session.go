// Package chat keeps the transcript of one conversation with the research
// assistant and serializes the requests made from it.
package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"studio/internal/apiclient"
	"studio/internal/domain"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrPending      = errors.New("waiting for the previous answer")
)

// PendingText is shown in the indicator turn while a request is in flight.
const PendingText = "Thinking..."

// Sender is the transport a session asks questions through.
type Sender interface {
	Chat(ctx context.Context, message string) apiclient.Result[apiclient.ChatReply]
}

// Request is an issued question waiting to be settled.
type Request struct {
	Seq     int
	Message string
}

// Session owns a transcript. Turns are only ever appended, and at most one
// request is outstanding. A Session is driven from a single event loop.
type Session struct {
	turns   []domain.ChatTurn
	pending *Request
	seq     int
	log     *zap.Logger
}

// NewSession starts a transcript, seeded with an assistant greeting when
// greeting is not blank.
func NewSession(greeting string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{log: log}
	if strings.TrimSpace(greeting) != "" {
		s.turns = append(s.turns, domain.ChatTurn{Role: domain.RoleAssistant, Content: greeting, Citations: []domain.Citation{}})
	}
	return s
}

// Send appends the user's turn right away and returns the request to issue.
func (s *Session) Send(text string) (Request, error) {
	if strings.TrimSpace(text) == "" {
		return Request{}, ErrEmptyMessage
	}
	if s.pending != nil {
		return Request{}, ErrPending
	}
	s.seq++
	req := Request{Seq: s.seq, Message: text}
	s.turns = append(s.turns, domain.ChatTurn{Role: domain.RoleUser, Content: text, Citations: []domain.Citation{}})
	s.pending = &req
	s.log.Debug("chat request issued", zap.Int("seq", req.Seq), zap.Int("turns", len(s.turns)))
	return req, nil
}

// Settle appends the assistant turn for req: the answer on success or an
// error turn otherwise. It reports false if req is not the outstanding one.
func (s *Session) Settle(req Request, res apiclient.Result[apiclient.ChatReply]) bool {
	if s.pending == nil || s.pending.Seq != req.Seq {
		s.log.Debug("ignored settle for unknown chat request", zap.Int("seq", req.Seq))
		return false
	}
	s.pending = nil

	turn := domain.ChatTurn{Role: domain.RoleAssistant, Citations: []domain.Citation{}}
	if res.OK() {
		turn.Content = res.Value.Answer
		if len(res.Value.Citations) > 0 {
			turn.Citations = append(turn.Citations, res.Value.Citations...)
		}
		s.log.Debug("chat answered", zap.Int("seq", req.Seq), zap.Int("citations", len(turn.Citations)))
	} else {
		turn.Content = errorText(res.Err)
		s.log.Warn("chat request failed", zap.Int("seq", req.Seq), zap.Stringer("kind", res.Err.Kind), zap.Int("status", res.Err.Status))
	}
	s.turns = append(s.turns, turn)
	return true
}

// errorText phrases a failed request the way it appears in the transcript.
func errorText(e *apiclient.Error) string {
	if e.Kind == apiclient.KindNetwork && e.Detail == "" {
		if e.Err != nil {
			return "Error connecting to backend: " + e.Err.Error()
		}
		return "Error connecting to backend: server unreachable"
	}
	return "Error: " + e.Message("Request failed")
}

// SendMessage runs a whole exchange on the calling goroutine and returns the
// appended assistant turn.
func (s *Session) SendMessage(ctx context.Context, sender Sender, text string) (domain.ChatTurn, error) {
	req, err := s.Send(text)
	if err != nil {
		return domain.ChatTurn{}, err
	}
	s.Settle(req, sender.Chat(ctx, req.Message))
	return s.turns[len(s.turns)-1], nil
}

// Pending reports whether a request is outstanding.
func (s *Session) Pending() bool { return s.pending != nil }

// Len is the number of turns in the transcript.
func (s *Session) Len() int { return len(s.turns) }

// Transcript returns a copy of the appended turns.
func (s *Session) Transcript() []domain.ChatTurn {
	out := make([]domain.ChatTurn, len(s.turns))
	for i, t := range s.turns {
		t.Citations = append([]domain.Citation{}, t.Citations...)
		out[i] = t
	}
	return out
}

// View is the transcript as displayed: while a request is pending it ends
// with a transient indicator turn that is never stored.
func (s *Session) View() []domain.ChatTurn {
	out := s.Transcript()
	if s.pending != nil {
		out = append(out, domain.ChatTurn{Role: domain.RoleAssistant, Content: PendingText, Citations: []domain.Citation{}, Pending: true})
	}
	return out
}
