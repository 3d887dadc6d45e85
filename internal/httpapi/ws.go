package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yanyan-huang/pmpal/internal/conversation"
	"github.com/yanyan-huang/pmpal/internal/memory"
	"github.com/yanyan-huang/pmpal/internal/observability"
	"github.com/yanyan-huang/pmpal/internal/protocol"
)

// handleChatWS runs a text chat over a websocket. Client frames are handled
// in order; each produces exactly one assistant_reply or error_event.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observability.LoggerFromContext(ctx)
	log.Info("chat websocket connected")

	inbound := make(chan any, 64)
	outbound := make(chan any, 64)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		defer close(outbound)
		for msg := range inbound {
			out := s.dispatchChat(ctx, msg)
			select {
			case outbound <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					log.Warn("chat websocket write failed", "error", err)
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.IncWSMessage("outbound", string(t))
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var next any
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			next = protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}
		} else {
			next = parsed
			if t, ok := messageTypeOf(parsed); ok {
				s.metrics.IncWSMessage("inbound", string(t))
			}
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- next:
		}
	}

	close(inbound)
	<-runDone
	cancel()
	<-writerDone
	log.Info("chat websocket disconnected")
}

func (s *Server) dispatchChat(ctx context.Context, msg any) any {
	switch m := msg.(type) {
	case protocol.ErrorEvent:
		return m
	case protocol.UserMessage:
		reply, err := s.manager.ProcessInput(ctx, m.UserID, m.Text, protocol.ParseSource(m.Source))
		if err != nil {
			return chatFailure(ctx, m.UserID, err)
		}
		return assistantReply(m.UserID, reply)
	case protocol.ModeSwitch:
		reply, err := s.manager.SwitchMode(ctx, m.UserID, m.Mode)
		if err != nil {
			return chatFailure(ctx, m.UserID, err)
		}
		return assistantReply(m.UserID, reply)
	default:
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "unsupported_message", Detail: protocol.ErrUnsupportedType.Error()}
	}
}

func assistantReply(userID string, r conversation.Reply) protocol.AssistantReply {
	return protocol.AssistantReply{
		Type:   protocol.TypeAssistantReply,
		UserID: userID,
		Kind:   string(r.Kind),
		Text:   r.Text,
	}
}

func chatFailure(ctx context.Context, userID string, err error) protocol.ErrorEvent {
	ev := protocol.ErrorEvent{
		Type:   protocol.TypeErrorEvent,
		UserID: userID,
		Code:   "internal_error",
		Detail: conversation.ApologyText,
	}
	switch {
	case errors.Is(err, memory.ErrInvalidUser):
		ev.Code = "invalid_user"
		ev.Detail = err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ev.Code = "canceled"
		ev.Retryable = true
	case errors.Is(err, conversation.ErrStorage):
		ev.Code = "storage_failure"
		ev.Retryable = true
	}
	if ev.Code != "invalid_user" {
		observability.LoggerFromContext(ctx).Error("chat message failed", "user_id", userID, "code", ev.Code, "error", err)
	}
	return ev
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.Type, true
	case protocol.ModeSwitch:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
