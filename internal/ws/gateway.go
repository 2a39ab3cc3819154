package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"junqo-chat/internal/auth"
	"junqo-chat/internal/middleware"
	"junqo-chat/internal/observability"
	"junqo-chat/internal/repositories"
	"junqo-chat/internal/services"
	"junqo-chat/pkg/protocol"
)

const defaultHandlerTimeout = 5 * time.Second

var (
	errBadPayload     = errors.New("invalid payload")
	errSenderMismatch = errors.New("senderId does not match the authenticated user")
	errNotInRoom      = errors.New("join the conversation first")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var tracer = otel.Tracer("junqo-chat/ws")

// Gateway serves GET /ws and dispatches client events.
type Gateway struct {
	hub       *Hub
	service   *services.MessagingService
	presence  Presence
	validator auth.TokenValidator
	timeout   time.Duration
}

// NewGateway constructs a Gateway. A zero timeout selects the default per-event budget.
func NewGateway(hub *Hub, service *services.MessagingService, presence Presence, validator auth.TokenValidator, timeout time.Duration) *Gateway {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	return &Gateway{hub: hub, service: service, presence: presence, validator: validator, timeout: timeout}
}

// Handle authenticates the request, upgrades it, and runs the socket until it closes.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := g.validator.ValidateToken(ctx, token)
	if err != nil {
		span.SetStatus(codes.Error, "invalid token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := observability.ClientFromRequest(c.Request, c.GetString(middleware.RequestIDKey))
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    client.DeviceID,
		IP:          client.IP,
		RequestID:   client.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	conn := NewConnection(wsConn, info)
	g.hub.Register(conn)
	conn.Start()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect", "ok")
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, wsRoutingKey, lifecycleEnvelope("ws_connect", info, ""), headers)

	g.markOnline(conn)
	go g.readLoop(conn, headers)
}

func (g *Gateway) readLoop(conn *Connection, headers map[string]string) {
	var closeReason string
	defer func() {
		g.hub.Unregister(conn)
		conn.Close(websocket.CloseNormalClosure, "")
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect", "ok")
		_ = observability.PublishEvent(context.Background(), wsRoutingKey, lifecycleEnvelope("ws_disconnect", conn.Info, closeReason), headers)
		g.markOffline(conn)
	}()

	conn.prepareRead()
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error", "read_failed")
				_ = observability.PublishEvent(context.Background(), wsRoutingKey, lifecycleEnvelope("ws_error", conn.Info, closeReason), headers)
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			g.replyError(conn, "", protocol.CodeBadRequest, "malformed frame")
			continue
		}
		g.handleFrame(conn, frame)
	}
}

func (g *Gateway) handleFrame(conn *Connection, frame protocol.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "ws."+frame.Event)
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", conn.UserID()),
		attribute.String("ws.conn_id", conn.ID),
	)

	err := g.dispatch(ctx, conn, frame)
	if err == nil {
		observability.IncWSEvent(frame.Event, "ok")
		return
	}

	code, message := errorCode(err)
	if code == protocol.CodeInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("websocket event failed: event=%s user_id=%s conn_id=%s err=%v", frame.Event, conn.UserID(), conn.ID, err)
	}
	observability.IncWSEvent(frame.Event, code)
	g.replyError(conn, frame.RequestID, code, message)
}

func (g *Gateway) dispatch(ctx context.Context, conn *Connection, frame protocol.Frame) error {
	switch frame.Event {
	case protocol.EventJoinRoom:
		var req protocol.ConversationRef
		if err := decode(frame, &req); err != nil {
			return err
		}
		if req.ConversationID == "" {
			return errBadPayload
		}
		if err := g.service.EnsureParticipant(ctx, conn.UserID(), req.ConversationID); err != nil {
			return err
		}
		g.hub.Join(req.ConversationID, conn)
		return g.reply(conn, protocol.EventJoinedRoom, frame.RequestID, req)

	case protocol.EventLeaveRoom:
		var req protocol.ConversationRef
		if err := decode(frame, &req); err != nil {
			return err
		}
		g.hub.Leave(req.ConversationID, conn)
		return nil

	case protocol.EventSendMessage:
		var req protocol.SendMessagePayload
		if err := decode(frame, &req); err != nil {
			return err
		}
		if req.ConversationID == "" {
			return errBadPayload
		}
		if req.SenderID != "" && req.SenderID != conn.UserID() {
			return errSenderMismatch
		}
		msg, err := g.service.SendMessage(ctx, conn.UserID(), req.ConversationID, req.Content, conn.ID)
		if err != nil {
			return err
		}
		return g.reply(conn, protocol.EventMessageSent, frame.RequestID, msg)

	case protocol.EventStartTyping, protocol.EventStopTyping:
		var req protocol.ConversationRef
		if err := decode(frame, &req); err != nil {
			return err
		}
		if !g.hub.InRoom(req.ConversationID, conn.ID) {
			return errNotInRoom
		}
		event := protocol.EventUserStartTyping
		if frame.Event == protocol.EventStopTyping {
			event = protocol.EventUserStopTyping
		}
		g.hub.BroadcastRoom(req.ConversationID, event, protocol.TypingEvent{UserID: conn.UserID(), ConversationID: req.ConversationID}, conn.ID)
		return nil

	case protocol.EventMarkMessageRead:
		var req protocol.MessageRef
		if err := decode(frame, &req); err != nil {
			return err
		}
		if req.MessageID == "" || req.ConversationID == "" {
			return errBadPayload
		}
		return g.service.MarkRead(ctx, conn.UserID(), req.ConversationID, req.MessageID, conn.ID)

	case protocol.EventUpdateMessage:
		var req protocol.UpdateMessagePayload
		if err := decode(frame, &req); err != nil {
			return err
		}
		if req.MessageID == "" || req.ConversationID == "" {
			return errBadPayload
		}
		msg, err := g.service.UpdateMessage(ctx, conn.UserID(), req.ConversationID, req.MessageID, req.Content, conn.ID)
		if err != nil {
			return err
		}
		return g.reply(conn, protocol.EventMessageUpdated, frame.RequestID, msg)

	case protocol.EventDeleteMessage:
		var req protocol.MessageRef
		if err := decode(frame, &req); err != nil {
			return err
		}
		if req.MessageID == "" || req.ConversationID == "" {
			return errBadPayload
		}
		if err := g.service.DeleteMessage(ctx, conn.UserID(), req.ConversationID, req.MessageID, conn.ID); err != nil {
			return err
		}
		return g.reply(conn, protocol.EventMessageDeleted, frame.RequestID, req)

	case protocol.EventGetMessageHistory:
		var req protocol.HistoryRequest
		if err := decode(frame, &req); err != nil {
			return err
		}
		if req.ConversationID == "" {
			return errBadPayload
		}
		var before time.Time
		if req.Before != "" {
			parsed, err := time.Parse(time.RFC3339, req.Before)
			if err != nil {
				return errBadPayload
			}
			before = parsed
		}
		history, err := g.service.History(ctx, conn.UserID(), req.ConversationID, req.Limit, before)
		if err != nil {
			return err
		}
		return g.reply(conn, protocol.EventMessageHistory, frame.RequestID, history)

	case protocol.EventGetOnlineUsers:
		var req protocol.OnlineUsersRequest
		if err := decode(frame, &req); err != nil {
			return err
		}
		online, err := g.onlineUsers(ctx, conn.UserID(), req.ConversationID)
		if err != nil {
			return err
		}
		return g.reply(conn, protocol.EventOnlineUsers, frame.RequestID, protocol.OnlineUsersReply{ConversationID: req.ConversationID, UserIDs: online})
	}
	return errUnsupported{event: frame.Event}
}

func (g *Gateway) onlineUsers(ctx context.Context, userID, conversationID string) ([]string, error) {
	online, err := g.presence.Online(ctx)
	if err != nil {
		return nil, err
	}
	if conversationID == "" {
		return online, nil
	}
	conv, err := g.service.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	scoped := make([]string, 0, len(online))
	for _, id := range online {
		if conv.HasParticipant(id) {
			scoped = append(scoped, id)
		}
	}
	return scoped, nil
}

func (g *Gateway) markOnline(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	first, err := g.presence.Connect(ctx, conn.UserID())
	if err != nil {
		log.Printf("presence connect failed: user_id=%s err=%v", conn.UserID(), err)
		return
	}
	if first {
		g.hub.BroadcastAll(protocol.EventUserStatus, protocol.StatusEvent{UserID: conn.UserID(), Status: protocol.StatusOnline}, conn.ID)
	}
}

func (g *Gateway) markOffline(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	last, err := g.presence.Disconnect(ctx, conn.UserID())
	if err != nil {
		log.Printf("presence disconnect failed: user_id=%s err=%v", conn.UserID(), err)
		return
	}
	if last {
		g.hub.BroadcastAll(protocol.EventUserStatus, protocol.StatusEvent{UserID: conn.UserID(), Status: protocol.StatusOffline}, "")
	}
}

func (g *Gateway) reply(conn *Connection, event, requestID string, data any) error {
	payload, err := protocol.Encode(event, requestID, data)
	if err != nil {
		return err
	}
	if err := conn.Send(payload); err != nil {
		log.Printf("websocket reply dropped: event=%s conn_id=%s err=%v", event, conn.ID, err)
	}
	return nil
}

func (g *Gateway) replyError(conn *Connection, requestID, code, message string) {
	_ = g.reply(conn, protocol.EventError, requestID, protocol.ErrorReply{Code: code, Message: message})
}

type errUnsupported struct {
	event string
}

func (e errUnsupported) Error() string {
	return "unsupported event " + e.event
}

func decode(frame protocol.Frame, v any) error {
	if err := frame.Decode(v); err != nil {
		return errBadPayload
	}
	return nil
}

func errorCode(err error) (string, string) {
	var unsupported errUnsupported
	switch {
	case errors.As(err, &unsupported):
		return protocol.CodeUnsupported, err.Error()
	case errors.Is(err, services.ErrNotParticipant),
		errors.Is(err, services.ErrNotSender),
		errors.Is(err, errSenderMismatch),
		errors.Is(err, errNotInRoom):
		return protocol.CodeForbidden, err.Error()
	case errors.Is(err, repositories.ErrConversationNotFound),
		errors.Is(err, repositories.ErrMessageNotFound):
		return protocol.CodeNotFound, err.Error()
	case errors.Is(err, errBadPayload),
		errors.Is(err, services.ErrInvalidContent),
		errors.Is(err, services.ErrInvalidParticipants),
		errors.Is(err, services.ErrMessageMismatch):
		return protocol.CodeBadRequest, err.Error()
	}
	return protocol.CodeInternal, "internal error"
}
