package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	domain "github.com/XuanSon0704/Reels-Chat/domain/realtime"
	"github.com/XuanSon0704/Reels-Chat/modules/presence"
)

const defaultStoreTimeout = 3 * time.Second

// ParticipantStore is the single boundary with the relational layer:
// one authorization query and one read-receipt write.
type ParticipantStore interface {
	IsActiveParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	MarkRead(ctx context.Context, conversationID, userID string, readAt time.Time) error
}

// StatusRecorder records last-known presence. Writes are best-effort;
// failures are logged and never surfaced to connections.
type StatusRecorder interface {
	SetStatus(ctx context.Context, userID, status string) error
}

// clientError is a handler failure whose message is surfaced to the
// caller as an error event. Every other error is logged only.
type clientError struct {
	message string
}

func (e *clientError) Error() string { return e.message }

// Router dispatches client commands: it validates, mutates the hub, and
// re-emits to the right audience. One router serves all connections; each
// connection's commands are handled in the order its read loop delivers
// them.
type Router struct {
	hub          *Hub
	store        ParticipantStore
	status       StatusRecorder
	logger       *slog.Logger
	storeTimeout time.Duration
}

// NewRouter creates a router over the given hub and stores.
func NewRouter(hub *Hub, store ParticipantStore, status StatusRecorder) *Router {
	return &Router{
		hub:          hub,
		store:        store,
		status:       status,
		logger:       slog.Default(),
		storeTimeout: defaultStoreTimeout,
	}
}

// Connect binds an authenticated connection to the hub. The personal
// room join is silent: no online event is broadcast.
func (r *Router) Connect(conn domain.Connection, identity domain.Identity) {
	r.hub.Add(conn, identity)
}

// Disconnect evicts the connection from every room and broadcasts the
// offline transition to the user's personal room, exactly once.
func (r *Router) Disconnect(connID string) {
	identity, ok := r.hub.Remove(connID)
	if !ok {
		return
	}

	r.emit(domain.UserRoom(identity.UserID), EvtUserStatusChanged, UserStatusChangedEvent{
		UserID:    identity.UserID,
		Status:    presence.StatusOffline,
		Timestamp: timestamp(),
	}, "")

	r.recordStatus(identity.UserID, presence.StatusOffline)
}

// Handle dispatches one raw frame from the connection. Malformed frames
// are dropped; handler errors carrying a client message become a single
// error event to the caller and nothing else.
func (r *Router) Handle(ctx context.Context, conn domain.Connection, data []byte) {
	identity, ok := r.hub.Identity(conn.ID())
	if !ok {
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn("invalid frame", "connId", conn.ID(), "error", err)
		return
	}

	if err := r.dispatch(ctx, conn.ID(), identity, env); err != nil {
		if ce, isClient := err.(*clientError); isClient {
			r.sendError(conn.ID(), ce.message)
			return
		}
		r.logger.Error("event handler failed", "event", env.Event, "connId", conn.ID(), "error", err)
	}
}

// dispatch decodes the typed payload for the command and runs its
// handler. This is the closed mapping from command to action.
func (r *Router) dispatch(ctx context.Context, connID string, identity domain.Identity, env Envelope) error {
	switch env.Event {
	case CmdJoinReel:
		var p JoinReelCommand
		if !r.decode(connID, env, &p) || p.ReelID == "" {
			return nil
		}
		r.hub.Join(connID, domain.ReelRoom(p.ReelID))
		return nil

	case CmdLeaveReel:
		var p JoinReelCommand
		if !r.decode(connID, env, &p) || p.ReelID == "" {
			return nil
		}
		r.hub.Leave(connID, domain.ReelRoom(p.ReelID))
		return nil

	case CmdJoinConversation:
		var p JoinConversationCommand
		if !r.decode(connID, env, &p) || p.ConversationID == "" {
			return nil
		}
		return r.handleJoinConversation(ctx, connID, identity, p)

	case CmdLeaveConversation:
		var p JoinConversationCommand
		if !r.decode(connID, env, &p) || p.ConversationID == "" {
			return nil
		}
		r.hub.Leave(connID, domain.ConversationRoom(p.ConversationID))
		r.emit(domain.ConversationRoom(p.ConversationID), EvtUserLeft, UserLeftEvent{
			UserID:         identity.UserID,
			ConversationID: p.ConversationID,
			Timestamp:      timestamp(),
		}, connID)
		return nil

	case CmdTypingStart:
		var p TypingCommand
		if !r.decode(connID, env, &p) || p.ConversationID == "" {
			return nil
		}
		r.emit(domain.ConversationRoom(p.ConversationID), EvtUserTyping, UserTypingEvent{
			UserID:         identity.UserID,
			Username:       identity.Username,
			ConversationID: p.ConversationID,
		}, connID)
		return nil

	case CmdTypingStop:
		var p TypingCommand
		if !r.decode(connID, env, &p) || p.ConversationID == "" {
			return nil
		}
		r.emit(domain.ConversationRoom(p.ConversationID), EvtUserStoppedTyping, UserStoppedTypingEvent{
			UserID:         identity.UserID,
			ConversationID: p.ConversationID,
		}, connID)
		return nil

	case CmdCommentTypingStart:
		var p CommentTypingCommand
		if !r.decode(connID, env, &p) || p.ReelID == "" {
			return nil
		}
		r.emit(domain.ReelRoom(p.ReelID), EvtCommentUserTyping, CommentUserTypingEvent{
			UserID:   identity.UserID,
			Username: identity.Username,
			ReelID:   p.ReelID,
		}, connID)
		return nil

	case CmdCommentTypingStop:
		var p CommentTypingCommand
		if !r.decode(connID, env, &p) || p.ReelID == "" {
			return nil
		}
		r.emit(domain.ReelRoom(p.ReelID), EvtCommentUserStoppedTyping, CommentUserStoppedTypingEvent{
			UserID: identity.UserID,
			ReelID: p.ReelID,
		}, connID)
		return nil

	case CmdStatusUpdate:
		var p StatusUpdateCommand
		if !r.decode(connID, env, &p) {
			return nil
		}
		return r.handleStatusUpdate(identity, p)

	case CmdMessageRead:
		var p MessageReadCommand
		if !r.decode(connID, env, &p) || p.ConversationID == "" {
			return nil
		}
		return r.handleMessageRead(ctx, connID, identity, p)

	case CmdLikeNotification:
		var p LikeNotificationCommand
		if !r.decode(connID, env, &p) || p.TargetUserID == "" {
			return nil
		}
		r.emit(domain.UserRoom(p.TargetUserID), EvtNewLike, NewLikeEvent{
			FromUserID:   identity.UserID,
			FromUsername: identity.Username,
			Type:         p.Type,
			ContentID:    p.ContentID,
			Timestamp:    timestamp(),
		}, "")
		return nil

	case CmdCommentNotification:
		var p CommentNotificationCommand
		if !r.decode(connID, env, &p) || p.TargetUserID == "" {
			return nil
		}
		r.emit(domain.UserRoom(p.TargetUserID), EvtNewComment, NewCommentEvent{
			FromUserID:   identity.UserID,
			FromUsername: identity.Username,
			ReelID:       p.ReelID,
			CommentID:    p.CommentID,
			Timestamp:    timestamp(),
		}, "")
		return nil

	case CmdFollowNotification:
		var p FollowNotificationCommand
		if !r.decode(connID, env, &p) || p.TargetUserID == "" {
			return nil
		}
		r.emit(domain.UserRoom(p.TargetUserID), EvtNewFollower, NewFollowerEvent{
			FollowerID:       identity.UserID,
			FollowerUsername: identity.Username,
			Timestamp:        timestamp(),
		}, "")
		return nil

	case CmdCallInitiate:
		var p CallInitiateCommand
		if !r.decode(connID, env, &p) || p.TargetUserID == "" {
			return nil
		}
		r.emit(domain.UserRoom(p.TargetUserID), EvtIncomingCall, IncomingCallEvent{
			CallerID:       identity.UserID,
			CallerUsername: identity.Username,
			Offer:          p.Offer,
		}, "")
		return nil

	case CmdCallAnswer:
		var p CallAnswerCommand
		if !r.decode(connID, env, &p) || p.TargetUserID == "" {
			return nil
		}
		r.emit(domain.UserRoom(p.TargetUserID), EvtCallAnswered, CallAnsweredEvent{
			Answer: p.Answer,
		}, "")
		return nil

	case CmdCallIceCandidate:
		var p CallIceCandidateCommand
		if !r.decode(connID, env, &p) || p.TargetUserID == "" {
			return nil
		}
		r.emit(domain.UserRoom(p.TargetUserID), EvtCallIceCandidate, CallIceCandidateEvent{
			Candidate: p.Candidate,
		}, "")
		return nil

	case CmdCallEnd:
		var p CallEndCommand
		if !r.decode(connID, env, &p) || p.TargetUserID == "" {
			return nil
		}
		r.emit(domain.UserRoom(p.TargetUserID), EvtCallEnded, CallEndedEvent{
			UserID: identity.UserID,
		}, "")
		return nil

	default:
		r.logger.Warn("unknown event", "event", env.Event, "connId", connID)
		return nil
	}
}

// handleJoinConversation is the only authorized join: membership is
// checked fresh against the participant store on every attempt.
func (r *Router) handleJoinConversation(ctx context.Context, connID string, identity domain.Identity, p JoinConversationCommand) error {
	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	ok, err := r.store.IsActiveParticipant(storeCtx, p.ConversationID, identity.UserID)
	if err != nil {
		r.logger.Error("participant lookup failed", "conversationId", p.ConversationID,
			"userId", identity.UserID, "error", err)
		return &clientError{message: "Failed to join conversation"}
	}
	if !ok {
		return &clientError{message: "Not authorized to join this conversation"}
	}

	r.hub.Join(connID, domain.ConversationRoom(p.ConversationID))
	r.emit(domain.ConversationRoom(p.ConversationID), EvtUserJoined, UserJoinedEvent{
		UserID:         identity.UserID,
		ConversationID: p.ConversationID,
		Timestamp:      timestamp(),
	}, connID)
	return nil
}

// handleStatusUpdate broadcasts the new status to the caller's own
// personal room, own devices included, and records it.
func (r *Router) handleStatusUpdate(identity domain.Identity, p StatusUpdateCommand) error {
	switch p.Status {
	case presence.StatusOnline, presence.StatusAway, presence.StatusOffline:
	default:
		return nil
	}

	r.emit(domain.UserRoom(identity.UserID), EvtUserStatusChanged, UserStatusChangedEvent{
		UserID:    identity.UserID,
		Status:    p.Status,
		Timestamp: timestamp(),
	}, "")

	r.recordStatus(identity.UserID, p.Status)
	return nil
}

// handleMessageRead persists the read timestamp before notifying the
// conversation. A failed write drops the receipt; it is non-critical and
// never disconnects the caller.
func (r *Router) handleMessageRead(ctx context.Context, connID string, identity domain.Identity, p MessageReadCommand) error {
	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	readAt := time.Now().UTC()
	if err := r.store.MarkRead(storeCtx, p.ConversationID, identity.UserID, readAt); err != nil {
		r.logger.Error("mark read failed", "conversationId", p.ConversationID,
			"userId", identity.UserID, "error", err)
		return nil
	}

	r.emit(domain.ConversationRoom(p.ConversationID), EvtMessageReadReceipt, MessageReadReceiptEvent{
		MessageID:      p.MessageID,
		ConversationID: p.ConversationID,
		ReadBy:         identity.UserID,
		Timestamp:      timestamp(),
	}, connID)
	return nil
}

// NotifyUser pushes an arbitrary payload to the user's personal room as
// a notification event. Used by the EventBus consumer.
func (r *Router) NotifyUser(targetUserID string, payload json.RawMessage) {
	data, err := json.Marshal(Envelope{Event: EvtNotification, Payload: payload})
	if err != nil {
		r.logger.Error("failed to encode notification", "error", err)
		return
	}
	r.hub.Broadcast(domain.UserRoom(targetUserID), data, "")
}

// decode unmarshals the command payload; a malformed payload makes the
// handler a logged no-op rather than a connection failure.
func (r *Router) decode(connID string, env Envelope, dest any) bool {
	if len(env.Payload) == 0 {
		r.logger.Warn("missing payload", "event", env.Event, "connId", connID)
		return false
	}
	if err := json.Unmarshal(env.Payload, dest); err != nil {
		r.logger.Warn("invalid payload", "event", env.Event, "connId", connID, "error", err)
		return false
	}
	return true
}

// emit encodes a server event and broadcasts it to the room.
func (r *Router) emit(room, event string, payload any, exceptID string) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		r.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	r.hub.Broadcast(room, data, exceptID)
}

// sendError reports a handler failure to the caller only.
func (r *Router) sendError(connID, message string) {
	data, err := encodeEvent(EvtError, ErrorEvent{Message: message})
	if err != nil {
		return
	}
	r.hub.Send(connID, data)
}

// recordStatus writes presence best-effort with its own short deadline;
// the caller's event handling never waits on Redis.
func (r *Router) recordStatus(userID, status string) {
	if r.status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()
	if err := r.status.SetStatus(ctx, userID, status); err != nil {
		r.logger.Warn("failed to record status", "userId", userID, "error", err)
	}
}
