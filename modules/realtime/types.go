package realtime

import (
	"encoding/json"
	"time"
)

// Client command names. This is the closed set of events a connection
// may send; anything else is dropped.
const (
	CmdJoinReel            = "join_reel"
	CmdLeaveReel           = "leave_reel"
	CmdJoinConversation    = "join_conversation"
	CmdLeaveConversation   = "leave_conversation"
	CmdTypingStart         = "typing_start"
	CmdTypingStop          = "typing_stop"
	CmdCommentTypingStart  = "comment_typing_start"
	CmdCommentTypingStop   = "comment_typing_stop"
	CmdStatusUpdate        = "status_update"
	CmdMessageRead         = "message_read"
	CmdLikeNotification    = "like_notification"
	CmdCommentNotification = "comment_notification"
	CmdFollowNotification  = "follow_notification"
	CmdCallInitiate        = "call_initiate"
	CmdCallAnswer          = "call_answer"
	CmdCallIceCandidate    = "call_ice_candidate"
	CmdCallEnd             = "call_end"
)

// Server-emitted event names. Part of the wire contract; clients match
// on these strings.
const (
	EvtUserJoined               = "user_joined"
	EvtUserLeft                 = "user_left"
	EvtUserTyping               = "user_typing"
	EvtUserStoppedTyping        = "user_stopped_typing"
	EvtCommentUserTyping        = "comment_user_typing"
	EvtCommentUserStoppedTyping = "comment_user_stopped_typing"
	EvtUserStatusChanged        = "user_status_changed"
	EvtMessageReadReceipt       = "message_read_receipt"
	EvtNewLike                  = "new_like"
	EvtNewComment               = "new_comment"
	EvtNewFollower              = "new_follower"
	EvtIncomingCall             = "incoming_call"
	EvtCallAnswered             = "call_answered"
	EvtCallIceCandidate         = "call_ice_candidate"
	EvtCallEnded                = "call_ended"
	EvtError                    = "error"
	EvtNotification             = "notification"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client command payloads.

type JoinReelCommand struct {
	ReelID string `json:"reelId"`
}

type JoinConversationCommand struct {
	ConversationID string `json:"conversationId"`
}

type TypingCommand struct {
	ConversationID string `json:"conversationId"`
}

type CommentTypingCommand struct {
	ReelID string `json:"reelId"`
}

type StatusUpdateCommand struct {
	Status string `json:"status"`
}

type MessageReadCommand struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type LikeNotificationCommand struct {
	TargetUserID string `json:"targetUserId"`
	Type         string `json:"type"` // "reel" or "comment"
	ContentID    string `json:"contentId"`
}

type CommentNotificationCommand struct {
	TargetUserID string `json:"targetUserId"`
	ReelID       string `json:"reelId"`
	CommentID    string `json:"commentId"`
}

type FollowNotificationCommand struct {
	TargetUserID string `json:"targetUserId"`
}

type CallInitiateCommand struct {
	TargetUserID string          `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer"`
}

type CallAnswerCommand struct {
	TargetUserID string          `json:"targetUserId"`
	Answer       json.RawMessage `json:"answer"`
}

type CallIceCandidateCommand struct {
	TargetUserID string          `json:"targetUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

type CallEndCommand struct {
	TargetUserID string `json:"targetUserId"`
}

// Server event payloads. Field names are the wire contract.

type UserJoinedEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Timestamp      string `json:"timestamp"`
}

type UserLeftEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Timestamp      string `json:"timestamp"`
}

type UserTypingEvent struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	ConversationID string `json:"conversationId"`
}

type UserStoppedTypingEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type CommentUserTypingEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	ReelID   string `json:"reelId"`
}

type CommentUserStoppedTypingEvent struct {
	UserID string `json:"userId"`
	ReelID string `json:"reelId"`
}

type UserStatusChangedEvent struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type MessageReadReceiptEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
	Timestamp      string `json:"timestamp"`
}

type NewLikeEvent struct {
	FromUserID   string `json:"fromUserId"`
	FromUsername string `json:"fromUsername"`
	Type         string `json:"type"`
	ContentID    string `json:"contentId"`
	Timestamp    string `json:"timestamp"`
}

type NewCommentEvent struct {
	FromUserID   string `json:"fromUserId"`
	FromUsername string `json:"fromUsername"`
	ReelID       string `json:"reelId"`
	CommentID    string `json:"commentId"`
	Timestamp    string `json:"timestamp"`
}

type NewFollowerEvent struct {
	FollowerID       string `json:"followerId"`
	FollowerUsername string `json:"followerUsername"`
	Timestamp        string `json:"timestamp"`
}

type IncomingCallEvent struct {
	CallerID       string          `json:"callerId"`
	CallerUsername string          `json:"callerUsername"`
	Offer          json.RawMessage `json:"offer"`
}

type CallAnsweredEvent struct {
	Answer json.RawMessage `json:"answer"`
}

type CallIceCandidateEvent struct {
	Candidate json.RawMessage `json:"candidate"`
}

type CallEndedEvent struct {
	UserID string `json:"userId"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// encodeEvent marshals a server event into its wire frame.
func encodeEvent(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// timestamp returns a server-generated UTC ISO-8601 timestamp with
// millisecond precision.
func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
