package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/XuanSon0704/Reels-Chat/domain/realtime"
)

type readCall struct {
	ConversationID string
	UserID         string
	ReadAt         time.Time
}

type fakeStore struct {
	mu           sync.Mutex
	participants map[string]bool
	lookupErr    error
	markReadErr  error
	reads        []readCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{participants: make(map[string]bool)}
}

func (s *fakeStore) allow(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[conversationID+"|"+userID] = true
}

func (s *fakeStore) IsActiveParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	return s.participants[conversationID+"|"+userID], nil
}

func (s *fakeStore) MarkRead(_ context.Context, conversationID, userID string, readAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markReadErr != nil {
		return s.markReadErr
	}
	s.reads = append(s.reads, readCall{ConversationID: conversationID, UserID: userID, ReadAt: readAt})
	return nil
}

func (s *fakeStore) readCalls() []readCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]readCall, len(s.reads))
	copy(out, s.reads)
	return out
}

type fakeStatus struct {
	mu      sync.Mutex
	records map[string]string
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{records: make(map[string]string)}
}

func (f *fakeStatus) SetStatus(_ context.Context, userID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[userID] = status
	return nil
}

func (f *fakeStatus) statusOf(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[userID]
}

// frame is a decoded server event for assertions.
type frame struct {
	Event   string
	Payload map[string]any
}

func decodeFrames(t *testing.T, conn *mockConn) []frame {
	t.Helper()
	var out []frame
	for _, raw := range conn.frames() {
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		f := frame{Event: env.Event}
		if len(env.Payload) > 0 {
			require.NoError(t, json.Unmarshal(env.Payload, &f.Payload))
		}
		out = append(out, f)
	}
	return out
}

func sendCmd(t *testing.T, r *Router, conn *mockConn, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(Envelope{Event: event, Payload: raw})
	require.NoError(t, err)
	r.Handle(context.Background(), conn, data)
}

// setupRouter returns a router plus two connected users, u1 and u2, both
// participants of conversation c1.
func setupRouter(t *testing.T) (*Router, *fakeStore, *fakeStatus, *mockConn, *mockConn) {
	t.Helper()
	store := newFakeStore()
	status := newFakeStatus()
	r := NewRouter(NewHub(), store, status)

	connA := &mockConn{id: "conn-a"}
	connB := &mockConn{id: "conn-b"}
	r.Connect(connA, domain.Identity{UserID: "u1", Username: "alice"})
	r.Connect(connB, domain.Identity{UserID: "u2", Username: "bob"})

	store.allow("c1", "u1")
	store.allow("c1", "u2")
	return r, store, status, connA, connB
}

func TestRouter_JoinConversation(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	// B is already in the conversation room.
	sendCmd(t, r, connB, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})

	// A joins; B (and only B) is notified.
	sendCmd(t, r, connA, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})

	require.True(t, r.hub.InRoom(connA.ID(), domain.ConversationRoom("c1")))

	assert.Empty(t, decodeFrames(t, connA))
	framesB := decodeFrames(t, connB)
	require.Len(t, framesB, 1)
	assert.Equal(t, EvtUserJoined, framesB[0].Event)
	assert.Equal(t, "u1", framesB[0].Payload["userId"])
	assert.Equal(t, "c1", framesB[0].Payload["conversationId"])
	assert.NotEmpty(t, framesB[0].Payload["timestamp"])
}

func TestRouter_JoinConversationDenied(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	connC := &mockConn{id: "conn-c"}
	r.Connect(connC, domain.Identity{UserID: "u3", Username: "carol"})

	sendCmd(t, r, connB, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})

	// u3 is not a participant of c1.
	sendCmd(t, r, connC, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})

	assert.False(t, r.hub.InRoom(connC.ID(), domain.ConversationRoom("c1")))

	framesC := decodeFrames(t, connC)
	require.Len(t, framesC, 1)
	assert.Equal(t, EvtError, framesC[0].Event)
	assert.Equal(t, "Not authorized to join this conversation", framesC[0].Payload["message"])

	// No user_joined reached anyone.
	for _, f := range decodeFrames(t, connB) {
		assert.NotEqual(t, EvtUserJoined, f.Event)
	}
	assert.Empty(t, decodeFrames(t, connA))
}

func TestRouter_JoinConversationStoreFailure(t *testing.T) {
	r, store, _, connA, _ := setupRouter(t)
	store.lookupErr = assert.AnError

	sendCmd(t, r, connA, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})

	assert.False(t, r.hub.InRoom(connA.ID(), domain.ConversationRoom("c1")))

	frames := decodeFrames(t, connA)
	require.Len(t, frames, 1)
	assert.Equal(t, EvtError, frames[0].Event)
	assert.Equal(t, "Failed to join conversation", frames[0].Payload["message"])

	// The connection stays usable afterwards.
	store.lookupErr = nil
	sendCmd(t, r, connA, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})
	assert.True(t, r.hub.InRoom(connA.ID(), domain.ConversationRoom("c1")))
}

func TestRouter_LeaveConversationNotifiesOthers(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	sendCmd(t, r, connA, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})
	sendCmd(t, r, connB, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})

	sendCmd(t, r, connA, CmdLeaveConversation, JoinConversationCommand{ConversationID: "c1"})

	assert.False(t, r.hub.InRoom(connA.ID(), domain.ConversationRoom("c1")))

	framesB := decodeFrames(t, connB)
	last := framesB[len(framesB)-1]
	assert.Equal(t, EvtUserLeft, last.Event)
	assert.Equal(t, "u1", last.Payload["userId"])
}

func TestRouter_TypingIndicators(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	sendCmd(t, r, connA, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})
	sendCmd(t, r, connB, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})
	countA := len(decodeFrames(t, connA))

	// B starts typing; A receives it, B does not.
	sendCmd(t, r, connB, CmdTypingStart, TypingCommand{ConversationID: "c1"})

	framesA := decodeFrames(t, connA)
	require.Len(t, framesA, countA+1)
	typing := framesA[len(framesA)-1]
	assert.Equal(t, EvtUserTyping, typing.Event)
	assert.Equal(t, "u2", typing.Payload["userId"])
	assert.Equal(t, "bob", typing.Payload["username"])
	assert.Equal(t, "c1", typing.Payload["conversationId"])

	for _, f := range decodeFrames(t, connB) {
		assert.NotEqual(t, EvtUserTyping, f.Event)
	}

	sendCmd(t, r, connB, CmdTypingStop, TypingCommand{ConversationID: "c1"})
	framesA = decodeFrames(t, connA)
	stopped := framesA[len(framesA)-1]
	assert.Equal(t, EvtUserStoppedTyping, stopped.Event)
	assert.Nil(t, stopped.Payload["username"]) // stop carries no username
}

func TestRouter_CommentTypingIndicators(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	sendCmd(t, r, connA, CmdJoinReel, JoinReelCommand{ReelID: "reel-9"})
	sendCmd(t, r, connB, CmdJoinReel, JoinReelCommand{ReelID: "reel-9"})

	sendCmd(t, r, connA, CmdCommentTypingStart, CommentTypingCommand{ReelID: "reel-9"})

	framesB := decodeFrames(t, connB)
	require.Len(t, framesB, 1)
	assert.Equal(t, EvtCommentUserTyping, framesB[0].Event)
	assert.Equal(t, "u1", framesB[0].Payload["userId"])
	assert.Equal(t, "reel-9", framesB[0].Payload["reelId"])
	assert.Empty(t, decodeFrames(t, connA))
}

func TestRouter_JoinReelIdempotent(t *testing.T) {
	r, _, _, connA, _ := setupRouter(t)

	room := domain.ReelRoom("reel-1")
	sendCmd(t, r, connA, CmdJoinReel, JoinReelCommand{ReelID: "reel-1"})
	sendCmd(t, r, connA, CmdJoinReel, JoinReelCommand{ReelID: "reel-1"})

	assert.Len(t, r.hub.Members(room), 1)
	// Reel joins and leaves emit nothing.
	assert.Empty(t, decodeFrames(t, connA))

	sendCmd(t, r, connA, CmdLeaveReel, JoinReelCommand{ReelID: "reel-1"})
	assert.Empty(t, r.hub.Members(room))
	assert.Empty(t, decodeFrames(t, connA))
}

func TestRouter_StatusUpdate(t *testing.T) {
	r, _, status, connA, connB := setupRouter(t)

	// B watches A's presence by subscribing to A's personal room.
	r.hub.Join(connB.ID(), domain.UserRoom("u1"))

	sendCmd(t, r, connA, CmdStatusUpdate, StatusUpdateCommand{Status: "away"})

	// The caller's own devices are included in the audience.
	framesA := decodeFrames(t, connA)
	require.Len(t, framesA, 1)
	assert.Equal(t, EvtUserStatusChanged, framesA[0].Event)
	assert.Equal(t, "away", framesA[0].Payload["status"])

	framesB := decodeFrames(t, connB)
	require.Len(t, framesB, 1)
	assert.Equal(t, "u1", framesB[0].Payload["userId"])

	assert.Equal(t, "away", status.statusOf("u1"))
}

func TestRouter_StatusUpdateRejectsUnknownStatus(t *testing.T) {
	r, _, status, connA, _ := setupRouter(t)

	sendCmd(t, r, connA, CmdStatusUpdate, StatusUpdateCommand{Status: "invisible"})

	assert.Empty(t, decodeFrames(t, connA))
	assert.Empty(t, status.statusOf("u1"))
}

func TestRouter_MessageRead(t *testing.T) {
	r, store, _, connA, connB := setupRouter(t)

	sendCmd(t, r, connA, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})
	sendCmd(t, r, connB, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})

	before := time.Now().UTC()
	sendCmd(t, r, connB, CmdMessageRead, MessageReadCommand{MessageID: "m7", ConversationID: "c1"})

	reads := store.readCalls()
	require.Len(t, reads, 1)
	assert.Equal(t, "c1", reads[0].ConversationID)
	assert.Equal(t, "u2", reads[0].UserID)
	assert.False(t, reads[0].ReadAt.Before(before))

	framesA := decodeFrames(t, connA)
	receipt := framesA[len(framesA)-1]
	assert.Equal(t, EvtMessageReadReceipt, receipt.Event)
	assert.Equal(t, "m7", receipt.Payload["messageId"])
	assert.Equal(t, "u2", receipt.Payload["readBy"])

	// The reader does not receive their own receipt.
	for _, f := range decodeFrames(t, connB) {
		assert.NotEqual(t, EvtMessageReadReceipt, f.Event)
	}
}

func TestRouter_MessageReadStoreFailureIsSilent(t *testing.T) {
	r, store, _, connA, connB := setupRouter(t)

	sendCmd(t, r, connA, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})
	sendCmd(t, r, connB, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})
	countA := len(decodeFrames(t, connA))

	store.markReadErr = assert.AnError
	sendCmd(t, r, connB, CmdMessageRead, MessageReadCommand{MessageID: "m7", ConversationID: "c1"})

	// No receipt and no error event; the failure is only logged.
	assert.Len(t, decodeFrames(t, connA), countA)
	for _, f := range decodeFrames(t, connB) {
		assert.NotEqual(t, EvtError, f.Event)
	}
}

func TestRouter_TargetedNotifications(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	sendCmd(t, r, connA, CmdLikeNotification, LikeNotificationCommand{
		TargetUserID: "u2", Type: "reel", ContentID: "reel-4",
	})
	sendCmd(t, r, connA, CmdCommentNotification, CommentNotificationCommand{
		TargetUserID: "u2", ReelID: "reel-4", CommentID: "cm-1",
	})
	sendCmd(t, r, connA, CmdFollowNotification, FollowNotificationCommand{TargetUserID: "u2"})

	framesB := decodeFrames(t, connB)
	require.Len(t, framesB, 3)

	assert.Equal(t, EvtNewLike, framesB[0].Event)
	assert.Equal(t, "u1", framesB[0].Payload["fromUserId"])
	assert.Equal(t, "alice", framesB[0].Payload["fromUsername"])
	assert.Equal(t, "reel", framesB[0].Payload["type"])

	assert.Equal(t, EvtNewComment, framesB[1].Event)
	assert.Equal(t, "cm-1", framesB[1].Payload["commentId"])

	assert.Equal(t, EvtNewFollower, framesB[2].Event)
	assert.Equal(t, "u1", framesB[2].Payload["followerId"])
	assert.Equal(t, "alice", framesB[2].Payload["followerUsername"])

	// Nothing bounced back to the sender.
	assert.Empty(t, decodeFrames(t, connA))
}

func TestRouter_CallSignaling(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	offer := json.RawMessage(`{"sdp":"offer-sdp"}`)
	sendCmd(t, r, connA, CmdCallInitiate, CallInitiateCommand{TargetUserID: "u2", Offer: offer})

	framesB := decodeFrames(t, connB)
	require.Len(t, framesB, 1)
	assert.Equal(t, EvtIncomingCall, framesB[0].Event)
	assert.Equal(t, "u1", framesB[0].Payload["callerId"])
	assert.Equal(t, "alice", framesB[0].Payload["callerUsername"])
	assert.Equal(t, map[string]any{"sdp": "offer-sdp"}, framesB[0].Payload["offer"])

	answer := json.RawMessage(`{"sdp":"answer-sdp"}`)
	sendCmd(t, r, connB, CmdCallAnswer, CallAnswerCommand{TargetUserID: "u1", Answer: answer})

	framesA := decodeFrames(t, connA)
	require.Len(t, framesA, 1)
	assert.Equal(t, EvtCallAnswered, framesA[0].Event)
	assert.Equal(t, map[string]any{"sdp": "answer-sdp"}, framesA[0].Payload["answer"])

	candidate := json.RawMessage(`{"candidate":"cand"}`)
	sendCmd(t, r, connA, CmdCallIceCandidate, CallIceCandidateCommand{TargetUserID: "u2", Candidate: candidate})
	sendCmd(t, r, connA, CmdCallEnd, CallEndCommand{TargetUserID: "u2"})

	framesB = decodeFrames(t, connB)
	require.Len(t, framesB, 3)
	assert.Equal(t, EvtCallIceCandidate, framesB[1].Event)
	assert.Equal(t, EvtCallEnded, framesB[2].Event)
	assert.Equal(t, "u1", framesB[2].Payload["userId"])
}

func TestRouter_DisconnectBroadcastsOfflineOnce(t *testing.T) {
	r, _, status, connA, connB := setupRouter(t)

	sendCmd(t, r, connA, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})
	sendCmd(t, r, connA, CmdJoinReel, JoinReelCommand{ReelID: "reel-1"})

	// B watches A's presence.
	r.hub.Join(connB.ID(), domain.UserRoom("u1"))

	r.Disconnect(connA.ID())

	framesB := decodeFrames(t, connB)
	var offline []frame
	for _, f := range framesB {
		if f.Event == EvtUserStatusChanged {
			offline = append(offline, f)
		}
	}
	require.Len(t, offline, 1)
	assert.Equal(t, "u1", offline[0].Payload["userId"])
	assert.Equal(t, "offline", offline[0].Payload["status"])

	assert.False(t, r.hub.InRoom(connA.ID(), domain.ConversationRoom("c1")))
	assert.False(t, r.hub.InRoom(connA.ID(), domain.ReelRoom("reel-1")))
	assert.Equal(t, "offline", status.statusOf("u1"))

	// A second disconnect emits nothing further.
	r.Disconnect(connA.ID())
	assert.Len(t, decodeFrames(t, connB), len(framesB))
}

func TestRouter_DisconnectWithNoWatchersReachesNobody(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	r.Disconnect(connA.ID())

	assert.Empty(t, decodeFrames(t, connB))
}

func TestRouter_MalformedFramesAreDropped(t *testing.T) {
	r, _, _, connA, connB := setupRouter(t)

	sendCmd(t, r, connB, CmdJoinConversation, JoinConversationCommand{ConversationID: "c1"})

	r.Handle(context.Background(), connA, []byte("not json"))
	r.Handle(context.Background(), connA, []byte(`{"event":"join_conversation","payload":"not an object"}`))
	r.Handle(context.Background(), connA, []byte(`{"event":"join_conversation"}`))
	r.Handle(context.Background(), connA, []byte(`{"event":"no_such_event","payload":{}}`))

	// No membership changes, no events to anyone.
	assert.False(t, r.hub.InRoom(connA.ID(), domain.ConversationRoom("c1")))
	assert.Empty(t, decodeFrames(t, connA))
	assert.Len(t, decodeFrames(t, connB), 0)
}

func TestRouter_HandleFromEvictedConnectionIsNoop(t *testing.T) {
	r, _, _, connA, _ := setupRouter(t)

	r.Disconnect(connA.ID())
	sendCmd(t, r, connA, CmdJoinReel, JoinReelCommand{ReelID: "reel-1"})

	assert.Empty(t, r.hub.Members(domain.ReelRoom("reel-1")))
}

func TestRouter_NotifyUser(t *testing.T) {
	r, _, _, _, connB := setupRouter(t)

	r.NotifyUser("u2", json.RawMessage(`{"kind":"system","text":"hi"}`))

	framesB := decodeFrames(t, connB)
	require.Len(t, framesB, 1)
	assert.Equal(t, EvtNotification, framesB[0].Event)
	assert.Equal(t, "hi", framesB[0].Payload["text"])
}
