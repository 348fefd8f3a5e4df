// Package room implements the Room Registry and Room Hub: per-stream
// collaboration state (participants, chat, polls, hand-raise, codec policy)
// serialized behind one mutex per room.
package room

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"classroom-stream/origin/internal/domain"
)

const (
	chatHistoryLimit = 50
	sendBuffer       = 64
)

// Session is one connected participant's outbound message channel.
type Session struct {
	ParticipantID string
	Send          chan Event
}

// Hub holds the authoritative state for one stream's collaboration room.
// All mutating methods take Hub.mu; callers never touch fields directly.
type Hub struct {
	mu sync.RWMutex

	key           domain.StreamKey
	participants  map[string]*participantState
	chat          []domain.ChatMessage
	polls         map[string]*domain.Poll
	pollOrder     []string
	handQueue     []domain.HandRaise
	policy        domain.CodecPolicy
	chatRetention int
}

type participantState struct {
	info   domain.Participant
	send   chan Event
	typing bool
}

// Event is a tagged-union message delivered to or from one connection;
// Registry/Hub methods return these for the transport layer to forward.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func NewHub(key domain.StreamKey, policy domain.CodecPolicy) *Hub {
	return &Hub{
		key:           key,
		policy:        policy,
		chatRetention: chatHistoryLimit,
		participants:  make(map[string]*participantState),
		polls:         make(map[string]*domain.Poll),
	}
}

// SetChatRetention overrides how many chat messages the room keeps in
// memory. Zero or negative values are ignored, leaving the default in place.
func (h *Hub) SetChatRetention(n int) {
	if n <= 0 {
		return
	}
	h.mu.Lock()
	h.chatRetention = n
	h.mu.Unlock()
}

// Policy returns the room's current codec policy. The orchestrator reads
// this at postPublish time to decide which codec ladders to transcode.
func (h *Hub) Policy() domain.CodecPolicy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.policy
}

// Join registers a new participant and returns their session plus a
// snapshot event to send before anything else.
func (h *Hub) Join(name string, role domain.Role) (*Session, Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Event{}, fmt.Errorf("participant name is required")
	}

	h.mu.Lock()

	id := uuid.NewString()
	p := domain.Participant{ID: id, Name: name, Role: role, JoinedAt: time.Now()}
	ps := &participantState{info: p, send: make(chan Event, sendBuffer)}
	h.participants[id] = ps

	snapshot := Event{
		Type: "snapshot",
		Payload: snapshotPayload{
			Self:         p,
			Participants: h.participantsLocked(),
			Chat:         append([]domain.ChatMessage(nil), h.chat...),
			Polls:        h.pollsLocked(),
			HandQueue:    append([]domain.HandRaise(nil), h.handQueue...),
			Policy:       h.policy,
		},
	}
	h.mu.Unlock()

	slog.Info("room joined", "stream_key", h.key, "participant_id", id, "name", name, "role", role)
	h.broadcast(Event{Type: "participant_joined", Payload: p}, id)

	return &Session{ParticipantID: id, Send: ps.send}, snapshot, nil
}

type snapshotPayload struct {
	Self         domain.Participant   `json:"self"`
	Participants []domain.Participant `json:"participants"`
	Chat         []domain.ChatMessage `json:"chat"`
	Polls        []domain.Poll        `json:"polls"`
	HandQueue    []domain.HandRaise   `json:"hand_queue"`
	Policy       domain.CodecPolicy   `json:"policy"`
}

// Leave removes a participant and reports whether the room is now empty.
func (h *Hub) Leave(participantID string) (empty bool) {
	h.mu.Lock()
	ps, ok := h.participants[participantID]
	if !ok {
		empty = len(h.participants) == 0
		h.mu.Unlock()
		return empty
	}
	wasTyping := ps.typing
	delete(h.participants, participantID)
	h.removeHandRaiseLocked(participantID)
	close(ps.send)
	empty = len(h.participants) == 0
	h.mu.Unlock()

	slog.Info("room left", "stream_key", h.key, "participant_id", participantID, "now_empty", empty)
	if wasTyping {
		h.broadcast(Event{Type: "user_typing", Payload: typingPayload{ParticipantID: participantID, Typing: false}}, participantID)
	}
	h.broadcast(Event{Type: "participant_left", Payload: map[string]string{"participant_id": participantID}}, participantID)
	return empty
}

// Typing records and broadcasts a participant's transient typing-indicator
// state. The state is cleared on Leave so a stale typing=true never
// outlives the participant's connection.
func (h *Hub) Typing(fromID string, isTyping bool) error {
	h.mu.Lock()
	ps, ok := h.participants[fromID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("participant not found")
	}
	ps.typing = isTyping
	h.mu.Unlock()

	h.broadcast(Event{Type: "user_typing", Payload: typingPayload{ParticipantID: fromID, Typing: isTyping}}, fromID)
	return nil
}

type typingPayload struct {
	ParticipantID string `json:"participant_id"`
	Typing        bool   `json:"typing"`
}

// IsEmpty reports whether the room currently has zero participants.
func (h *Hub) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.participants) == 0
}

// Chat appends a chat message, trims the log to the room's chat retention
// (chatHistoryLimit unless overridden by SetChatRetention), and broadcasts
// it to the room.
func (h *Hub) Chat(fromID, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("message body is required")
	}

	h.mu.Lock()
	ps, ok := h.participants[fromID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("participant not found")
	}
	msg := domain.ChatMessage{
		ID:       uuid.NewString(),
		From:     fromID,
		FromName: ps.info.Name,
		Body:     body,
		SentAt:   time.Now(),
	}
	h.chat = append(h.chat, msg)
	if len(h.chat) > h.chatRetention {
		h.chat = h.chat[len(h.chat)-h.chatRetention:]
	}
	h.mu.Unlock()

	h.broadcast(Event{Type: "chat", Payload: msg}, "")
	return nil
}

// CreatePoll opens a new poll. Only an instructor may create one. If
// autoCloseSeconds is positive, the poll closes itself once that many
// seconds have elapsed, emitting poll_closed exactly once, the same as an
// explicit ClosePoll.
func (h *Hub) CreatePoll(fromID, question string, options []string, autoCloseSeconds int) (domain.Poll, error) {
	if len(options) < 2 {
		return domain.Poll{}, fmt.Errorf("a poll needs at least two options")
	}

	h.mu.Lock()
	ps, ok := h.participants[fromID]
	if !ok {
		h.mu.Unlock()
		return domain.Poll{}, fmt.Errorf("participant not found")
	}
	if ps.info.Role != domain.RoleInstructor {
		h.mu.Unlock()
		return domain.Poll{}, fmt.Errorf("only an instructor may create a poll")
	}

	poll := domain.Poll{
		ID:               uuid.NewString(),
		Question:         question,
		Open:             true,
		CreatedBy:        fromID,
		CreatedAt:        time.Now(),
		AutoCloseSeconds: autoCloseSeconds,
		Ballots:          make(map[string]string),
	}
	for _, text := range options {
		poll.Options = append(poll.Options, domain.PollOption{ID: uuid.NewString(), Text: text})
	}
	h.polls[poll.ID] = &poll
	h.pollOrder = append(h.pollOrder, poll.ID)
	h.mu.Unlock()

	if autoCloseSeconds > 0 {
		pollID := poll.ID
		time.AfterFunc(time.Duration(autoCloseSeconds)*time.Second, func() {
			h.autoClosePoll(pollID)
		})
	}

	h.broadcast(Event{Type: "poll_opened", Payload: poll}, "")
	return poll, nil
}

// autoClosePoll fires once, per poll, after its auto-close timer elapses.
// It is a no-op if the poll was already closed (explicitly or by a prior
// firing), so poll_closed is emitted at most once per poll.
func (h *Hub) autoClosePoll(pollID string) {
	h.mu.Lock()
	poll, ok := h.polls[pollID]
	if !ok || !poll.Open {
		h.mu.Unlock()
		return
	}
	poll.Open = false
	snapshot := *poll
	h.mu.Unlock()

	slog.Info("poll auto-closed", "stream_key", h.key, "poll_id", pollID)
	h.broadcast(Event{Type: "poll_closed", Payload: snapshot}, "")
}

// Vote records fromID's vote for optionID on poll pollID. Re-voting changes
// the ballot (vote identity is the participant ID, preserved across
// changes); voting on a closed poll is a silent no-op per spec.
func (h *Hub) Vote(fromID, pollID, optionID string) error {
	h.mu.Lock()
	poll, ok := h.polls[pollID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("poll not found")
	}
	if !poll.Open {
		h.mu.Unlock()
		return nil // integrity no-op, not an error
	}
	optIdx := -1
	for i, o := range poll.Options {
		if o.ID == optionID {
			optIdx = i
			break
		}
	}
	if optIdx == -1 {
		h.mu.Unlock()
		return fmt.Errorf("option not found")
	}

	if prev, voted := poll.Ballots[fromID]; voted {
		if prev == optionID {
			h.mu.Unlock()
			return nil // duplicate vote, no-op
		}
		for i, o := range poll.Options {
			if o.ID == prev {
				poll.Options[i].Votes--
			}
		}
	}
	poll.Ballots[fromID] = optionID
	poll.Options[optIdx].Votes++
	snapshot := *poll
	h.mu.Unlock()

	h.broadcast(Event{Type: "poll_updated", Payload: snapshot}, "")
	return nil
}

// ClosePoll closes an open poll. Closing an already-closed poll is a no-op.
func (h *Hub) ClosePoll(fromID, pollID string) error {
	h.mu.Lock()
	ps, ok := h.participants[fromID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("participant not found")
	}
	if ps.info.Role != domain.RoleInstructor {
		h.mu.Unlock()
		return fmt.Errorf("only an instructor may close a poll")
	}
	poll, ok := h.polls[pollID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("poll not found")
	}
	if !poll.Open {
		h.mu.Unlock()
		return nil
	}
	poll.Open = false
	snapshot := *poll
	h.mu.Unlock()

	h.broadcast(Event{Type: "poll_closed", Payload: snapshot}, "")
	return nil
}

// RaiseHand enqueues fromID at the tail of the hand-raise queue. Raising a
// hand twice is a no-op (dedup by participant ID).
func (h *Hub) RaiseHand(fromID string) error {
	h.mu.Lock()
	if _, ok := h.participants[fromID]; !ok {
		h.mu.Unlock()
		return fmt.Errorf("participant not found")
	}
	for _, hr := range h.handQueue {
		if hr.ParticipantID == fromID {
			h.mu.Unlock()
			return nil
		}
	}
	h.handQueue = append(h.handQueue, domain.HandRaise{ParticipantID: fromID, RaisedAt: time.Now()})
	queue := append([]domain.HandRaise(nil), h.handQueue...)
	h.mu.Unlock()

	h.broadcast(Event{Type: "hand_queue", Payload: queue}, "")
	return nil
}

// LowerHand removes fromID from the hand-raise queue, wherever it sits.
// Lowering a hand that isn't raised is a no-op. An instructor may lower any
// participant's hand; a student may only lower their own.
func (h *Hub) LowerHand(fromID, targetID string) error {
	h.mu.Lock()
	ps, ok := h.participants[fromID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("participant not found")
	}
	if targetID == "" {
		targetID = fromID
	}
	if targetID != fromID && ps.info.Role != domain.RoleInstructor {
		h.mu.Unlock()
		return fmt.Errorf("only an instructor may lower another participant's hand")
	}
	h.removeHandRaiseLocked(targetID)
	queue := append([]domain.HandRaise(nil), h.handQueue...)
	h.mu.Unlock()

	h.broadcast(Event{Type: "hand_queue", Payload: queue}, "")
	return nil
}

func (h *Hub) removeHandRaiseLocked(participantID string) {
	out := h.handQueue[:0]
	for _, hr := range h.handQueue {
		if hr.ParticipantID != participantID {
			out = append(out, hr)
		}
	}
	h.handQueue = out
}

// SetCodecPolicy is instructor-only and updates the policy snapshot shared
// with newly joining participants. It does not retroactively change an
// in-progress transcode; the orchestrator owns that decision.
func (h *Hub) SetCodecPolicy(fromID string, policy domain.CodecPolicy) error {
	h.mu.Lock()
	ps, ok := h.participants[fromID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("participant not found")
	}
	if ps.info.Role != domain.RoleInstructor {
		h.mu.Unlock()
		return fmt.Errorf("only an instructor may change codec policy")
	}
	h.policy = policy
	h.mu.Unlock()

	h.broadcast(Event{Type: "codec_policy", Payload: policy}, "")
	return nil
}

// Participants returns a stable-ordered snapshot.
func (h *Hub) Participants() []domain.Participant {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.participantsLocked()
}

func (h *Hub) participantsLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(h.participants))
	for _, ps := range h.participants {
		out = append(out, ps.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

func (h *Hub) pollsLocked() []domain.Poll {
	out := make([]domain.Poll, 0, len(h.pollOrder))
	for _, id := range h.pollOrder {
		if p, ok := h.polls[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// broadcast fans an event out to every connected participant except
// excludeID (pass "" to exclude no one). Sends never block: a participant
// whose send queue is full drops the message rather than stalling the room.
func (h *Hub) broadcast(evt Event, excludeID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ps := range h.participants {
		if id == excludeID {
			continue
		}
		select {
		case ps.send <- evt:
		default:
			slog.Warn("room send queue full, dropping event", "stream_key", h.key, "participant_id", id, "event_type", evt.Type)
		}
	}
}

// SendTo delivers an event to one participant only, subject to the same
// drop-on-full backpressure as broadcast.
func (h *Hub) SendTo(participantID string, evt Event) {
	h.mu.RLock()
	ps, ok := h.participants[participantID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ps.send <- evt:
	default:
		slog.Warn("room direct send queue full, dropping event", "stream_key", h.key, "participant_id", participantID, "event_type", evt.Type)
	}
}
