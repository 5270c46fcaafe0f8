package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"ugc-maroc-backend/internal/models"
)

// Defaults for the actor's in-memory log.
const (
	DefaultSnapshotSize = 50  // messages pushed to a freshly attached session
	DefaultRetention    = 512 // messages kept in memory per conversation
)

// ErrActorStopped is returned for operations against a shut-down actor.
var ErrActorStopped = errors.New("conversation actor stopped")

// Actor owns the live state of exactly one conversation: the in-memory
// message log and the set of attached sessions. All operations funnel through
// one command channel drained by a single goroutine, so state mutations are
// totally ordered per conversation and need no locks. Operations on distinct
// conversations are fully independent.
type Actor struct {
	ConversationID uuid.UUID

	commands chan any
	stopped  chan struct{}

	snapshotSize int
	retention    int

	// Owned exclusively by the run goroutine.
	log      []models.Message
	sessions map[*Session]struct{}
}

type attachCmd struct {
	sess  *Session
	reply chan struct{}
}

type detachCmd struct {
	sess  *Session
	reply chan struct{}
}

type postCmd struct {
	authorID uuid.UUID
	content  string
	kind     models.MessageKind
	reply    chan models.Message
}

type signalCmd struct {
	frame any
}

type historyCmd struct {
	limit  int
	offset int
	reply  chan historyPage
}

type historyPage struct {
	messages []models.Message
	hasMore  bool
}

func newActor(conversationID uuid.UUID, snapshotSize, retention int) *Actor {
	if snapshotSize <= 0 {
		snapshotSize = DefaultSnapshotSize
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Actor{
		ConversationID: conversationID,
		commands:       make(chan any, 32),
		stopped:        make(chan struct{}),
		snapshotSize:   snapshotSize,
		retention:      retention,
		sessions:       make(map[*Session]struct{}),
	}
}

// run seeds the log and then serves commands until ctx is cancelled. It is
// the only goroutine that ever touches a.log and a.sessions.
func (a *Actor) run(ctx context.Context, seed []models.Message) {
	defer close(a.stopped)

	a.log = append(a.log, seed...)
	a.truncate()

	for {
		select {
		case <-ctx.Done():
			for sess := range a.sessions {
				sess.Close()
			}
			return
		case cmd := <-a.commands:
			a.handle(cmd)
		}
	}
}

func (a *Actor) handle(cmd any) {
	switch c := cmd.(type) {
	case attachCmd:
		a.sessions[c.sess] = struct{}{}
		// The snapshot is enqueued before the attach acks, and each
		// session's outbound queue is FIFO, so every broadcast issued
		// after this attach is observed strictly after the snapshot.
		a.deliver(c.sess, HistoryFrame{Type: FrameHistory, Messages: a.snapshot()})
		close(c.reply)

	case detachCmd:
		if _, ok := a.sessions[c.sess]; ok {
			delete(a.sessions, c.sess)
			c.sess.Close()
		}
		close(c.reply)

	case postCmd:
		msg := models.Message{
			ID:             uuid.New(),
			ConversationID: a.ConversationID,
			AuthorID:       c.authorID,
			Content:        c.content,
			Kind:           c.kind,
			CreatedAt:      time.Now().UTC(),
		}
		a.log = append(a.log, msg)
		a.truncate()
		a.broadcast(NewMessageFrame{Type: FrameNewMessage, Message: msg})
		c.reply <- msg

	case signalCmd:
		a.broadcast(c.frame)

	case historyCmd:
		c.reply <- a.page(c.limit, c.offset)
	}
}

// snapshot returns the most recent snapshotSize messages, oldest first.
func (a *Actor) snapshot() []models.Message {
	start := len(a.log) - a.snapshotSize
	if start < 0 {
		start = 0
	}
	out := make([]models.Message, len(a.log)-start)
	copy(out, a.log[start:])
	return out
}

// page returns a newest-first page of the log. An offset beyond the log
// yields an empty page with hasMore=false.
func (a *Actor) page(limit, offset int) historyPage {
	if limit <= 0 {
		limit = DefaultSnapshotSize
	}
	if offset < 0 {
		offset = 0
	}

	total := len(a.log)
	if offset >= total {
		return historyPage{messages: []models.Message{}}
	}

	count := limit
	if offset+count > total {
		count = total - offset
	}

	out := make([]models.Message, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, a.log[total-1-offset-i])
	}
	return historyPage{messages: out, hasMore: offset+count < total}
}

func (a *Actor) truncate() {
	if len(a.log) <= a.retention {
		return
	}
	trimmed := make([]models.Message, a.retention)
	copy(trimmed, a.log[len(a.log)-a.retention:])
	a.log = trimmed
}

// broadcast enqueues a frame to every attached session. Enqueueing never
// blocks; a session whose queue is full or closed has failed and is detached
// here, logged, and never surfaced to the operation that triggered the send.
func (a *Actor) broadcast(frame any) {
	for sess := range a.sessions {
		a.deliver(sess, frame)
	}
}

func (a *Actor) deliver(sess *Session, frame any) {
	if !sess.trySend(frame) {
		delete(a.sessions, sess)
		sess.Close()
		log.Printf("WARN [Actor %s] dropping session %s (user %s): send failed", a.ConversationID, sess.ID, sess.UserID)
	}
}

func (a *Actor) submit(ctx context.Context, cmd any) error {
	select {
	case a.commands <- cmd:
		return nil
	case <-a.stopped:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach registers a session and pushes it a history snapshot of the most
// recent messages before any subsequent broadcast reaches it. Returns once
// the actor has processed the attach.
func (a *Actor) Attach(ctx context.Context, sess *Session) error {
	cmd := attachCmd{sess: sess, reply: make(chan struct{})}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	select {
	case <-cmd.reply:
		return nil
	case <-a.stopped:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detach removes a session. Idempotent.
func (a *Actor) Detach(ctx context.Context, sess *Session) error {
	cmd := detachCmd{sess: sess, reply: make(chan struct{})}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	select {
	case <-cmd.reply:
		return nil
	case <-a.stopped:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post appends a new message to the log and broadcasts it to every attached
// session. Session failures during the broadcast never fail the post.
func (a *Actor) Post(ctx context.Context, authorID uuid.UUID, content string, kind models.MessageKind) (models.Message, error) {
	cmd := postCmd{authorID: authorID, content: content, kind: kind, reply: make(chan models.Message, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return models.Message{}, err
	}
	select {
	case msg := <-cmd.reply:
		return msg, nil
	case <-a.stopped:
		return models.Message{}, ErrActorStopped
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

// Typing broadcasts an ephemeral typing signal; it is never stored.
func (a *Actor) Typing(ctx context.Context, userID uuid.UUID, isTyping bool) error {
	return a.submit(ctx, signalCmd{frame: TypingFrame{Type: FrameTyping, UserID: userID, IsTyping: isTyping}})
}

// Read broadcasts an ephemeral read-receipt signal; it is never stored.
func (a *Actor) Read(ctx context.Context, userID uuid.UUID, messageID *uuid.UUID) error {
	return a.submit(ctx, signalCmd{frame: ReadFrame{Type: FrameRead, UserID: userID, MessageID: messageID}})
}

// History returns a newest-first page of the in-memory log. Pure read; the
// same arguments against an unchanged log return identical results.
func (a *Actor) History(ctx context.Context, limit, offset int) ([]models.Message, bool, error) {
	cmd := historyCmd{limit: limit, offset: offset, reply: make(chan historyPage, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return nil, false, err
	}
	select {
	case page := <-cmd.reply:
		return page.messages, page.hasMore, nil
	case <-a.stopped:
		return nil, false, ErrActorStopped
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
