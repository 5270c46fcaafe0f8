package chat

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"ugc-maroc-backend/internal/models"
)

// HistoryLoader seeds a freshly spawned actor's log from the durable store.
// It runs once, before the actor serves its first command.
type HistoryLoader func(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)

// Options tune per-actor constants.
type Options struct {
	SnapshotSize int
	Retention    int
}

// Registry maps conversation ids to their actors, spawning one on demand.
// Exactly one actor instance is authoritative for a given conversation id at
// any time; the registry is the only component allowed to create them.
type Registry struct {
	mu     sync.Mutex
	actors map[uuid.UUID]*Actor

	loader HistoryLoader
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. loader may be nil, in which case actors
// start with an empty log.
func NewRegistry(loader HistoryLoader, opts Options) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		actors: make(map[uuid.UUID]*Actor),
		loader: loader,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Get returns the actor for conversationID, spawning it if needed. Commands
// issued against a just-spawned actor queue up behind its history seeding.
func (r *Registry) Get(conversationID uuid.UUID) *Actor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if actor, ok := r.actors[conversationID]; ok {
		return actor
	}

	actor := newActor(conversationID, r.opts.SnapshotSize, r.opts.Retention)
	r.actors[conversationID] = actor

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var seed []models.Message
		if r.loader != nil {
			loaded, err := r.loader(r.ctx, conversationID)
			if err != nil {
				// The in-memory log is best-effort across restarts; start
				// empty rather than refusing to serve the conversation.
				log.Printf("WARN [Registry] seeding actor %s failed, starting empty: %v", conversationID, err)
			} else {
				seed = loaded
			}
		}
		actor.run(r.ctx, seed)
	}()

	return actor
}

// Shutdown stops every actor and waits for their goroutines to exit.
func (r *Registry) Shutdown() {
	r.cancel()
	r.wg.Wait()
}
