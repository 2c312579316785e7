package actors

import (
	stdctx "context"
	"log"
	"time"

	"tavern-net/internal/database"
	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
)

// RetryPolicy bounds how a failed propagation is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 3 * time.Second,
	}
}

// Backoff is the delay before the given retry attempt (2, 3, ...).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// Message types for ActiveCharacterActor
type (
	// GetPropagationStatsMsg is answered with a PropagationStats copy.
	GetPropagationStatsMsg struct{}

	PropagationStats struct {
		Applied int // Account.active changed
		Skipped int // Event was older than what the account already holds
		Dropped int // Permanent failure, or retries exhausted
		Retried int
		Pending int // Retries scheduled but not yet delivered
	}

	retryUpsertMsg struct {
		event   *models.CharacterUpserted
		attempt int
	}
)

// ActiveCharacterActor applies CharacterUpserted events to the owning
// account's active character. Its mailbox serializes events, and the store
// write is conditional on the event timestamp, so replays and out-of-order
// deliveries never move Account.active backwards.
type ActiveCharacterActor struct {
	store       database.EntityStore
	policy      RetryPolicy
	metrics     *utils.MetricsCollector
	lastApplied map[string]time.Time // Owner -> newest event timestamp seen in the store
	stats       PropagationStats
}

func NewActiveCharacterActor(store database.EntityStore, policy RetryPolicy, metrics *utils.MetricsCollector) actor.Actor {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	defaults := DefaultRetryPolicy()
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaults.InitialBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = defaults.AttemptTimeout
	}
	return &ActiveCharacterActor{
		store:       store,
		policy:      policy,
		metrics:     metrics,
		lastApplied: make(map[string]time.Time),
	}
}

func (a *ActiveCharacterActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		log.Printf("ActiveCharacterActor started with PID: %v", context.Self())

	case *models.CharacterUpserted:
		a.handleUpserted(context, msg, 1)

	case *retryUpsertMsg:
		a.stats.Pending--
		a.handleUpserted(context, msg.event, msg.attempt)

	case *GetPropagationStatsMsg:
		context.Respond(a.stats)

	case *actor.Stopping, *actor.Stopped, *actor.Restarting:

	default:
		log.Printf("ActiveCharacterActor: Unknown message type %T", msg)
	}
}

func (a *ActiveCharacterActor) handleUpserted(context actor.Context, evt *models.CharacterUpserted, attempt int) {
	if last, ok := a.lastApplied[evt.Owner]; ok && !evt.At.After(last) {
		a.stats.Skipped++
		return
	}

	start := time.Now()
	applied, err := a.apply(evt)
	a.metrics.Track("propagate_active_character", start, err)

	switch {
	case err == nil:
		a.lastApplied[evt.Owner] = evt.At
		if applied {
			a.stats.Applied++
		} else {
			a.stats.Skipped++
		}

	case utils.IsPermanent(err):
		log.Printf("ActiveCharacterActor: dropping %s for %s: %v", evt.CharacterID, evt.Owner, err)
		a.stats.Dropped++

	case attempt >= a.policy.MaxAttempts:
		log.Printf("ActiveCharacterActor: giving up on %s for %s after %d attempts: %v",
			evt.CharacterID, evt.Owner, attempt, err)
		a.stats.Dropped++

	default:
		delay := a.policy.Backoff(attempt + 1)
		log.Printf("ActiveCharacterActor: attempt %d for %s failed, retrying in %s: %v",
			attempt, evt.CharacterID, delay, err)
		a.stats.Retried++
		a.stats.Pending++

		self := context.Self()
		root := context.ActorSystem().Root
		retry := &retryUpsertMsg{event: evt, attempt: attempt + 1}
		time.AfterFunc(delay, func() { root.Send(self, retry) })
	}
}

// apply relies on the store to verify, atomically with the write, that the
// character still exists and belongs to the owner.
func (a *ActiveCharacterActor) apply(evt *models.CharacterUpserted) (bool, error) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.policy.AttemptTimeout)
	defer cancel()

	return a.store.SetActiveCharacter(ctx, evt.Owner, evt.CharacterID, evt.At)
}

// SubscribeCharacterEvents forwards every CharacterUpserted published on the
// system's event stream to pid.
func SubscribeCharacterEvents(system *actor.ActorSystem, pid *actor.PID) *eventstream.Subscription {
	return system.EventStream.Subscribe(func(evt interface{}) {
		if upserted, ok := evt.(*models.CharacterUpserted); ok {
			system.Root.Send(pid, upserted)
		}
	})
}
