package engine

import (
	"context"
	"log"
	"time"

	"tavern-net/internal/database"
	"tavern-net/internal/engine/actors"
	"tavern-net/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
)

// Engine wires the store, the integrity layer, the engagement view and the
// active-character propagation into one actor system.
type Engine struct {
	System    *actor.ActorSystem
	Store     database.EntityStore
	Integrity *IntegrityLayer
	View      *EngagementView
	Metrics   *utils.MetricsCollector

	propagator   *actor.PID
	subscription *eventstream.Subscription
}

func NewEngine(store database.EntityStore, policy actors.RetryPolicy, metrics *utils.MetricsCollector) *Engine {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewActiveCharacterActor(store, policy, metrics)
	})
	propagator, err := system.Root.SpawnNamed(props, "active-character")
	if err != nil {
		propagator = system.Root.Spawn(props)
	}
	subscription := actors.SubscribeCharacterEvents(system, propagator)

	log.Printf("Engine started, propagation actor %v", propagator)

	return &Engine{
		System:       system,
		Store:        store,
		Integrity:    NewIntegrityLayer(store, system.EventStream, metrics),
		View:         NewEngagementView(store, metrics),
		Metrics:      metrics,
		propagator:   propagator,
		subscription: subscription,
	}
}

// PropagationStats asks the propagation actor for its counters.
func (e *Engine) PropagationStats(timeout time.Duration) (actors.PropagationStats, error) {
	result, err := e.System.Root.RequestFuture(e.propagator, &actors.GetPropagationStatsMsg{}, timeout).Result()
	if err != nil {
		return actors.PropagationStats{}, utils.NewAppError(utils.ErrDatabase, "propagation actor did not answer", err)
	}
	stats, ok := result.(actors.PropagationStats)
	if !ok {
		return actors.PropagationStats{}, utils.NewAppError(utils.ErrDatabase, "unexpected propagation stats reply", nil)
	}
	return stats, nil
}

// Shutdown stops propagation and closes the store. Events already in the
// actor's mailbox are processed before it stops.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.System.EventStream.Unsubscribe(e.subscription)
	if err := e.System.Root.PoisonFuture(e.propagator).Wait(); err != nil {
		log.Printf("Propagation actor did not stop cleanly: %v", err)
	}
	return e.Store.Close(ctx)
}
