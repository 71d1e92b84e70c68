// Package coordinator is the Coordinator facade (spec §4.12/C12): it wires
// every other PTC component together, owns their lifecycle, and exposes
// the operations the HTTP admin surface and CLI drive. Modeled on the
// teacher's internal/worker/pool.go ("construct dependencies, own
// lifecycle, expose Start/Stop") and internal/api/routes.go (same
// construct-and-own pattern for the HTTP layer).
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/maumercado/ptc/internal/events"
	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/metrics"
	"github.com/maumercado/ptc/internal/ptc/acktracker"
	"github.com/maumercado/ptc/internal/ptc/claim"
	"github.com/maumercado/ptc/internal/ptc/deadletter"
	"github.com/maumercado/ptc/internal/ptc/heartbeat"
	"github.com/maumercado/ptc/internal/ptc/idgen"
	"github.com/maumercado/ptc/internal/ptc/message"
	"github.com/maumercado/ptc/internal/ptc/pqueue"
	"github.com/maumercado/ptc/internal/ptc/reassign"
	"github.com/maumercado/ptc/internal/ptc/retry"
	"github.com/maumercado/ptc/internal/ptc/staledetector"
	"github.com/maumercado/ptc/internal/ptc/store"
	"github.com/maumercado/ptc/internal/ptc/worker"
)

// Handler processes a delivered message of a given type. Registered per
// type in the dispatcher map (spec §9).
type Handler func(ctx context.Context, msg *message.Message) error

// Config carries the coordinator's tunables, sourced from
// config.CoordinatorConfig at construction time.
type Config struct {
	Name              string
	HeartbeatInterval time.Duration
	StaleThreshold    time.Duration
	PollInterval      time.Duration
	AckTimeout        time.Duration
	RetryPolicy       retry.Policy
	DeadLetterEnabled bool
	MaxTasksPerWorker int
	ReadyTaskCommand  string
}

// Status aggregates the facade's GetStatus response (spec §4.12/§6).
type Status struct {
	Name            string                  `json:"name"`
	Queue           pqueue.Stats            `json:"queue"`
	PendingAcks     acktracker.Stats        `json:"pending_acks"`
	Messages        *store.Stats            `json:"messages"`
	Workers         *store.WorkerStats      `json:"workers"`
	DeadLetters     *store.DeadLetterStats  `json:"dead_letters"`
	Reassignments   reassign.Stats          `json:"reassignments"`
}

// Coordinator is the C12 facade.
type Coordinator struct {
	cfg   Config
	store *store.Store

	queue       *pqueue.Queue
	acks        *acktracker.Tracker
	heartbeats  *heartbeat.Manager
	stale       *staledetector.Detector
	claims      *claim.Manager
	reassigner  *reassign.Reassigner
	deadletters *deadletter.Manager
	publisher   events.Publisher

	mu       sync.RWMutex
	handlers map[string]Handler

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a Coordinator over an already-open store. The caller owns
// the store's lifecycle (Open/Close) since it may be shared with other
// processes inspecting the same database file.
func New(cfg Config, s *store.Store, publisher events.Publisher) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		store:     s,
		publisher: publisher,
		handlers:  map[string]Handler{},
	}

	c.queue = pqueue.New(pqueue.DefaultEscalationThresholds, c.onEscalate)
	c.acks = acktracker.New(c.onAckTimeout)
	c.heartbeats = heartbeat.New(s, cfg.HeartbeatInterval)
	c.stale = staledetector.New(s, cfg.PollInterval, cfg.StaleThreshold, c.onWorkerStale)
	c.claims = claim.New(s, claim.ReadyTaskSource{Command: cfg.ReadyTaskCommand}, cfg.MaxTasksPerWorker)
	c.reassigner = reassign.New()
	c.deadletters = deadletter.New(s)

	return c
}

// RegisterHandler adds a type -> Handler mapping to the dispatcher (spec
// §9). Registering the same type twice replaces the prior handler.
func (c *Coordinator) RegisterHandler(msgType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = h
}

// Start loads the claim cache from storage and starts the stale-detector
// poll loop. Heartbeats are started per-worker via StartHeartbeat, not here
// — the coordinator doesn't know which workers exist until they register.
func (c *Coordinator) Start(ctx context.Context) error {
	var startErr error
	c.startOnce.Do(func() {
		if err := c.claims.Initialize(); err != nil {
			startErr = fmt.Errorf("start coordinator: %w", err)
			return
		}
		c.stale.Start()
		logger.Info().Str("name", c.cfg.Name).Msg("coordinator started")
	})
	return startErr
}

// Stop halts background loops. In-flight claims and queued messages are
// left as-is; a restart re-reads them from the store.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.stale.Stop()
		c.heartbeats.StopAll()
		c.queue.Close()
		c.acks.Close()
		logger.Info().Str("name", c.cfg.Name).Msg("coordinator stopped")
	})
}

// CreateMessage builds a canonical pending message with a fresh id, per
// spec §4.12's create_message.
func (c *Coordinator) CreateMessage(msgType, sender, recipient string, payload json.RawMessage, importance message.Importance, correlationID string) *message.Message {
	msg := message.New(msgType, sender, recipient, payload, importance, correlationID)
	msg.ID = idgen.NewMessageID(idgen.Options{Prefix: "msg", IncludeTimestamp: true})
	return msg
}

// Send persists a message and enqueues it for delivery (spec §4.12 send:
// persistence -> queue). A critical message's 30s escalation timer is armed
// by the queue itself on Enqueue; Send does not broadcast anything up
// front.
func (c *Coordinator) Send(ctx context.Context, msg *message.Message) error {
	if err := c.store.StoreOutgoing(msg); err != nil {
		return fmt.Errorf("send message %s: %w", msg.ID, err)
	}
	c.queue.Enqueue(msg)
	metrics.PTCMessagesTotal.WithLabelValues(string(message.StatusPending)).Inc()
	return nil
}

// DeliverNext dequeues the next message, marks it delivered, and registers
// it for acknowledgment tracking (spec §4.12's dispatch step). Returns
// (nil, false) if the queue is empty.
func (c *Coordinator) DeliverNext() (*message.Message, bool) {
	msg, ok := c.queue.Dequeue()
	if !ok {
		return nil, false
	}

	if err := c.store.MarkDelivered(msg.ID); err != nil {
		logger.Error().Err(err).Str("message_id", msg.ID).Msg("mark delivered failed")
	}
	c.acks.Register(msg.ID, msg.Recipient, c.cfg.AckTimeout)
	metrics.PTCMessagesTotal.WithLabelValues(string(message.StatusDelivered)).Inc()
	return msg, true
}

// Acknowledge resolves a pending delivery. A mismatched or unknown id
// returns the acktracker's sentinel error without touching storage, per
// spec §4.4's "stale/forged acks are rejected, not escalated" behavior.
func (c *Coordinator) Acknowledge(messageID, recipient string) error {
	if err := c.acks.Acknowledge(messageID, recipient); err != nil {
		return err
	}
	ok, err := c.store.Acknowledge(messageID, recipient)
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", messageID, err)
	}
	if !ok {
		return store.ErrMessageNotFound
	}
	metrics.PTCMessagesTotal.WithLabelValues(string(message.StatusAcknowledged)).Inc()
	return nil
}

// HandleFailure processes a delivery failure: retry with backoff if the
// message has attempts remaining, otherwise dead-letter it (spec §4.10/
// §4.11's boundary). It mirrors the teacher's Pool.handleTaskFailure
// branch, generalized from task-state transitions to message retry/DLQ.
func (c *Coordinator) HandleFailure(ctx context.Context, msg *message.Message, cause error, maxAttempts int) error {
	c.acks.Cancel(msg.ID)

	if !msg.CanRetry(maxAttempts) {
		if c.cfg.DeadLetterEnabled {
			if _, err := c.deadletters.Store(msg, cause.Error()); err != nil {
				return fmt.Errorf("dead-letter %s: %w", msg.ID, err)
			}
			metrics.PTCDeadLettersTotal.Inc()
			c.publish(ctx, events.EventDeadLetterAdded, events.TaskEventData(msg.ID, msg.Type, msg.Importance.String(), map[string]interface{}{"error": cause.Error()}))
		}
		if err := c.store.MarkDeadLetter(msg.ID, cause.Error()); err != nil {
			return fmt.Errorf("mark dead letter %s: %w", msg.ID, err)
		}
		metrics.PTCMessagesTotal.WithLabelValues(string(message.StatusDeadLetter)).Inc()
		return nil
	}

	if err := c.store.MarkFailed(msg.ID, cause.Error()); err != nil {
		return fmt.Errorf("mark failed %s: %w", msg.ID, err)
	}
	metrics.PTCMessagesTotal.WithLabelValues(string(message.StatusFailed)).Inc()

	msg.RetryCount++
	delay := c.cfg.RetryPolicy.CalculateBackoff(msg.RetryCount)
	metrics.PTCRetryBackoffSeconds.Observe(delay.Seconds())

	time.AfterFunc(delay, func() { c.queue.Enqueue(msg) })
	return nil
}

// Dispatch routes a delivered message to its registered handler, per the
// type -> handler map of spec §9. Returns an error if no handler is
// registered for msg.Type.
func (c *Coordinator) Dispatch(ctx context.Context, msg *message.Message) error {
	c.mu.RLock()
	h, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for message type %q", msg.Type)
	}
	return h(ctx, msg)
}

// RegisterWorker adds a worker to the registry and starts its heartbeat
// loop.
func (c *Coordinator) RegisterWorker(w *worker.Worker) error {
	if err := c.store.RegisterWorker(w); err != nil {
		return err
	}
	c.heartbeats.StartHeartbeat(w.ID)
	return nil
}

// UnregisterWorker stops a worker's heartbeat and reassigns its in-flight
// claims before marking it offline.
func (c *Coordinator) UnregisterWorker(ctx context.Context, workerID string) error {
	c.heartbeats.StopHeartbeat(workerID)
	if _, err := c.reassigner.ReassignFromWorker(c.store, workerID, "unregistered"); err != nil {
		logger.Error().Err(err).Str("worker_id", workerID).Msg("reassign on unregister failed")
	}
	return c.store.UnregisterWorker(workerID)
}

// Claim attempts to claim the next ready task for workerID (spec §4.8).
func (c *Coordinator) Claim(ctx context.Context, workerID string, metadata map[string]interface{}) (*store.TaskClaim, error) {
	res, err := c.claims.Claim(ctx, workerID, metadata)
	if err == nil {
		metrics.PTCClaimsTotal.WithLabelValues("success").Inc()
		return res, nil
	}
	if errIsRace(err) {
		metrics.PTCClaimRaceTotal.Inc()
		metrics.PTCClaimsTotal.WithLabelValues("race").Inc()
	} else {
		metrics.PTCClaimsTotal.WithLabelValues("error").Inc()
	}
	return nil, err
}

func errIsRace(err error) bool {
	return err == store.ErrAlreadyClaimed || err == store.ErrClaimRaceCondition
}

// GetStatus aggregates queue, ack, message, worker, and dead-letter state
// for the admin API and CLI's `status`/`stats` commands (spec §6).
func (c *Coordinator) GetStatus() (*Status, error) {
	msgStats, err := c.store.GetStats()
	if err != nil {
		return nil, fmt.Errorf("get message stats: %w", err)
	}
	workerStats, err := c.store.GetWorkerStats()
	if err != nil {
		return nil, fmt.Errorf("get worker stats: %w", err)
	}
	dlStats, err := c.store.GetDeadLetterStats()
	if err != nil {
		return nil, fmt.Errorf("get dead letter stats: %w", err)
	}

	return &Status{
		Name:          c.cfg.Name,
		Queue:         c.queue.Lengths(),
		PendingAcks:   c.acks.Stats(),
		Messages:      msgStats,
		Workers:       workerStats,
		DeadLetters:   dlStats,
		Reassignments: c.reassigner.GetStats(),
	}, nil
}

func (c *Coordinator) onEscalate(msg *message.Message, to message.Importance) {
	c.publish(context.Background(), events.EventMessageEscalated, events.TaskEventData(msg.ID, msg.Type, to.String(), nil))
}

func (c *Coordinator) onAckTimeout(messageID, recipient string) {
	metrics.PTCAckTimeoutTotal.Inc()
	logger.Warn().Str("message_id", messageID).Str("recipient", recipient).Msg("acknowledgment timed out")
}

func (c *Coordinator) onWorkerStale(w *worker.Worker) {
	metrics.PTCWorkerStaleTotal.Inc()
	c.publish(context.Background(), events.EventWorkerStale, events.WorkerEventData(w.ID, "stale", nil))

	reassigned, err := c.reassigner.ReassignFromWorker(c.store, w.ID, "stale")
	if err != nil {
		logger.Error().Err(err).Str("worker_id", w.ID).Msg("reassign on stale failed")
		return
	}
	for _, taskID := range reassigned {
		c.publish(context.Background(), events.EventWorkerReassigned, events.TaskEventData(taskID, "", "", map[string]interface{}{"from_worker": w.ID}))
	}
}

func (c *Coordinator) publish(ctx context.Context, eventType events.EventType, data map[string]interface{}) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		logger.Error().Err(err).Str("event_type", string(eventType)).Msg("publish event failed")
	}
}
