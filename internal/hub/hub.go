package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"classhub/internal/metrics"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

var _ interfaces.MessageBus = (*Hub)(nil)

// Hub fans persisted chat messages out to class-scoped subscriptions
// ARCHITECTURAL DISCOVERY: Central coordination point for all live delivery;
// the subscriber table is owned by one goroutine so no lock guards it
type Hub struct {
	// Channels for coordination
	// FUNCTIONAL DISCOVERY: Buffered channels prevent blocking during message bursts
	publishChannel     chan *types.Message     // 1000 buffer handles classroom message bursts
	subscribeChannel   chan *subscribeRequest  // acknowledged so Subscribe returns only once registered
	unsubscribeChannel chan *subscription      // 100 buffer for release events
	countChannel       chan *countRequest
	shutdownChannel    chan struct{} // Unbuffered for immediate shutdown signaling
	done               chan struct{}

	// Owned by run
	classes map[string]map[*subscription]struct{}

	logger  *zap.Logger
	metrics *metrics.Metrics

	// State
	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	running bool
	stopped bool
	mu      sync.RWMutex
}

type subscribeRequest struct {
	sub *subscription
	ack chan struct{}
}

type countRequest struct {
	classID string
	result  chan int
}

// NewHub creates a new hub. metrics may be nil.
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		publishChannel:     make(chan *types.Message, 1000),
		subscribeChannel:   make(chan *subscribeRequest, 100),
		unsubscribeChannel: make(chan *subscription, 100),
		countChannel:       make(chan *countRequest),
		shutdownChannel:    make(chan struct{}),
		done:               make(chan struct{}),
		classes:            make(map[string]map[*subscription]struct{}),
		logger:             logger,
		metrics:            m,
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.stopped {
		return ErrHubAlreadyRunning
	}
	h.running = true

	h.logger.Info("Starting message hub")
	go h.run(ctx)
	return nil
}

// Stop shuts the hub down and waits for the loop to exit.
// Open subscriptions are closed; Drain returns nil for them afterwards.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	h.stopped = true
	close(h.shutdownChannel)
	h.mu.Unlock()

	h.logger.Info("Stopping message hub")
	<-h.done
	return nil
}

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Subscribe opens a push channel for classID. Every message published after
// Subscribe returns is delivered to it until Unsubscribe.
func (h *Hub) Subscribe(classID string) (interfaces.Subscription, error) {
	if classID == "" {
		return nil, ErrInvalidClassID
	}
	if !h.isRunning() {
		return nil, ErrHubNotRunning
	}

	sub := &subscription{
		hub:     h,
		classID: classID,
		ready:   make(chan struct{}, 1),
	}
	req := &subscribeRequest{sub: sub, ack: make(chan struct{})}

	select {
	case h.subscribeChannel <- req:
	case <-h.shutdownChannel:
		return nil, ErrHubNotRunning
	}
	select {
	case <-req.ack:
		return sub, nil
	case <-h.done:
		return nil, ErrHubNotRunning
	}
}

// Publish queues a persisted message for fan-out
// TECHNICAL DISCOVERY: Non-blocking send keeps the write path from stalling on slow viewers
func (h *Hub) Publish(message *types.Message) error {
	if message == nil || message.ID == "" || message.ClassID == "" {
		return ErrInvalidMessage
	}
	if !h.isRunning() {
		return ErrHubNotRunning
	}

	select {
	case h.publishChannel <- message:
		return nil
	default:
		h.logger.Warn("Publish channel full, dropping live delivery",
			zap.String("class_id", message.ClassID),
			zap.String("message_id", message.ID))
		return ErrPublishChannelFull
	}
}

// SubscriberCount reports open subscriptions for classID
func (h *Hub) SubscriberCount(classID string) int {
	// A hub that never started has no loop to answer
	if !h.isRunning() {
		return 0
	}
	req := &countRequest{classID: classID, result: make(chan int, 1)}
	select {
	case h.countChannel <- req:
		return <-req.result
	case <-h.done:
		return 0
	}
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case msg := <-h.publishChannel:
			h.handlePublish(msg)

		case req := <-h.subscribeChannel:
			h.handleSubscribe(req)

		case sub := <-h.unsubscribeChannel:
			h.handleUnsubscribe(sub)

		case req := <-h.countChannel:
			req.result <- len(h.classes[req.classID])

		case <-h.shutdownChannel:
			h.logger.Info("Hub shutdown requested")
			return

		case <-ctx.Done():
			h.logger.Info("Hub context cancelled")
			h.mu.Lock()
			if h.running {
				h.running = false
				h.stopped = true
				close(h.shutdownChannel)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handlePublish(msg *types.Message) {
	subs := h.classes[msg.ClassID]
	for sub := range subs {
		sub.deliver(msg)
	}
	h.metrics.ObservePublish(len(subs))
	h.logger.Debug("Message fanned out",
		zap.String("class_id", msg.ClassID),
		zap.String("message_id", msg.ID),
		zap.Int("subscribers", len(subs)))
}

func (h *Hub) handleSubscribe(req *subscribeRequest) {
	subs, ok := h.classes[req.sub.classID]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.classes[req.sub.classID] = subs
	}
	subs[req.sub] = struct{}{}
	h.metrics.SubscriptionOpened()
	close(req.ack)
}

func (h *Hub) handleUnsubscribe(sub *subscription) {
	subs, ok := h.classes[sub.classID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.classes, sub.classID)
	}
	h.metrics.SubscriptionClosed()
}

// closeAll releases every subscription still registered at shutdown
func (h *Hub) closeAll() {
	for classID, subs := range h.classes {
		for sub := range subs {
			sub.close()
			h.metrics.SubscriptionClosed()
		}
		delete(h.classes, classID)
	}
}
