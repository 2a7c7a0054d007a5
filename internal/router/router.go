package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classhub/internal/metrics"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

var _ interfaces.MessageSender = (*Router)(nil)

// Router is the chat send pipeline
// ARCHITECTURAL DISCOVERY: Validation, authorization and persistence happen here;
// delivery is the hub's job, so the router never touches a socket
type Router struct {
	access      interfaces.AccessChecker
	store       interfaces.MessageStore
	publisher   interfaces.Publisher
	rateLimiter *RateLimiter
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewRouter creates a send pipeline. rateLimit is messages per minute per user.
func NewRouter(access interfaces.AccessChecker, store interfaces.MessageStore, publisher interfaces.Publisher,
	rateLimit int, logger *zap.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		access:      access,
		store:       store,
		publisher:   publisher,
		rateLimiter: NewRateLimiter(rateLimit, time.Minute),
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
}

// RateLimiter exposes the limiter for periodic cleanup
func (r *Router) RateLimiter() *RateLimiter {
	return r.rateLimiter
}

// Send validates, persists and publishes one message
// FUNCTIONAL DISCOVERY: Persist-then-publish ensures every live delivery is
// also in history; server-side id and timestamp prevent client tampering
func (r *Router) Send(ctx context.Context, classID, userID, content string) (*types.Message, error) {
	msg, err := r.send(ctx, classID, userID, content)
	r.metrics.ObserveSend(err)
	return msg, err
}

func (r *Router) send(ctx context.Context, classID, userID, content string) (*types.Message, error) {
	// TECHNICAL DISCOVERY: Content is checked first so an empty message never
	// costs a store round trip
	content, err := types.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrMissingSender
	}

	class, err := r.access.CanAccess(ctx, classID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSend, err)
	}
	if class.Status.Terminal() {
		return nil, fmt.Errorf("%w: %w", types.ErrSend, types.ErrClassClosed)
	}

	if !r.rateLimiter.Allow(userID) {
		return nil, ErrRateLimitExceeded
	}

	message := &types.Message{
		ID:        uuid.New().String(),
		ClassID:   class.ID,
		UserID:    userID,
		Content:   content,
		CreatedAt: r.now().UTC(),
	}

	if err := r.store.StoreMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("%w: failed to persist message: %w", types.ErrSend, err)
	}

	// FUNCTIONAL DISCOVERY: A publish failure after a successful write is not a
	// send failure; the row is durable and shows up on the next history load
	if err := r.publisher.Publish(message); err != nil {
		r.logger.Warn("Message stored but not published",
			zap.String("class_id", message.ClassID),
			zap.String("message_id", message.ID),
			zap.Error(err))
	}

	r.logger.Debug("Message sent",
		zap.String("class_id", message.ClassID),
		zap.String("user_id", userID),
		zap.String("message_id", message.ID))
	return message, nil
}
