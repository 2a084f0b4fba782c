package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPolicyChannel = "governance:policy:invalidate"
	defaultCloseTimeout  = 5 * time.Second
)

// PolicyInvalidationMessage tells other instances to drop a tenant's policy
type PolicyInvalidationMessage struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Timestamp int64     `json:"timestamp"`
}

// RedisPolicyInvalidator broadcasts policy cache invalidations over Redis Pub/Sub
type RedisPolicyInvalidator struct {
	client    redis.UniversalClient
	channel   string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisPolicyInvalidatorOption is a functional option for configuring the invalidator
type RedisPolicyInvalidatorOption func(*RedisPolicyInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisPolicyInvalidatorOption {
	return func(i *RedisPolicyInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisPolicyInvalidatorOption {
	return func(i *RedisPolicyInvalidator) {
		i.logger = logger
	}
}

// NewRedisPolicyInvalidator creates an invalidator on an existing client.
// The caller retains ownership of the client.
func NewRedisPolicyInvalidator(client redis.UniversalClient, opts ...RedisPolicyInvalidatorOption) *RedisPolicyInvalidator {
	i := &RedisPolicyInvalidator{
		client:  client,
		channel: defaultPolicyChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// PublishPolicyUpdate notifies subscribers that a tenant's policy changed
func (i *RedisPolicyInvalidator) PublishPolicyUpdate(ctx context.Context, tenantID uuid.UUID) error {
	data, err := json.Marshal(PolicyInvalidationMessage{
		TenantID:  tenantID,
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe invokes callback for every invalidation until ctx is cancelled
// or Close is called. It blocks.
func (i *RedisPolicyInvalidator) Subscribe(ctx context.Context, callback func(msg PolicyInvalidationMessage)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.doneOnce.Do(func() { close(i.doneCh) })
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.logger.Info("Subscribed to policy invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Policy invalidation channel closed")
				return nil
			}
			var m PolicyInvalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				i.logger.Error("Failed to unmarshal policy invalidation",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			callback(m)
		}
	}
}

// Close stops a running subscription
func (i *RedisPolicyInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}
