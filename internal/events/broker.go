// Package events fans lifecycle events out to UI subscribers. With Redis
// configured, events travel over pub/sub so every server instance sees them;
// without it the broker dispatches in-process only.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/focusms/server-go/internal/redis"
)

const HeartbeatInterval = 30 * time.Second

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	OwnerKey string
	Events   chan Event
	Done     chan struct{}
}

type Broker struct {
	redis   *redisclient.Client // nil when Redis is not configured
	clients map[string]map[*Client]bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(ownerKey string) *Client {
	client := &Client{
		OwnerKey: ownerKey,
		Events:   make(chan Event, 100),
		Done:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[ownerKey] == nil {
		b.clients[ownerKey] = make(map[*Client]bool)
		if b.redis != nil {
			go b.subscribeToRedis(ownerKey)
		}
	}
	b.clients[ownerKey][client] = true
	clientCount := len(b.clients[ownerKey])
	b.mu.Unlock()

	log.Debug().
		Str("owner", ownerKey).
		Int("clientCount", clientCount).
		Msg("event client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.OwnerKey]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.OwnerKey)
		}
	}
}

func (b *Broker) Publish(ctx context.Context, ownerKey string, event Event) error {
	if b.redis == nil {
		b.dispatch(ownerKey, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.EventChannel(ownerKey), data).Err()
}

// dispatch delivers an event to local subscribers. Slow subscribers drop
// events instead of blocking the publisher.
func (b *Broker) dispatch(ownerKey string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[ownerKey] {
		select {
		case client.Events <- event:
		default:
			log.Warn().Str("owner", ownerKey).Msg("event client buffer full, dropping event")
		}
	}
}

func (b *Broker) subscribeToRedis(ownerKey string) {
	channel := redisclient.EventChannel(ownerKey)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Str("owner", ownerKey).Msg("failed to parse pubsub event")
				continue
			}

			b.dispatch(ownerKey, event)

			b.mu.RLock()
			empty := len(b.clients[ownerKey]) == 0
			b.mu.RUnlock()
			if empty {
				return
			}
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}
