// internal/broadcast/gateway.go
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pitchside/pitchside/internal/events"
)

// TopicRoomList is the global topic carrying room list snapshots.
const TopicRoomList = "rooms"

// RoomTopic names the per-room fan-out topic.
func RoomTopic(roomID uuid.UUID) string { return "room:" + roomID.String() }

// PlayerTopic names a single player's direct topic, used for queue and
// proposal events that target one connection.
func PlayerTopic(playerID uuid.UUID) string { return "player:" + playerID.String() }

// Bus is the contract the room and matchmaking services depend on. Delivery
// is at-most-once and best-effort; publishers never wait for
// acknowledgement. Subscriptions are keyed by player id because a player has
// at most one live connection.
type Bus interface {
	Publish(topic string, msg events.Payload)
	SubscribePlayer(playerID uuid.UUID, topic string)
	UnsubscribePlayer(playerID uuid.UUID, topic string)
}

// Subscriber is one connection's presence on the gateway. OutChan is drained
// by the connection's write pump.
type Subscriber struct {
	ID      uuid.UUID
	OutChan chan events.Payload
	log     *logrus.Logger
}

// NewSubscriber builds a subscriber with a buffered outbox.
func NewSubscriber(id uuid.UUID, buffer int, log *logrus.Logger) *Subscriber {
	return &Subscriber{ID: id, OutChan: make(chan events.Payload, buffer), log: log}
}

// Write pushes a message onto the subscriber's outbox without blocking. A
// full or closed outbox drops the message; slow consumers miss events rather
// than stalling the publisher.
func (s *Subscriber) Write(msg events.Payload) {
	select {
	case s.OutChan <- msg:
	default:
		if s.log != nil {
			typ, _ := msg["type"].(string)
			s.log.Warnf("broadcast: outbox for %s full or closed, dropped %q", s.ID, typ)
		}
	}
}

// WriteError is a convenience to send a typed error object to this
// subscriber only.
func (s *Subscriber) WriteError(code, msg string) {
	s.Write(events.Error(code, msg))
}

// Gateway fans events out to every subscriber of a topic. It is the only
// piece of the engine that knows which connections exist; services publish
// abstract events and never touch sockets.
type Gateway struct {
	mu       sync.Mutex
	registry map[uuid.UUID]*Subscriber
	topics   map[string]map[uuid.UUID]*Subscriber
	log      *logrus.Logger
}

func NewGateway(log *logrus.Logger) *Gateway {
	return &Gateway{
		registry: make(map[uuid.UUID]*Subscriber),
		topics:   make(map[string]map[uuid.UUID]*Subscriber),
		log:      log,
	}
}

// Register announces a live connection and subscribes it to its own player
// topic. Registering the same id again replaces the previous connection,
// which covers reconnects.
func (g *Gateway) Register(sub *Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registry[sub.ID] = sub
	g.subscribeLocked(PlayerTopic(sub.ID), sub)
}

// Subscribe registers sub on topic.
func (g *Gateway) Subscribe(topic string, sub *Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribeLocked(topic, sub)
}

func (g *Gateway) subscribeLocked(topic string, sub *Subscriber) {
	subs, ok := g.topics[topic]
	if !ok {
		subs = make(map[uuid.UUID]*Subscriber)
		g.topics[topic] = subs
	}
	subs[sub.ID] = sub
}

// SubscribePlayer attaches the player's live connection, if any, to topic.
// A player without a connection is a no-op; they pick the topic back up on
// reconnect through the session handler.
func (g *Gateway) SubscribePlayer(playerID uuid.UUID, topic string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sub, ok := g.registry[playerID]; ok {
		g.subscribeLocked(topic, sub)
	}
}

// UnsubscribePlayer removes the player's connection from topic.
func (g *Gateway) UnsubscribePlayer(playerID uuid.UUID, topic string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if subs, ok := g.topics[topic]; ok {
		delete(subs, playerID)
		if len(subs) == 0 {
			delete(g.topics, topic)
		}
	}
}

// Drop removes the subscriber with id from the registry and every topic,
// used when a connection goes away.
func (g *Gateway) Drop(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.registry, id)
	for topic, subs := range g.topics {
		delete(subs, id)
		if len(subs) == 0 {
			delete(g.topics, topic)
		}
	}
}

// Publish fans msg out to every current subscriber of topic. Subscriber
// writes are non-blocking, so holding the registry lock across the loop is
// safe.
func (g *Gateway) Publish(topic string, msg events.Payload) {
	g.mu.Lock()
	subs := make([]*Subscriber, 0, len(g.topics[topic]))
	for _, sub := range g.topics[topic] {
		subs = append(subs, sub)
	}
	g.mu.Unlock()

	for _, sub := range subs {
		sub.Write(msg)
	}
}
