// internal/analytics/sink.go
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pitchside/pitchside/internal/config"
	"github.com/pitchside/pitchside/internal/room"
)

// DefaultQueueName is the Redis list the engine pushes terminal events onto.
// A downstream consumer drains it for stats and history.
var DefaultQueueName = "pitchside_events"

// record is the wire shape of one terminal event on the queue.
type record struct {
	Kind      string    `json:"kind"`
	RoomID    uuid.UUID `json:"room_id"`
	RoomType  string    `json:"room_type"`
	Reason    string    `json:"reason"`
	Timestamp int64     `json:"timestamp"`
}

// Sink pushes terminal room events onto a Redis list, fire-and-forget. It
// satisfies the room service's Recorder hook; a dead Redis costs log noise,
// never a room operation.
type Sink struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// Connect initializes the sink from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//   - ANALYTICS_QUEUE_NAME (optional)
func Connect(log *logrus.Logger) (*Sink, error) {
	addr := config.GetEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   config.GetEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Sink{
		rdb:   rdb,
		queue: config.GetEnv("ANALYTICS_QUEUE_NAME", DefaultQueueName),
		log:   log,
	}, nil
}

// Close releases the underlying client.
func (s *Sink) Close() error { return s.rdb.Close() }

func (s *Sink) RoomClosed(roomID uuid.UUID, roomType room.Type, reason string) {
	s.push(record{Kind: "room_closed", RoomID: roomID, RoomType: string(roomType), Reason: reason})
}

func (s *Sink) GameEnded(roomID uuid.UUID, roomType room.Type, reason string) {
	s.push(record{Kind: "game_ended", RoomID: roomID, RoomType: string(roomType), Reason: reason})
}

func (s *Sink) push(rec record) {
	rec.Timestamp = time.Now().Unix()
	go func() {
		data, err := json.Marshal(rec)
		if err != nil {
			s.log.Warnf("analytics: failed to marshal %s record: %v", rec.Kind, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.rdb.RPush(ctx, s.queue, data).Err(); err != nil {
			s.log.Warnf("analytics: failed to RPush to '%s': %v", s.queue, err)
		}
	}()
}
