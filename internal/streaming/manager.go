// Package streaming fans campaign progress events out to live subscribers,
// keeps a short per-campaign history for replay, and optionally mirrors
// events into a Redis stream so other processes can read them.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCapacity  = 256
	defaultStreamLen = 1000
	mirrorTimeout    = 2 * time.Second
)

// Options configures a Manager.
type Options struct {
	Capacity     int           `mapstructure:"capacity"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
	StreamTTL    time.Duration `mapstructure:"stream_ttl"`
}

// Manager provides in-memory pub/sub for campaign events.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
	downstream  []Sink

	redis  *redis.Client
	maxLen int64
	ttl    time.Duration
	logger *zap.Logger
}

// NewManager creates a manager. rdb may be nil, in which case events only
// live in memory.
func NewManager(opts Options, rdb *redis.Client, logger *zap.Logger) *Manager {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.StreamMaxLen <= 0 {
		opts.StreamMaxLen = defaultStreamLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    opts.Capacity,
		redis:       rdb,
		maxLen:      opts.StreamMaxLen,
		ttl:         opts.StreamTTL,
		logger:      logger,
	}
}

// StreamKey is the Redis stream holding a campaign's events.
func StreamKey(campaignID string) string {
	return "brandcast:events:" + campaignID
}

// AddSink registers a sink that receives every event after sequencing,
// such as the campaign store's event log.
func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downstream = append(m.downstream, s)
}

// Subscribe adds a subscriber channel for campaignID; caller must drain and call Unsubscribe.
func (m *Manager) Subscribe(campaignID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[campaignID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[campaignID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(campaignID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[campaignID]; ok {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, campaignID)
		}
	}
}

// Publish assigns the next sequence number and delivers evt to subscribers
// without blocking. Slow subscribers miss events.
func (m *Manager) Publish(campaignID string, evt Event) {
	evt.CampaignID = campaignID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	rg := m.history[campaignID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[campaignID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	for ch := range m.subscribers[campaignID] {
		select {
		case ch <- evt:
		default:
		}
	}
	downstream := m.downstream
	m.mu.Unlock()

	if m.redis != nil {
		m.mirror(evt)
	}
	for _, s := range downstream {
		s.Publish(campaignID, evt)
	}
}

func (m *Manager) mirror(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	key := StreamKey(evt.CampaignID)
	err := m.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: m.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"seq":  strconv.FormatUint(evt.Seq, 10),
			"type": evt.Type,
			"data": string(evt.Marshal()),
		},
	}).Err()
	if err == nil && m.ttl > 0 {
		err = m.redis.Expire(ctx, key, m.ttl).Err()
	}
	if err != nil {
		m.logger.Warn("Failed to mirror event to redis",
			zap.String("campaign_id", evt.CampaignID),
			zap.String("type", evt.Type),
			zap.Error(err),
		)
	}
}

// ReplaySince returns events with Seq > since (best-effort within ring capacity).
func (m *Manager) ReplaySince(campaignID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[campaignID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the in-memory history of a finished campaign.
func (m *Manager) Forget(campaignID string) {
	m.mu.Lock()
	delete(m.history, campaignID)
	m.mu.Unlock()
}

// ReadStream reads mirrored events with Seq > since from Redis. It returns an
// empty slice when no Redis client is configured.
func (m *Manager) ReadStream(ctx context.Context, campaignID string, since uint64) ([]Event, error) {
	if m.redis == nil {
		return nil, nil
	}
	msgs, err := m.redis.XRange(ctx, StreamKey(campaignID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", campaignID, err)
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, _ := msg.Values["data"].(string)
		var evt Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			m.logger.Debug("Skipping malformed stream entry", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		if evt.Seq > since {
			out = append(out, evt)
		}
	}
	return out, nil
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
