// Package channel defines a full authenticated-channel contract (send,
// receive, close) over any transport, plus a connection pool keyed by
// peer device ID with idle eviction.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/aura-id/aura/internal/idkey"
)

// Sender is the minimal authenticated-channel contract a transport must
// satisfy: send a frame, receive a frame, and close the channel.
type Sender interface {
	Send(ctx context.Context, peer idkey.DeviceID, frame []byte) error
	Receive(ctx context.Context) (peer idkey.DeviceID, frame []byte, err error)
	Close() error
}

// Stats tracks per-channel traffic counters for observability and idle
// eviction decisions.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	BytesSent      uint64
	BytesReceived  uint64
	LastActivity   time.Time
}

// Conn wraps one authenticated Sender with its stats.
type Conn struct {
	Peer    idkey.DeviceID
	Sender  Sender
	Stats   Stats
	openedAt time.Time
}

// Send forwards to the underlying Sender and updates stats.
func (c *Conn) Send(ctx context.Context, frame []byte, now time.Time) error {
	if err := c.Sender.Send(ctx, c.Peer, frame); err != nil {
		return err
	}
	c.Stats.FramesSent++
	c.Stats.BytesSent += uint64(len(frame))
	c.Stats.LastActivity = now
	return nil
}

// RecordReceive updates stats for an inbound frame; callers own the
// actual Receive() call since it blocks.
func (c *Conn) RecordReceive(frame []byte, now time.Time) {
	c.Stats.FramesReceived++
	c.Stats.BytesReceived += uint64(len(frame))
	c.Stats.LastActivity = now
}

// Pool is a connection pool keyed by peer_device_id, evicting
// connections idle past IdleTimeout.
type Pool struct {
	mu          sync.Mutex
	conns       map[idkey.DeviceID]*Conn
	idleTimeout time.Duration
}

// NewPool constructs an empty pool with the given idle-eviction timeout.
func NewPool(idleTimeout time.Duration) *Pool {
	return &Pool{
		conns:       make(map[idkey.DeviceID]*Conn),
		idleTimeout: idleTimeout,
	}
}

// Put inserts or replaces the connection for a peer.
func (p *Pool) Put(peer idkey.DeviceID, sender Sender, now time.Time) *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &Conn{Peer: peer, Sender: sender, openedAt: now, Stats: Stats{LastActivity: now}}
	p.conns[peer] = c
	return c
}

// Get returns the connection for a peer, if live.
func (p *Pool) Get(peer idkey.DeviceID) (*Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[peer]
	return c, ok
}

// Remove closes and removes a connection from the pool.
func (p *Pool) Remove(peer idkey.DeviceID) error {
	p.mu.Lock()
	c, ok := p.conns[peer]
	delete(p.conns, peer)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Sender.Close()
}

// EvictIdle closes and removes every connection whose LastActivity is
// older than the pool's idle timeout, returning the evicted peer IDs.
func (p *Pool) EvictIdle(now time.Time) []idkey.DeviceID {
	p.mu.Lock()
	var stale []*Conn
	var ids []idkey.DeviceID
	for peer, c := range p.conns {
		if now.Sub(c.Stats.LastActivity) > p.idleTimeout {
			stale = append(stale, c)
			ids = append(ids, peer)
			delete(p.conns, peer)
		}
	}
	p.mu.Unlock()
	for _, c := range stale {
		_ = c.Sender.Close()
	}
	return ids
}

// Len reports the current pool size.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
