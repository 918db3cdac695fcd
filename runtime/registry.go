package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime/workers"
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
)

const (
	DefaultShards          = 32
	DefaultMailboxCapacity = 128
	DefaultDeliveryTimeout = 2 * time.Second
)

var (
	_ contract.IRegistry     = (*Registry)(nil)
	_ contract.StatsProvider = (*Registry)(nil)
)

type entry struct {
	username string
	mailbox  *workers.Mailbox
	conn     io.Closer
}

type shard struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*entry
}

// target is one recipient captured by a broadcast snapshot.
type target struct {
	id    domain.PeerID
	entry *entry
}

// Registry maps every joined peer to its mailbox.
// The map is split in shards, each with its own lock, so that joins, leaves
// and broadcasts from many sessions do not serialize on a single mutex.
// No lock is ever held while a message is being enqueued.
type Registry struct {
	log             *slog.Logger
	supervisor      contract.ISupervisor
	shards          []*shard
	mailboxCapacity int
	deliveryTimeout time.Duration
}

func NewRegistry(log *slog.Logger, supervisor contract.ISupervisor,
	shards, mailboxCapacity int, deliveryTimeout time.Duration) *Registry {
	if shards < 1 {
		shards = DefaultShards
	}
	if mailboxCapacity < 1 {
		mailboxCapacity = DefaultMailboxCapacity
	}
	if deliveryTimeout <= 0 {
		deliveryTimeout = DefaultDeliveryTimeout
	}
	r := &Registry{
		log:             log,
		supervisor:      supervisor,
		shards:          make([]*shard, shards),
		mailboxCapacity: mailboxCapacity,
		deliveryTimeout: deliveryTimeout,
	}
	for i := range r.shards {
		r.shards[i] = &shard{peers: make(map[domain.PeerID]*entry)}
	}
	return r
}

func (r *Registry) shardFor(id domain.PeerID) *shard {
	return r.shards[xxhash.Sum64String(string(id))%uint64(len(r.shards))]
}

// Register inserts the peer and starts its OutboundWorker on the write half
// of transport. The read half is handed back to the caller.
// Registering an id that is still present fails with ErrPeerAlreadyRegistered.
func (r *Registry) Register(ctx context.Context, id domain.PeerID, username string,
	transport contract.Transport) (contract.Peer, error) {
	e := &entry{username: username, mailbox: workers.NewMailbox(r.mailboxCapacity), conn: transport}

	sh := r.shardFor(id)
	sh.mu.Lock()
	if _, ok := sh.peers[id]; ok {
		sh.mu.Unlock()
		return contract.Peer{}, fmt.Errorf("%w: %s", errors.ErrPeerAlreadyRegistered, id)
	}
	sh.peers[id] = e
	sh.mu.Unlock()

	reader, writer := transport.Split()
	done := r.supervisor.Spawn(ctx, workers.NewOutboundWorker(r.log, id, e.mailbox, writer))

	r.log.Debug("Peer registered", "peer", id, "username", username)
	return contract.Peer{ID: id, Username: username, Reader: reader, Done: done}, nil
}

// Broadcast enqueues message for every registered peer except exclude.
// Full mailboxes are waited on concurrently, each for at most the delivery
// timeout, and Broadcast returns once every enqueue is settled: successive
// broadcasts from one sender therefore reach each recipient in call order.
// Peers whose mailbox is closed or stayed full are evicted.
// It returns the number of peers the message was enqueued to.
func (r *Registry) Broadcast(ctx context.Context, exclude domain.PeerID, message *domain.Message) int {
	var (
		delivered atomic.Int64
		wg        sync.WaitGroup
	)
	for _, t := range r.snapshot(func(id domain.PeerID) bool { return id != exclude }) {
		err := t.entry.mailbox.TrySend(message)
		switch {
		case err == nil:
			delivered.Add(1)
		case goerrors.Is(err, errors.ErrMailboxFull):
			wg.Add(1)
			go func(t target) {
				defer wg.Done()
				if err := t.entry.mailbox.Send(ctx, message, r.deliveryTimeout); err != nil {
					r.onSendFailure(t, err)
					return
				}
				delivered.Add(1)
			}(t)
		default:
			r.onSendFailure(t, err)
		}
	}
	wg.Wait()
	return int(delivered.Load())
}

func (r *Registry) onSendFailure(t target, err error) {
	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		r.log.Debug("Broadcast cancelled", "peer", t.id, "error", err)
		return
	}
	r.log.Warn("Failed to broadcast message, evicting peer", "peer", t.id, "username", t.entry.username, "error", err)
	r.evict(t)
}

// evict removes the peer only if it is still bound to the mailbox the failed
// send was attempted on: the same address may already belong to a new connection.
// An evicted peer also loses its connection, which unblocks a delivery worker
// stuck in a write and ends the peer's session.
// A peer that already unregistered keeps its connection so its queue can flush.
func (r *Registry) evict(t target) {
	sh := r.shardFor(t.id)
	sh.mu.Lock()
	current, ok := sh.peers[t.id]
	removed := ok && current == t.entry
	if removed {
		delete(sh.peers, t.id)
	}
	sh.mu.Unlock()
	t.entry.mailbox.Close()
	if !removed {
		return
	}
	if err := t.entry.conn.Close(); err != nil {
		r.log.Debug("Failed to close evicted peer connection", "peer", t.id, "error", err)
	}
}

// snapshot collects the peers accepted by keep, or every peer when keep is nil.
func (r *Registry) snapshot(keep func(domain.PeerID) bool) []target {
	var targets []target
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, e := range sh.peers {
			if keep == nil || keep(id) {
				targets = append(targets, target{id: id, entry: e})
			}
		}
		sh.mu.RUnlock()
	}
	return targets
}

// Unregister removes the peer and closes its mailbox. The OutboundWorker
// flushes what is already queued, then stops.
// It reports whether the peer was still registered.
func (r *Registry) Unregister(id domain.PeerID) bool {
	sh := r.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.peers[id]
	if ok {
		delete(sh.peers, id)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}
	e.mailbox.Close()
	r.log.Debug("Peer unregistered", "peer", id, "username", e.username)
	return true
}

// Close unregisters every peer.
func (r *Registry) Close() {
	for _, sh := range r.shards {
		sh.mu.Lock()
		peers := sh.peers
		sh.peers = make(map[domain.PeerID]*entry)
		sh.mu.Unlock()
		for _, e := range peers {
			e.mailbox.Close()
		}
	}
}

func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.peers)
		sh.mu.RUnlock()
	}
	return n
}

func (r *Registry) Contains(id domain.PeerID) bool {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.peers[id]
	return ok
}

func (r *Registry) Stats() []domain.MailboxStats {
	return lo.Map(r.snapshot(nil), func(t target, _ int) domain.MailboxStats {
		return domain.MailboxStats{
			Peer:     t.id,
			Username: t.entry.username,
			Length:   t.entry.mailbox.Len(),
			Capacity: t.entry.mailbox.Cap(),
		}
	})
}
