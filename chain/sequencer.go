package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Sequencer serializes transaction broadcast per account so concurrent
// submissions never race for the same nonce. Each account has its own lock
// and cached next nonce; different accounts proceed in parallel.
type Sequencer struct {
	backend Backend

	mu       sync.Mutex
	accounts map[common.Address]*nonceSlot
}

type nonceSlot struct {
	mu    sync.Mutex
	known bool
	next  uint64
}

// NewSequencer builds a sequencer over the given backend.
func NewSequencer(backend Backend) *Sequencer {
	return &Sequencer{
		backend:  backend,
		accounts: make(map[common.Address]*nonceSlot),
	}
}

func (s *Sequencer) slot(addr common.Address) *nonceSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.accounts[addr]
	if !ok {
		slot = &nonceSlot{}
		s.accounts[addr] = slot
	}
	return slot
}

// Broadcast reserves the account's next nonce, hands it to build, and sends
// the resulting signed transaction. The account lock is held across the
// whole sequence: fetch, build, sign, send. On success the cached nonce
// advances; on failure the cache is dropped so the next broadcast resyncs
// from the node.
func (s *Sequencer) Broadcast(ctx context.Context, addr common.Address, build func(nonce uint64) (*types.Transaction, error)) (*types.Transaction, error) {
	slot := s.slot(addr)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if !slot.known {
		next, err := s.backend.PendingNonceAt(ctx, addr)
		if err != nil {
			return nil, err
		}
		slot.next = next
		slot.known = true
	}

	tx, err := build(slot.next)
	if err != nil {
		return nil, err
	}

	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		// The node may or may not have accepted the nonce; resync on the
		// next broadcast rather than guessing.
		slot.known = false
		return nil, err
	}

	slot.next++
	return tx, nil
}

// Reset drops the cached nonce for an account, forcing a resync on the next
// broadcast.
func (s *Sequencer) Reset(addr common.Address) {
	slot := s.slot(addr)
	slot.mu.Lock()
	slot.known = false
	slot.mu.Unlock()
}
