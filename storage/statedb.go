package storage

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount      = registerPrefix("acct:")
	prefixRewardsPool  = registerPrefix("pool:")
	prefixDeal         = registerPrefix("deal:")
	prefixCoupon       = registerPrefix("coupon:")
	prefixListing      = registerPrefix("list:")
	prefixStakedCoupon = registerPrefix("stake:")
	prefixRating       = registerPrefix("rating:")
	prefixComment      = registerPrefix("comment:")
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation. Program
// accounts are stored in their fixed binary layout; wallet accounts as JSON.
type StateDB struct {
	db DB

	mu        sync.RWMutex
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	if s.deleted[key] {
		s.mu.RUnlock()
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, key)
	s.deleted[key] = true
}

type binaryAccount interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

func (s *StateDB) load(prefix, address string, into binaryAccount) error {
	data, err := s.get(prefix + address)
	if err != nil {
		return err
	}
	if err := into.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("decode %s%s: %w", prefix, address, err)
	}
	return nil
}

func (s *StateDB) store(prefix, address string, acc binaryAccount) error {
	if address == "" {
		return errors.New("account has no address")
	}
	data, err := acc.MarshalBinary()
	if err != nil {
		return err
	}
	s.set(prefix+address, data)
	return nil
}

// ---- Wallet accounts ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	data, err := s.get(prefixAccount + address)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	s.set(prefixAccount+acc.Address, data)
	return nil
}

// ---- Program accounts ----

func (s *StateDB) GetRewardsPool(address string) (*core.RewardsPool, error) {
	p := &core.RewardsPool{Address: address}
	if err := s.load(prefixRewardsPool, address, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *StateDB) SetRewardsPool(p *core.RewardsPool) error {
	return s.store(prefixRewardsPool, p.Address, p)
}

func (s *StateDB) GetDeal(address string) (*core.Deal, error) {
	d := &core.Deal{Address: address}
	if err := s.load(prefixDeal, address, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *StateDB) SetDeal(d *core.Deal) error {
	return s.store(prefixDeal, d.Address, d)
}

func (s *StateDB) GetCoupon(address string) (*core.Coupon, error) {
	c := &core.Coupon{Address: address}
	if err := s.load(prefixCoupon, address, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *StateDB) SetCoupon(c *core.Coupon) error {
	return s.store(prefixCoupon, c.Address, c)
}

func (s *StateDB) GetListing(address string) (*core.Listing, error) {
	l := &core.Listing{Address: address}
	if err := s.load(prefixListing, address, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *StateDB) SetListing(l *core.Listing) error {
	return s.store(prefixListing, l.Address, l)
}

func (s *StateDB) GetStakedCoupon(address string) (*core.StakedCoupon, error) {
	sc := &core.StakedCoupon{Address: address}
	if err := s.load(prefixStakedCoupon, address, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *StateDB) SetStakedCoupon(sc *core.StakedCoupon) error {
	return s.store(prefixStakedCoupon, sc.Address, sc)
}

// DeleteStakedCoupon closes the stake record.
func (s *StateDB) DeleteStakedCoupon(address string) error {
	s.del(prefixStakedCoupon + address)
	return nil
}

func (s *StateDB) GetRating(address string) (*core.DealRating, error) {
	r := &core.DealRating{Address: address}
	if err := s.load(prefixRating, address, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *StateDB) SetRating(r *core.DealRating) error {
	return s.store(prefixRating, r.Address, r)
}

func (s *StateDB) GetComment(address string) (*core.Comment, error) {
	c := &core.Comment{Address: address}
	if err := s.load(prefixComment, address, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *StateDB) SetComment(c *core.Comment) error {
	return s.store(prefixComment, c.Address, c)
}

// ---- Snapshot / Rollback / Commit ----

func copyBuffer(dirty map[string][]byte, deleted map[string]bool) stateSnapshot {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(dirty)),
		deleted: make(map[string]bool, len(deleted)),
	}
	for k, v := range dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range deleted {
		snap.deleted[k] = v
	}
	return snap
}

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, copyBuffer(s.dirty, s.deleted))
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it along with every later one.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	restored := copyBuffer(s.snapshots[id].dirty, s.snapshots[id].deleted)
	s.dirty = restored.dirty
	s.deleted = restored.deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// Discard drops the whole write buffer, returning the state to the last commit.
func (s *StateDB) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
}

// ComputeRoot returns the deterministic hash of the complete world state:
// persisted entries under the registered prefixes overlaid with the write
// buffer, sorted by key and length-prefix encoded. It does not flush.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[string(it.Key())] = v
		}
		it.Release()
	}

	s.mu.RLock()
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}
	s.mu.RUnlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB and
// clears it. Call ComputeRoot() before signing the block, then Commit()
// once the block is stored.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
