package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"nftstake/storage"
)

// Manager owns the persisted key/value state. All mutations go through a Tx so
// a failed message leaves the database untouched.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write overlay on top of the committed state.
func (m *Manager) Begin() *Tx {
	return &Tx{db: m.db, writes: make(map[string][]byte), deleted: make(map[string]struct{})}
}

// Update runs fn inside a transaction and commits when fn succeeds.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	tx := m.Begin()
	if err := fn(tx); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// View runs fn against a transaction that is always discarded.
func (m *Manager) View(fn func(tx *Tx) error) error {
	tx := m.Begin()
	defer tx.Discard()
	return fn(tx)
}

var errTxClosed = errors.New("state: transaction already closed")

// Tx buffers writes and deletes until Commit. Reads see the buffered writes.
// A Tx is not safe for concurrent use.
type Tx struct {
	db      storage.Database
	writes  map[string][]byte
	deleted map[string]struct{}
	closed  bool
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	k := string(key)
	if v, ok := tx.writes[k]; ok {
		return v, nil
	}
	if _, ok := tx.deleted[k]; ok {
		return nil, nil
	}
	v, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (tx *Tx) put(key, value []byte) error {
	if tx.closed {
		return errTxClosed
	}
	k := string(key)
	tx.writes[k] = append([]byte(nil), value...)
	delete(tx.deleted, k)
	return nil
}

func (tx *Tx) del(key []byte) error {
	if tx.closed {
		return errTxClosed
	}
	k := string(key)
	delete(tx.writes, k)
	tx.deleted[k] = struct{}{}
	return nil
}

// iterate visits committed and buffered entries under prefix in key order.
func (tx *Tx) iterate(prefix []byte, fn func(key, value []byte) error) error {
	if tx.closed {
		return errTxClosed
	}
	merged := make(map[string][]byte)
	if err := tx.db.Iterate(prefix, func(k, v []byte) bool {
		merged[string(k)] = v
		return true
	}); err != nil {
		return err
	}
	for k := range tx.deleted {
		delete(merged, k)
	}
	for k, v := range tx.writes {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Dirty reports the number of buffered operations.
func (tx *Tx) Dirty() int { return len(tx.writes) + len(tx.deleted) }

// Commit writes every buffered operation in one batch.
func (tx *Tx) Commit() error {
	if tx.closed {
		return errTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 && len(tx.deleted) == 0 {
		return nil
	}
	batch := new(storage.Batch)
	for k := range tx.deleted {
		batch.Delete([]byte(k))
	}
	for k, v := range tx.writes {
		batch.Put([]byte(k), v)
	}
	return tx.db.Write(batch)
}

// Discard drops every buffered operation.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
	tx.deleted = nil
}

// KVPut stores value under key using RLP encoding.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return tx.put(key, encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := tx.get(key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := decodeValue(key, data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key. Missing keys are not an error.
func (tx *Tx) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return tx.del(key)
}

func decodeValue(key, data []byte, out interface{}) error {
	if err := rlp.DecodeBytes(data, out); err != nil {
		return fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return nil
}
