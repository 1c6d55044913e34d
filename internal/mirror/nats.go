package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// historyKey holds the whole mirror as one JSON array.
const historyKey = "camera_history"

const maxConflictRetries = 8

var errRevisionConflict = errors.New("revision conflict")

// kvStore is the key-value surface the NATS backend needs. Revision 0 means
// the key does not exist yet.
type kvStore interface {
	load(ctx context.Context) ([]byte, uint64, error)
	create(ctx context.Context, value []byte) error
	update(ctx context.Context, value []byte, revision uint64) error
	status(ctx context.Context) error
}

// NATSBackend keeps the mirror in a JetStream key-value bucket. Writers use
// optimistic concurrency on the key revision.
type NATSBackend struct {
	kv   kvStore
	conn *nats.Conn
	mu   sync.Mutex
}

// OpenNATS connects to url and binds the bucket, creating it if needed.
func OpenNATS(ctx context.Context, url, bucket string) (*NATSBackend, error) {
	if bucket == "" {
		bucket = historyKey
	}
	nc, err := nats.Connect(url, nats.Name("parallelcamd"))
	if err != nil {
		return nil, unavailable("connect nats", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, unavailable("open jetstream", err)
	}
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "parallel camera history mirror",
			History:     1,
		})
	}
	if err != nil {
		nc.Close()
		return nil, unavailable(fmt.Sprintf("bind bucket %s", bucket), err)
	}
	return &NATSBackend{kv: &jetStreamKV{kv: kv, key: historyKey}, conn: nc}, nil
}

func newNATSBackend(kv kvStore) *NATSBackend {
	return &NATSBackend{kv: kv}
}

func (b *NATSBackend) Name() string { return "nats" }

func (b *NATSBackend) List(ctx context.Context) ([]Entry, error) {
	entries, _, err := b.read(ctx)
	if err != nil {
		return nil, unavailable("list", err)
	}
	return entries, nil
}

func (b *NATSBackend) Prepend(ctx context.Context, e Entry, limit int) (int, error) {
	var count int
	err := b.modify(ctx, func(entries []Entry) ([]Entry, bool) {
		next := make([]Entry, 0, len(entries)+1)
		next = append(next, e)
		next = append(next, entries...)
		if limit > 0 && len(next) > limit {
			next = next[:limit]
		}
		count = len(next)
		return next, true
	})
	if err != nil {
		return 0, writeFailed("save", err)
	}
	return count, nil
}

func (b *NATSBackend) DeleteAt(ctx context.Context, index int) (int, error) {
	var count int
	err := b.modify(ctx, func(entries []Entry) ([]Entry, bool) {
		count = len(entries)
		if index < 0 || index >= len(entries) {
			return entries, false
		}
		next := append(entries[:index:index], entries[index+1:]...)
		count = len(next)
		return next, true
	})
	if err != nil {
		return 0, writeFailed("delete", err)
	}
	return count, nil
}

func (b *NATSBackend) DeleteByID(ctx context.Context, id string) (bool, error) {
	found := false
	err := b.modify(ctx, func(entries []Entry) ([]Entry, bool) {
		found = false
		for i := range entries {
			if entries[i].ID == id {
				found = true
				return append(entries[:i:i], entries[i+1:]...), true
			}
		}
		return entries, false
	})
	if err != nil {
		return false, writeFailed("delete", err)
	}
	return found, nil
}

func (b *NATSBackend) Ping(ctx context.Context) error {
	if err := b.kv.status(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (b *NATSBackend) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}

func (b *NATSBackend) read(ctx context.Context) ([]Entry, uint64, error) {
	raw, revision, err := b.kv.load(ctx)
	if err != nil {
		return nil, 0, err
	}
	if revision == 0 || len(raw) == 0 {
		return []Entry{}, revision, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", historyKey, err)
	}
	return entries, revision, nil
}

// modify applies fn to the current array and writes it back, retrying when
// another writer got there first. fn reports whether anything changed.
func (b *NATSBackend) modify(ctx context.Context, fn func([]Entry) ([]Entry, bool)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		entries, revision, err := b.read(ctx)
		if err != nil {
			return err
		}
		next, changed := fn(entries)
		if !changed {
			return nil
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		if revision == 0 {
			err = b.kv.create(ctx, payload)
		} else {
			err = b.kv.update(ctx, payload, revision)
		}
		if errors.Is(err, errRevisionConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w after %d attempts", errRevisionConflict, maxConflictRetries)
}

// jetStreamKV adapts a jetstream.KeyValue bucket to kvStore.
type jetStreamKV struct {
	kv  jetstream.KeyValue
	key string
}

func (j *jetStreamKV) load(ctx context.Context) ([]byte, uint64, error) {
	entry, err := j.kv.Get(ctx, j.key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return entry.Value(), entry.Revision(), nil
}

func (j *jetStreamKV) create(ctx context.Context, value []byte) error {
	_, err := j.kv.Create(ctx, j.key, value)
	return j.conflict(err)
}

func (j *jetStreamKV) update(ctx context.Context, value []byte, revision uint64) error {
	_, err := j.kv.Update(ctx, j.key, value, revision)
	return j.conflict(err)
}

func (j *jetStreamKV) status(ctx context.Context) error {
	_, err := j.kv.Status(ctx)
	return err
}

func (j *jetStreamKV) conflict(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return errRevisionConflict
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return errRevisionConflict
	}
	return err
}
