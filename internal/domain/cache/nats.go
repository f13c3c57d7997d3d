package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"odiadev-tts-server-go/internal/domain/audio"
)

const (
	natsMetaFormat    = "format"
	natsMetaCreatedAt = "created_at"
)

type NATSConfig struct {
	URL    string
	Bucket string
	TTL    time.Duration
}

// NATSStore keeps renderings in a JetStream object store bucket. The bucket
// TTL matches the cache TTL so the server expires old audio itself.
type NATSStore struct {
	conn   *nats.Conn
	owned  bool
	bucket string
	store  nats.ObjectStore
}

// NewNATSStore connects to cfg.URL and binds the bucket.
func NewNATSStore(cfg NATSConfig) (*NATSStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required")
	}
	conn, err := nats.Connect(cfg.URL, nats.Name("odiadev-tts-cache"))
	if err != nil {
		return nil, fmt.Errorf("nats connect failed: %w", err)
	}
	s, err := NewNATSStoreFromConn(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewNATSStoreFromConn binds the bucket on an existing connection, creating
// it on first use.
func NewNATSStoreFromConn(conn *nats.Conn, cfg NATSConfig) (*NATSStore, error) {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "tts-audio"
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Rendered speech audio keyed by request fingerprint.",
		TTL:         cfg.TTL,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucket, err)
		}
	}

	return &NATSStore{conn: conn, bucket: bucket, store: store}, nil
}

func (s *NATSStore) Name() string { return StoreNATS }

func (s *NATSStore) Load(ctx context.Context, fp Fingerprint) (StoredAudio, error) {
	obj, err := s.store.Get(string(fp), nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return StoredAudio{}, ErrNotFound
		}
		return StoredAudio{}, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", fp.Short(), s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return StoredAudio{}, fmt.Errorf("failed to read object '%s': %w", fp.Short(), readErr)
	}
	if closeErr != nil {
		return StoredAudio{}, fmt.Errorf("failed to close object '%s': %w", fp.Short(), closeErr)
	}

	info, err := obj.Info()
	if err != nil {
		return StoredAudio{}, fmt.Errorf("failed to read object info '%s': %w", fp.Short(), err)
	}
	createdAt := info.ModTime
	if raw, ok := info.Metadata[natsMetaCreatedAt]; ok {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			createdAt = parsed
		}
	}
	return StoredAudio{
		Fingerprint: fp,
		Audio:       data,
		Format:      audio.Format(info.Metadata[natsMetaFormat]),
		CreatedAt:   createdAt,
	}, nil
}

// Save ignores ttl; the bucket's TTL applies to every object.
func (s *NATSStore) Save(ctx context.Context, item StoredAudio, _ time.Duration) error {
	_, err := s.store.Put(&nats.ObjectMeta{
		Name: string(item.Fingerprint),
		Metadata: map[string]string{
			natsMetaFormat:    string(item.Format),
			natsMetaCreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}, bytes.NewReader(item.Audio), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", item.Fingerprint.Short(), s.bucket, err)
	}
	return nil
}

func (s *NATSStore) Delete(_ context.Context, fp Fingerprint) error {
	err := s.store.Delete(string(fp))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *NATSStore) Stats(context.Context) (map[string]any, error) {
	status, err := s.store.Status()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":   StoreNATS,
		"bucket": s.bucket,
		"bytes":  status.Size(),
		"ttl":    status.TTL().String(),
	}, nil
}

func (s *NATSStore) Close(context.Context) error {
	if s.owned {
		s.conn.Close()
	}
	return nil
}
