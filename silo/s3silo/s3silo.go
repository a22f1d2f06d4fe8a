// Package s3silo adapts an S3-compatible bucket to silo.Silo. The actual
// object-storage back-end (the bucket, its credentials, its SDK client) is
// explicitly out of scope for the storage core (spec §2: "Local disk object
// storage back-ends ... The core consumes a narrow silo interface") — this
// package defines only that narrow adapter over a Client an embedder
// supplies, not a full AWS/S3 SDK integration.
package s3silo

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/silo"
)

// Client is the narrow surface an S3-compatible bucket must offer; embedders
// implement it against whatever SDK (AWS, MinIO, GCS-via-S3-shim, ...) they
// already use.
type Client interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	PutObject(ctx context.Context, key string, body []byte) error
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context) iter.Seq2[string, error]
	HeadObject(ctx context.Context, key string) (exists bool, size int64, err error)
}

// Config names the bucket, region and storage class (§6.4).
type Config struct {
	Endpoint     string
	Bucket       string
	Region       string
	StorageClass string
	Capacity     int64
}

// S3Silo is a Client-backed silo.
type S3Silo struct {
	client   Client
	cfg      Config
	notifier silo.Notifier
}

func New(client Client, cfg Config) *S3Silo { return &S3Silo{client: client, cfg: cfg} }

func key(addr address.Address) string { return addr.String() }

func (s *S3Silo) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	r, err := s.client.GetObject(ctx, key(addr))
	if err != nil {
		return nil, translateNotFound(err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *S3Silo) Set(ctx context.Context, addr address.Address, data []byte, insert, update bool) (int64, error) {
	exists, existingSize, err := s.client.HeadObject(ctx, key(addr))
	if err != nil {
		return 0, err
	}
	if insert && exists {
		return 0, silo.ErrCollision
	}
	if update && !exists {
		return 0, silo.ErrMissing
	}
	if err := s.client.PutObject(ctx, key(addr), data); err != nil {
		return 0, err
	}
	if s.notifier != nil {
		s.notifier(addr, true)
	}
	return int64(len(data)) - existingSize, nil
}

func (s *S3Silo) Erase(ctx context.Context, addr address.Address) error {
	exists, _, err := s.client.HeadObject(ctx, key(addr))
	if err != nil {
		return err
	}
	if !exists {
		return silo.ErrMissing
	}
	if err := s.client.DeleteObject(ctx, key(addr)); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier(addr, true)
	}
	return nil
}

func (s *S3Silo) List(ctx context.Context) iter.Seq2[address.Address, error] {
	return func(yield func(address.Address, error) bool) {
		for k, err := range s.client.ListObjects(ctx) {
			if err != nil {
				if !yield(address.Address{}, err) {
					return
				}
				continue
			}
			var a address.Address
			if uerr := a.UnmarshalText([]byte(k)); uerr != nil {
				continue
			}
			if !yield(a, nil) {
				return
			}
		}
	}
}

func (s *S3Silo) Status(ctx context.Context, addr address.Address) (silo.Status, error) {
	exists, _, err := s.client.HeadObject(ctx, key(addr))
	if err != nil {
		return silo.StatusUnknown, err
	}
	if exists {
		return silo.StatusPresent, nil
	}
	return silo.StatusMissing, nil
}

func (s *S3Silo) Usage(ctx context.Context) (int64, error) {
	var total int64
	for k, err := range s.client.ListObjects(ctx) {
		if err != nil {
			return 0, err
		}
		var a address.Address
		if a.UnmarshalText([]byte(k)) != nil {
			continue
		}
		if _, size, err := s.client.HeadObject(ctx, k); err == nil {
			total += size
		}
	}
	return total, nil
}

func (s *S3Silo) Capacity(context.Context) (int64, error) { return s.cfg.Capacity, nil }

func (s *S3Silo) OnChange(n silo.Notifier) { s.notifier = n }

func translateNotFound(err error) error {
	var nf interface{ NotFound() bool }
	if errors.As(err, &nf) && nf.NotFound() {
		return silo.ErrMissing
	}
	return err
}
