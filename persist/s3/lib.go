// Package s3 stores mapping snapshots as objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/golang-lru/simplelru"
)

// S3Interface is the part of the S3 client Persist uses.
type S3Interface interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// Persist implements the mapping.Persist interface for storing and loading
// snapshots as S3 objects. Snapshot names are content addresses, so names
// already seen are not stored again.
type Persist struct {
	s3         S3Interface
	BucketName string
	Prefix     string

	l    sync.Mutex
	seen *simplelru.LRU
}

// Load loads the bytes persisted in the named object.
func (p *Persist) Load(ctx context.Context, name string) ([]byte, error) {
	input := s3.GetObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
	}
	output, err := p.s3.GetObjectWithContext(ctx, &input)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	defer output.Body.Close()
	b, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	p.markSeen(name)
	return b, nil
}

// Store persists the given bytes in an object of the given name, if it
// wasn't stored or loaded recently.
func (p *Persist) Store(ctx context.Context, name string, b []byte) error {
	p.l.Lock()
	_, present := p.seen.Get(name)
	p.l.Unlock()
	if present {
		return nil
	}
	input := s3.PutObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
		Body:   bytes.NewReader(b),
	}
	_, err := p.s3.PutObjectWithContext(ctx, &input)
	if err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	p.markSeen(name)
	return nil
}

func (p *Persist) markSeen(name string) {
	p.l.Lock()
	p.seen.Add(name, nil)
	p.l.Unlock()
}

// NewPersist returns a Persist that loads and stores snapshots as objects
// with the given S3 client, bucket name and key prefix.
func NewPersist(client S3Interface, bucketName, prefix string) *Persist {
	seen, err := simplelru.NewLRU(1000, nil)
	if err != nil {
		panic(err)
	}
	return &Persist{s3: client, BucketName: bucketName, Prefix: prefix, seen: seen}
}
