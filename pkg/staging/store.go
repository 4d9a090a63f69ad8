// Package staging holds parsed uploads between the upload request and the
// mapping request. Datasets are keyed by (session, dataset kind) and
// addressed by an opaque handle.
package staging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
)

// Store persists parsed datasets for a short time.
type Store interface {
	// Put stores ds and returns its handle, replacing any dataset already
	// staged for the same session and kind.
	Put(ctx context.Context, sessionID string, kind models.DatasetKind, ds *models.ParsedDataset) (string, error)
	// Get returns the dataset for handle, or apperrors.ErrNotFound when the
	// handle is stale, deleted, malformed or never existed.
	Get(ctx context.Context, handle string) (*models.ParsedDataset, error)
	// Delete removes the dataset. Deleting a missing handle is not an error.
	Delete(ctx context.Context, handle string) error
	// Sweep removes datasets staged more than maxAge ago and returns how many were removed.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// envelope is the persisted form of a staged dataset.
type envelope struct {
	Kind     models.DatasetKind    `json:"kind"`
	StagedAt time.Time             `json:"staged_at"`
	Dataset  *models.ParsedDataset `json:"dataset"`
}

var handlePattern = regexp.MustCompile(`^[0-9a-f]{16}\.[a-z]+\.[0-9a-f]{32}$`)

// sessionDigest namespaces keys by session without putting the raw session id on disk or in Redis.
func sessionDigest(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:8])
}

// keyPrefix is the handle prefix shared by every dataset of (session, kind).
func keyPrefix(sessionID string, kind models.DatasetKind) string {
	return sessionDigest(sessionID) + "." + string(kind) + "."
}

func newHandle(sessionID string, kind models.DatasetKind) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	return keyPrefix(sessionID, kind) + nonce
}

func validHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}

func checkPut(sessionID string, kind models.DatasetKind, ds *models.ParsedDataset) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidDatasetKind, kind)
	}
	if ds == nil {
		return fmt.Errorf("dataset is required")
	}
	return nil
}

func notFound(handle string) error {
	return fmt.Errorf("staged dataset %q: %w", handle, apperrors.ErrNotFound)
}

// Sealer encrypts persisted payloads. *crypto.Sealer implements it.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Option configures a Store.
type Option func(*codec)

// WithSealer encrypts every staged dataset at rest.
func WithSealer(sealer Sealer) Option {
	return func(c *codec) { c.sealer = sealer }
}

// codec converts envelopes to and from their persisted bytes.
type codec struct {
	sealer Sealer
}

func newCodec(opts []Option) codec {
	var c codec
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c codec) encode(env *envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode staged dataset: %w", err)
	}
	if c.sealer == nil {
		return payload, nil
	}
	sealed, err := c.sealer.Seal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to seal staged dataset: %w", err)
	}
	return sealed, nil
}

func (c codec) decode(data []byte) (*envelope, error) {
	if c.sealer != nil {
		opened, err := c.sealer.Open(data)
		if err != nil {
			return nil, fmt.Errorf("failed to open staged dataset: %w", err)
		}
		data = opened
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode staged dataset: %w", err)
	}
	return &env, nil
}
