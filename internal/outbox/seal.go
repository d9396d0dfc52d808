package outbox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/boda/internal/logging"
)

// ErrSealedPayload is returned when a stored payload is encrypted and the
// repository has no Sealer to open it.
var ErrSealedPayload = errors.New("outbox payload is sealed and no key is configured")

// sealedPrefix marks encrypted rows so plain rows written before a key
// was configured stay readable.
const sealedPrefix = "sealed:v1:"

// Sealer encrypts payload bytes before they are written.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(data []byte) ([]byte, error)
}

// Option configures a SQLRepository.
type Option func(*SQLRepository)

// WithLogger sets the logger used for skipped rows.
func WithLogger(l logging.Logger) Option {
	return func(r *SQLRepository) { r.logger = l.With("module", "outbox") }
}

// WithSealer stores payloads encrypted by s.
func WithSealer(s Sealer) Option {
	return func(r *SQLRepository) { r.sealer = s }
}

func (r *SQLRepository) encode(data []byte) (string, error) {
	if r.sealer == nil {
		return string(data), nil
	}
	sealed, err := r.sealer.Seal(data)
	if err != nil {
		return "", fmt.Errorf("seal payload: %w", err)
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (r *SQLRepository) decode(raw []byte) ([]byte, error) {
	rest, ok := bytes.CutPrefix(raw, []byte(sealedPrefix))
	if !ok {
		return raw, nil
	}
	if r.sealer == nil {
		return nil, ErrSealedPayload
	}
	sealed, err := base64.StdEncoding.DecodeString(string(rest))
	if err != nil {
		return nil, fmt.Errorf("decode sealed payload: %w", err)
	}
	return r.sealer.Open(sealed)
}
