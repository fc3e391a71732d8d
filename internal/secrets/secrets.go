// Package secrets resolves secret references used for descriptor passwords.
//
// A value of the form secret:ALIAS is read from the environment variable
// REGD_SECRET_ALIAS. A value of the form enc:<base64> is decrypted with the
// configured key using XChaCha20-Poly1305. Any other value is returned as is.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/zjrosen/regd/internal/log"
)

const (
	AliasPrefix     = "secret:"
	EncryptedPrefix = "enc:"
	EnvPrefix       = "REGD_SECRET_"
)

var (
	ErrNoKey         = errors.New("no secret key configured")
	ErrUnknownAlias  = errors.New("secret alias not set")
	ErrMalformed     = errors.New("malformed encrypted secret")
	ErrDecryptFailed = errors.New("secret decryption failed")
)

// hkdfInfo binds derived keys to this use.
var hkdfInfo = []byte("regd descriptor secrets v1")

// Resolver resolves secret references.
type Resolver struct {
	key       []byte
	lookupEnv func(string) (string, bool)
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithEnv replaces the environment lookup.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(r *Resolver) {
		if lookup != nil {
			r.lookupEnv = lookup
		}
	}
}

// NewResolver creates a resolver. key may be empty when no encrypted
// values are used.
func NewResolver(key string, opts ...Option) (*Resolver, error) {
	r := &Resolver{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(r)
	}
	if key != "" {
		k, err := deriveKey(key)
		if err != nil {
			return nil, err
		}
		r.key = k
	}
	return r, nil
}

// deriveKey stretches the configured key material to a cipher key.
func deriveKey(material string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(material), nil, hkdfInfo)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("could not derive secret key: %w", err)
	}
	return key, nil
}

// IsReference reports whether value needs resolving.
func IsReference(value string) bool {
	return strings.HasPrefix(value, AliasPrefix) || strings.HasPrefix(value, EncryptedPrefix)
}

// Resolve returns the plain value of ref. It has the signature of
// descriptor.SecretResolver.
func (r *Resolver) Resolve(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, AliasPrefix):
		alias := strings.TrimPrefix(ref, AliasPrefix)
		name := EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(alias))
		v, ok := r.lookupEnv(name)
		if !ok {
			log.Warn(log.CatSecret, "secret alias not set", "alias", alias, "env", name)
			return "", fmt.Errorf("%w: %s (set %s)", ErrUnknownAlias, alias, name)
		}
		return v, nil
	case strings.HasPrefix(ref, EncryptedPrefix):
		return r.decrypt(strings.TrimPrefix(ref, EncryptedPrefix))
	default:
		return ref, nil
	}
}

func (r *Resolver) decrypt(encoded string) (string, error) {
	if r.key == nil {
		return "", ErrNoKey
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", fmt.Errorf("%w: too short", ErrMalformed)
	}

	aead, err := chacha20poly1305.NewX(r.key)
	if err != nil {
		return "", err
	}
	nonce, sealed := data[:chacha20poly1305.NonceSizeX], data[chacha20poly1305.NonceSizeX:]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}

// Encrypt returns an enc: reference for plaintext.
func (r *Resolver) Encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", ErrNoKey
	}
	aead, err := chacha20poly1305.NewX(r.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("could not generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// GenerateKey creates random key material suitable for the secret key
// setting.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
