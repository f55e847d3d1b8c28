package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrMalformed is returned when a credential cannot be opened
var ErrMalformed = errors.New("malformed credential")

const keyInfo = "mivoto/credential/v1"

// Payload is the content sealed inside a credential
type Payload struct {
	Secret    string
	Salt      []byte
	ExpiresAt time.Time
}

type envelope struct {
	Token      string `json:"token"`
	Salt       string `json:"salt"`
	ExpSeconds int64  `json:"exp"`
	ExpNanos   int32  `json:"expNanos"`
}

// Codec seals and opens credentials with an authenticated cipher so that a
// client cannot alter the expiry or salt it carries
type Codec struct {
	aead interface {
		NonceSize() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	random io.Reader
}

// NewCodec derives the sealing key from secret
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("credential secret is required")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive credential key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential cipher: %w", err)
	}

	return &Codec{aead: aead, random: rand.Reader}, nil
}

// Seal encodes the payload into an opaque URL-safe token
func (c *Codec) Seal(p Payload) (string, error) {
	plaintext, err := json.Marshal(envelope{
		Token:      p.Secret,
		Salt:       base64.RawURLEncoding.EncodeToString(p.Salt),
		ExpSeconds: p.ExpiresAt.Unix(),
		ExpNanos:   int32(p.ExpiresAt.Nanosecond()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode credential: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Expiry is not checked here.
func (c *Codec) Open(token string) (Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) <= nonceSize {
		return Payload{}, ErrMalformed
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return Payload{}, ErrMalformed
	}
	if env.Token == "" || env.ExpNanos < 0 || env.ExpNanos >= int32(time.Second) {
		return Payload{}, ErrMalformed
	}

	salt, err := base64.RawURLEncoding.DecodeString(env.Salt)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	return Payload{
		Secret:    env.Token,
		Salt:      salt,
		ExpiresAt: time.Unix(env.ExpSeconds, int64(env.ExpNanos)).UTC(),
	}, nil
}

// Encode seals a raw secret, its salt and expiry
func (c *Codec) Encode(rawSecret string, salt []byte, expiresAt time.Time) (string, error) {
	return c.Seal(Payload{Secret: rawSecret, Salt: salt, ExpiresAt: expiresAt})
}

// Decode opens a token produced by Encode
func (c *Codec) Decode(token string) (string, []byte, time.Time, error) {
	p, err := c.Open(token)
	if err != nil {
		return "", nil, time.Time{}, err
	}
	return p.Secret, p.Salt, p.ExpiresAt, nil
}
