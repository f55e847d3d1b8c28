package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "staging":
		prefix = "staging"
	case "test":
		prefix = "test"
	}

	return &KeyBuilder{prefix: prefix}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("mivoto:%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

func (kb *KeyBuilder) KeyBallotsAll() string {
	return kb.BuildKey(KeyBallotsAll)
}

func (kb *KeyBuilder) KeyBallotByID(ballotID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyBallotByID, ballotID))
}

func (kb *KeyBuilder) KeyTally(ballotID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyTally, ballotID))
}

func (kb *KeyBuilder) KeyResult(ballotID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyResult, ballotID))
}

func (kb *KeyBuilder) KeyCastLock(tokenHash string) string {
	return kb.BuildKey(fmt.Sprintf(KeyCastLock, tokenHash))
}
