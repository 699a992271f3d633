package tokenmanager

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// stateAlphabet is the character set for generated state values.
const stateAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateState returns a random anti-forgery state of exactly length characters
// from a–z and 0–9. Each character is drawn independently from crypto/rand.
// The result is not persisted; call SetState to store it.
func GenerateState(length int) (string, error) {
	return generateState(rand.Reader, length)
}

// GenerateState is GenerateState using the Manager's random source.
func (m *Manager) GenerateState(length int) (string, error) {
	return generateState(m.random, length)
}

func generateState(random io.Reader, length int) (string, error) {
	if length < 0 {
		return "", fmt.Errorf("state length must not be negative: %d", length)
	}

	// rand.Int rejects out-of-range samples, so every symbol is equally likely
	alphabetLen := big.NewInt(int64(len(stateAlphabet)))
	state := make([]byte, length)
	for i := range state {
		n, err := rand.Int(random, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("reading random source: %w", err)
		}
		state[i] = stateAlphabet[n.Int64()]
	}
	return string(state), nil
}
