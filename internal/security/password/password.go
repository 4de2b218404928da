package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const MinLength = 8

var (
	ErrTooShort = fmt.Errorf("password must be at least %d characters", MinLength)
	ErrMismatch = errors.New("password mismatch")
)

type Hasher struct {
	cost int
}

// New returns a Hasher using cost, or bcrypt.DefaultCost when cost is zero.
func New(cost int) *Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) < MinLength {
		return "", ErrTooShort
	}
	raw, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(raw), nil
}

func (h *Hasher) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
