package hash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const MinCost = 12

// dummyDigest is compared against when the account does not exist so the
// failed lookup costs one bcrypt verification like every other failure.
var dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("school-mis-dummy-password"), MinCost)

type Hasher struct {
	cost int
}

// NewHasher never goes below MinCost.
func NewHasher(cost int) *Hasher {
	if cost < MinCost {
		cost = MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// NewHasherWithCost accepts any valid bcrypt cost. Intended for tests.
func NewHasherWithCost(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Cost() int { return h.cost }

func (h *Hasher) Hash(password string) (string, error) {
	hashbytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashbytes), nil
}

func (h *Hasher) Verify(password, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

func (h *Hasher) Dummy(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyDigest, []byte(password))
}
