package game

import (
	"crypto/rand"
	"math/big"
)

const DiceSides = 6

// Randomizer supplies dice rolls and deck draws. Tests inject a scripted one.
type Randomizer interface {
	// Roll returns two dice values in 1..6.
	Roll() (int, int)
	// Intn returns a value in [0, n).
	Intn(n int) int
}

// CryptoRandomizer rolls with crypto/rand.
type CryptoRandomizer struct{}

func (CryptoRandomizer) Roll() (int, int) {
	return rollDie(), rollDie()
}

func (CryptoRandomizer) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func rollDie() int {
	n, err := rand.Int(rand.Reader, big.NewInt(DiceSides))
	if err != nil {
		// Fallback - should never happen
		n = big.NewInt(0)
	}
	return int(n.Int64()) + 1
}
