package paint

import (
	"encoding/binary"
	"math/rand/v2"

	"golang.org/x/crypto/chacha20"
)

// keystream is a rand.Source reading a ChaCha20 keystream keyed by the seed.
type keystream struct {
	cipher *chacha20.Cipher
	buf    [8]byte
}

func newKeystream(seed uint64) *keystream {
	var key [chacha20.KeySize]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		// key and nonce sizes are fixed above
		panic(err)
	}
	return &keystream{cipher: c}
}

func (k *keystream) Uint64() uint64 {
	clear(k.buf[:])
	k.cipher.XORKeyStream(k.buf[:], k.buf[:])
	return binary.LittleEndian.Uint64(k.buf[:])
}

// Gen builds the board for a seed. Equal seeds give equal boards.
func Gen(seed uint64) *Input {
	rng := rand.New(newKeystream(seed))
	n, k := MaxN, MaxK
	grid := make([][]int, n)
	for y := range grid {
		grid[y] = make([]int, n)
		for x := range grid[y] {
			grid[y][x] = rng.IntN(k) + 1
		}
	}
	return &Input{ID: seed, N: n, K: k, Grid: grid}
}
