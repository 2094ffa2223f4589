package flatten

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"time"

	"github.com/veilc/veil/obf/ir"
)

type (
	IndexPolicy int
)

const (
	// UniqueIndices redraws on collision so every dispatchable block
	// gets a distinct case value.
	UniqueIndices IndexPolicy = iota

	// IndependentIndices draws every value independently and keeps
	// collisions. Colliding blocks then share a case value and the
	// dispatcher routes both to the first matching case.
	IndependentIndices
)

func (fl *Flattener) assign(rnd *mathrand.Rand, disp []*ir.Block) map[*ir.Block]uint32 {
	idx := make(map[*ir.Block]uint32, len(disp))

	var seen map[uint32]struct{}
	if fl.Indices == UniqueIndices {
		seen = make(map[uint32]struct{}, len(disp))
	}

	for _, b := range disp {
		v := rnd.Uint32()

		if seen != nil {
			for {
				if _, ok := seen[v]; !ok {
					break
				}

				v = rnd.Uint32()
			}

			seen[v] = struct{}{}
		}

		idx[b] = v
	}

	return idx
}

func shuffled(rnd *mathrand.Rand, disp []*ir.Block) []*ir.Block {
	perm := make([]*ir.Block, len(disp))
	copy(perm, disp)

	rnd.Shuffle(len(perm), func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	return perm
}

func entropySeed() int64 {
	var b [8]byte

	_, err := cryptorand.Read(b[:])
	if err != nil {
		return time.Now().UnixNano()
	}

	return int64(binary.LittleEndian.Uint64(b[:]))
}
