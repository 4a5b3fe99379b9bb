package mmf

import "hash/fnv"

// Key holds the expanded cipher state for one game: a 256-byte S-box
// built from the game's identity strings and the single salt byte mixed
// into every per-chunk transform.
//
// Key material is the concatenation of the title, copyright and project
// strings (in that order), transcoded to narrow bytes or UTF-16LE code
// units depending on the game's string width, with the product code
// appended as a final byte. The schedule is built once per game and
// reused for every decrypt call.
type Key struct {
	table [256]byte
	salt  byte
}

// magicTable seeds the salt derivation per dialect. The 2.84 and 2.88
// values come from the runtimes themselves; old games share the legacy
// seed.
var magicTable = map[Dialect]byte{
	DialectOld: 0x63,
	Dialect284: 0x54,
	Dialect288: 0x36,
}

// DeriveKey builds the cipher key for a game. It must be called exactly
// once, as soon as the three identity strings and the product code are
// known; every entry decoded before that point is guaranteed by the
// format to be unencrypted.
func DeriveKey(title, copyright, project string, product ProductCode, wide bool, dialect Dialect) *Key {
	material := make([]byte, 0, 256)
	for _, s := range []string{title, copyright, project} {
		if wide {
			material = append(material, EncodeWide(s)...)
		} else {
			material = append(material, EncodeNarrow(s)...)
		}
	}
	material = append(material, byte(product))
	if len(material) > 256 {
		material = material[:256]
	}

	k := &Key{salt: deriveSalt(product, dialect)}

	// Standard key schedule over the material.
	for i := range k.table {
		k.table[i] = byte(i)
	}
	j := 0
	for i := 0; i < 256; i++ {
		j = (j + int(k.table[i]) + int(material[i%len(material)])) & 0xFF
		k.table[i], k.table[j] = k.table[j], k.table[i]
	}

	return k
}

// deriveSalt mixes the product code with the dialect seed through a
// secondary hash and keeps the first byte.
func deriveSalt(product ProductCode, dialect Dialect) byte {
	h := fnv.New32a()
	h.Write([]byte{magicTable[dialect], byte(product), byte(product >> 8)})
	return byte(h.Sum32())
}

// Salt returns the per-game magic byte.
func (k *Key) Salt() byte { return k.salt }

// XOR runs the keystream transform over a copy of data. The transform
// is symmetric: applying it twice with the same key yields the input.
func (k *Key) XOR(data []byte) []byte {
	out := make([]byte, len(data))

	// Work over a copy of the S-box; the schedule itself is immutable
	// so concurrent decodes of distinct entries stay deterministic.
	var s [256]byte
	copy(s[:], k.table[:])

	i, j := 0, int(k.salt)
	for n := range data {
		i = (i + 1) & 0xFF
		j = (j + int(s[i])) & 0xFF
		s[i], s[j] = s[j], s[i]
		out[n] = data[n] ^ s[(int(s[i])+int(s[j]))&0xFF]
	}
	return out
}
