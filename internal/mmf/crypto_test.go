package mmf_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lochside/mmfparse/internal/mmf"
)

func TestKey_RoundTrip(t *testing.T) {
	keys := []*mmf.Key{
		mmf.DeriveKey("A", "C", "", mmf.ProductMMF2, false, mmf.Dialect288),
		mmf.DeriveKey("My Game", "© Studio", "C:\\проект.mfa", mmf.ProductMMF2, true, mmf.Dialect288),
		mmf.DeriveKey("", "", "", mmf.ProductMMF15, false, mmf.DialectOld),
		mmf.DeriveKey("long title ", "long copyright ", "long project path ", mmf.ProductMMF2, false, mmf.Dialect284),
	}
	payloads := [][]byte{
		{},
		{0x00},
		[]byte("world"),
		bytes.Repeat([]byte{0xAA, 0x55}, 4096),
	}

	for _, key := range keys {
		for _, plain := range payloads {
			enc := key.XOR(plain)
			dec := key.XOR(enc)
			require.Equal(t, plain, dec, "transform must be symmetric")
		}
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := mmf.DeriveKey("Title", "Copyright", "Project", mmf.ProductMMF2, false, mmf.Dialect288)
	b := mmf.DeriveKey("Title", "Copyright", "Project", mmf.ProductMMF2, false, mmf.Dialect288)

	data := []byte("the same bytes every time")
	assert.Equal(t, a.XOR(data), b.XOR(data))
	assert.Equal(t, a.Salt(), b.Salt())
}

func TestKey_InputsChangeKeystream(t *testing.T) {
	base := mmf.DeriveKey("Title", "Copyright", "Project", mmf.ProductMMF2, false, mmf.Dialect288)
	variants := []*mmf.Key{
		mmf.DeriveKey("Title2", "Copyright", "Project", mmf.ProductMMF2, false, mmf.Dialect288),
		mmf.DeriveKey("Title", "Copyright2", "Project", mmf.ProductMMF2, false, mmf.Dialect288),
		mmf.DeriveKey("Title", "Copyright", "Project2", mmf.ProductMMF2, false, mmf.Dialect288),
		mmf.DeriveKey("Title", "Copyright", "Project", mmf.ProductMMF15, false, mmf.Dialect288),
		// Width changes the transcoding of the same strings.
		mmf.DeriveKey("Title", "Copyright", "Project", mmf.ProductMMF2, true, mmf.Dialect288),
	}

	data := bytes.Repeat([]byte{0x00}, 64)
	for i, v := range variants {
		assert.NotEqual(t, base.XOR(data), v.XOR(data), "variant %d should diverge", i)
	}
}

func TestKey_SaltPerDialect(t *testing.T) {
	salts := map[byte]mmf.Dialect{}
	for _, d := range []mmf.Dialect{mmf.DialectOld, mmf.Dialect284, mmf.Dialect288} {
		k := mmf.DeriveKey("T", "C", "P", mmf.ProductMMF2, false, d)
		salts[k.Salt()] = d
	}
	assert.Len(t, salts, 3, "each dialect derives its own salt")
}
