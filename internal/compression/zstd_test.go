package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	c, err := NewCompressor(2, true)
	require.NoError(t, err)
	defer c.Close()

	data := bytes.Repeat([]byte(`{"name":"file","hash":"02d92c580d4ede6c80a878bdd9f3142d8f757be8"},`), 64)
	compressed := c.Compress(data)
	assert.True(t, IsCompressed(compressed))
	assert.Less(t, len(compressed), len(data))

	out, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestCompressSmallPassthrough(t *testing.T) {
	c, err := NewCompressor(1, true)
	require.NoError(t, err)
	defer c.Close()

	data := []byte(`[]`)
	assert.Equal(t, data, c.Compress(data))

	out, err := c.Decompress(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDisabledCompressorStillDecodes(t *testing.T) {
	enabled, err := NewCompressor(3, true)
	require.NoError(t, err)
	defer enabled.Close()
	disabled, err := NewCompressor(0, false)
	require.NoError(t, err)
	defer disabled.Close()

	data := bytes.Repeat([]byte("abcdefgh"), 100)
	assert.Equal(t, data, disabled.Compress(data))

	out, err := disabled.Decompress(enabled.Compress(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDecompressCorrupt(t *testing.T) {
	c, err := NewCompressor(2, true)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decompress(append(append([]byte{}, magic...), 0xff, 0xff, 0xff))
	assert.Error(t, err)
}
