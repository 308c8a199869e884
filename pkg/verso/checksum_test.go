package verso_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-archive/verso/pkg/verso"
)

func TestDigest(t *testing.T) {
	assert.Equal(t, verso.Digest([]byte("hello")), verso.Digest([]byte("hello")))
	assert.NotEqual(t, verso.Digest([]byte("hello")), verso.Digest([]byte("hello!")))

	// sha256 of "hello", hex encoded
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		verso.Digest([]byte("hello")))
}

func TestDigestReader(t *testing.T) {
	content := "some longer content that crosses a few reads"

	dr := verso.NewDigestReader(strings.NewReader(content))

	buf := make([]byte, 8)
	total := 0
	for {
		n, err := dr.Read(buf)
		total += n
		if err != nil {
			break
		}
	}

	require.Equal(t, len(content), total)
	assert.Equal(t, int64(len(content)), dr.Size())
	assert.Equal(t, verso.Digest([]byte(content)), dr.Checksum())
}
