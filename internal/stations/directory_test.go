package stations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectorySeedLookup(t *testing.T) {
	dir := NewDirectory()

	assert.Equal(t, "London Kings Cross", dir.Name("KGX"))
	assert.Equal(t, "London Kings Cross", dir.Name("kgx"))
	assert.Equal(t, "", dir.Name("ZZZ"))
	assert.Greater(t, dir.Count(), 0)
}

func TestDirectoryNilSafe(t *testing.T) {
	var dir *Directory

	assert.NotPanics(t, func() {
		assert.Equal(t, "", dir.Name("KGX"))
		assert.Equal(t, 0, dir.Count())
		dir.Close()
	})
}
