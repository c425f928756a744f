package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	errWrite = errors.New("disk full")
	errClose = errors.New("bad descriptor")
)

type brokenFile struct {
	closes int
}

func (f *brokenFile) Write([]byte) (int, error) { return 0, errWrite }

func (f *brokenFile) Close() error {
	f.closes++
	return errClose
}

func TestCloseReleasesFileWhenFinishFails(t *testing.T) {
	f := &brokenFile{}
	w := newFileWriter(f)

	err := w.Close()
	assert.ErrorIs(t, err, errWrite)
	assert.ErrorIs(t, err, errClose)
	assert.Equal(t, 1, f.closes)

	assert.NoError(t, w.Close())
	assert.Equal(t, 1, f.closes, "second Close is a no-op")
}
