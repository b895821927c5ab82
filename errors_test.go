package myfatfs_test

import (
	"errors"
	"testing"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/stretchr/testify/assert"
)

func TestErrorWithMessage(t *testing.T) {
	newErr := myfatfs.ErrNotFound.WithMessage("asdfqwerty")
	assert.Equal(
		t, "No such file or directory: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, myfatfs.ErrNotFound)
}

func TestErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := myfatfs.ErrExists.Wrap(originalErr)
	expectedMessage := "File exists: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, myfatfs.ErrExists, "sentinel not set as parent")
}

func TestErrorPlain(t *testing.T) {
	assert.EqualValues(t, "No space left on device", myfatfs.ErrNoSpaceOnDevice.Error())
	assert.NotErrorIs(t, myfatfs.ErrNoSpaceOnDevice, myfatfs.ErrFileTooLarge)
}
