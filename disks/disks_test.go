package disks_test

import (
	"testing"

	"github.com/hyperfat/myfatfs/disks"
	"github.com/hyperfat/myfatfs/myfat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPredefinedImageProfile(t *testing.T) {
	profile, err := disks.GetPredefinedImageProfile("min")
	require.NoError(t, err)
	assert.EqualValues(t, 1<<20, profile.TotalSizeBytes)
	assert.EqualValues(t, 1024, profile.BlockSize)
}

func TestGetPredefinedImageProfileUnknown(t *testing.T) {
	_, err := disks.GetPredefinedImageProfile("no-such-profile")
	assert.Error(t, err)
}

// Every shipped profile must describe a formattable volume.
func TestAllProfilesHaveValidGeometry(t *testing.T) {
	profiles := disks.ListPredefinedImageProfiles()
	require.NotEmpty(t, profiles)

	for _, profile := range profiles {
		_, err := myfat.ComputeGeometry(profile.TotalSizeBytes, profile.BlockSize)
		assert.NoErrorf(t, err, "profile %q has invalid geometry", profile.Slug)
	}
}
