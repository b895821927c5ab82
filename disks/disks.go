// Package disks holds a small table of predefined image profiles so users
// can format a volume by name instead of spelling out sizes.
package disks

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

// ImageProfile is one predefined format configuration.
type ImageProfile struct {
	Name string `csv:"name"`
	Slug string `csv:"slug"`
	// TotalSizeBytes gives the size of the image file the profile produces.
	TotalSizeBytes int64 `csv:"total_size_bytes"`
	// BlockSize gives the bytes-per-block constant the profile formats with.
	BlockSize uint   `csv:"block_size"`
	Notes     string `csv:"notes"`
}

//go:embed image-profiles.csv
var imageProfilesRawCSV string
var imageProfiles = make(map[string]ImageProfile)

// GetPredefinedImageProfile looks a profile up by its slug.
func GetPredefinedImageProfile(slug string) (ImageProfile, error) {
	profile, ok := imageProfiles[slug]
	if ok {
		return profile, nil
	}

	err := fmt.Errorf("no predefined image profile exists with slug %q", slug)
	return ImageProfile{}, err
}

// ListPredefinedImageProfiles returns every profile, sorted by slug.
func ListPredefinedImageProfiles() []ImageProfile {
	profiles := make([]ImageProfile, 0, len(imageProfiles))
	for _, profile := range imageProfiles {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Slug < profiles[j].Slug
	})
	return profiles
}

func init() {
	reader := strings.NewReader(imageProfilesRawCSV)
	err := gocsv.UnmarshalToCallback(
		reader,
		func(row ImageProfile) error {
			_, exists := imageProfiles[row.Slug]
			if exists {
				return fmt.Errorf(
					"duplicate definition for profile %q found on row %d",
					row.Slug,
					len(imageProfiles)+1,
				)
			}
			imageProfiles[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}
