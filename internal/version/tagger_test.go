package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTag(t *testing.T) {
	tests := []struct {
		name       string
		objectName string
		generation string
		want       string
	}{
		{"version in basename", "releases/chaind-v1.2.3-linux-amd64.tar.gz", "100", "v1.2.3"},
		{"version with prerelease suffix", "releases/chaind-v1.2.3-rc1.tar.gz", "100", "v1.2.3-rc1"},
		{"version only in parent folder", "releases/v2.0.0/chaind-linux-amd64.tar.gz", "200", "v2.0.0"},
		{"rightmost parent wins", "releases/v1.0.0/v2.0.0/chaind.tar.gz", "300", "v2.0.0"},
		{"no version anywhere falls back to generation", "releases/chaind-linux-amd64.tar.gz", "400", "gcs-400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tag(tt.objectName, tt.generation))
		})
	}
}
