// Package version derives a release tag from an object's path when the
// bucket layout does not already encode one explicitly.
package version

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`v\d+(\.\d+){1,3}(-[0-9A-Za-z][0-9A-Za-z.-]*)?`)

// Tag searches objectName (a full bucket path, forward-slash separated) for
// a semver-like version tag, checking the basename first and then each
// parent path segment from rightmost to leftmost. If none is found it falls
// back to "gcs-<generation>" so every processed object still gets a stable,
// unique tag.
func Tag(objectName, generation string) string {
	segments := strings.Split(objectName, "/")
	base := path.Base(objectName)

	if m := tagPattern.FindString(base); m != "" {
		return m
	}
	for i := len(segments) - 2; i >= 0; i-- {
		if m := tagPattern.FindString(segments[i]); m != "" {
			return m
		}
	}
	return fmt.Sprintf("gcs-%s", generation)
}
