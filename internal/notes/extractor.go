// Package notes selects the release-notes section matching a detected
// version tag from inside a release archive.
package notes

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/dwellir/release-monitor/internal/types"
)

// MaxNoteChars bounds the notes text included in the webhook payload.
const MaxNoteChars = 40_000

const truncationMarker = "\n\n[release notes truncated for webhook payload size; full notes available in artifact]"

var notesFilenames = map[string]bool{
	"release_notes.txt": true,
	"release-notes.txt": true,
	"releasenotes.txt":  true,
	"changelog.md":       true,
	"changes.md":         true,
}

var versionHeadingPattern = regexp.MustCompile(`^\s{0,3}#{1,6}\s*v?(\d+(?:\.\d+){1,3}(?:-[0-9A-Za-z][0-9A-Za-z.-]*)?)\s*$`)

type candidateFile struct {
	name string
	text string
}

// ExtractForTag returns the release-notes section of archivePath matching
// releaseTag, or nil if no notes file exists or none could be decoded. It
// never returns an error: any I/O or format failure yields "no notes".
func ExtractForTag(archivePath, releaseTag string) *types.ExtractedReleaseNotes {
	candidates := readNotesCandidates(archivePath)
	if len(candidates) == 0 {
		return nil
	}

	var fallbackText, fallbackSource string
	for _, c := range candidates {
		section, hasVersionSections := sectionForTag(c.text, releaseTag)
		if section != "" {
			return &types.ExtractedReleaseNotes{Text: section, SourceMember: c.name}
		}
		if !hasVersionSections && fallbackText == "" {
			if trimmed := strings.TrimSpace(c.text); trimmed != "" {
				fallbackText = truncate(trimmed)
				fallbackSource = c.name
			}
		}
	}
	if fallbackText != "" {
		return &types.ExtractedReleaseNotes{Text: fallbackText, SourceMember: fallbackSource}
	}
	return nil
}

// sectionForTag returns the text of the version-heading section matching
// releaseTag, and whether the document contained any version headings at
// all (used by the caller to decide whether a whole-document fallback is
// appropriate).
func sectionForTag(text, releaseTag string) (section string, hasVersionSections bool) {
	lines := strings.Split(text, "\n")
	type heading struct {
		line    int
		version string
	}
	var headings []heading
	for i, line := range lines {
		m := versionHeadingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		headings = append(headings, heading{line: i, version: m[1]})
	}

	if len(headings) == 0 {
		return "", false
	}

	target := normalizeTag(releaseTag)
	for i, h := range headings {
		if normalizeTag(h.version) != target {
			continue
		}
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].line
		}
		section := strings.TrimSpace(strings.Join(lines[h.line:end], "\n"))
		if section == "" {
			return "", true
		}
		return truncate(section), true
	}
	return "", true
}

func normalizeTag(tag string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(tag)), "v")
}

func truncate(text string) string {
	if len(text) <= MaxNoteChars {
		return text
	}
	return text[:MaxNoteChars] + truncationMarker
}

func readNotesCandidates(archivePath string) []candidateFile {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	reader, err := decompressingReader(f)
	if err != nil {
		return nil
	}

	type found struct {
		name string
		data []byte
	}
	var foundFiles []found

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !notesFilenames[strings.ToLower(path.Base(hdr.Name))] {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil || len(data) == 0 {
			continue
		}
		foundFiles = append(foundFiles, found{name: hdr.Name, data: data})
	}
	if len(foundFiles) == 0 {
		return nil
	}

	sort.Slice(foundFiles, func(i, j int) bool {
		pi, pj := priority(foundFiles[i].name), priority(foundFiles[j].name)
		if pi != pj {
			return pi < pj
		}
		di, dj := depth(foundFiles[i].name), depth(foundFiles[j].name)
		if di != dj {
			return di < dj
		}
		return len(foundFiles[i].name) < len(foundFiles[j].name)
	})

	candidates := make([]candidateFile, 0, len(foundFiles))
	for _, ff := range foundFiles {
		candidates = append(candidates, candidateFile{name: ff.name, text: decodeUTF8Lenient(ff.data)})
	}
	return candidates
}

func priority(name string) int {
	base := strings.ToLower(path.Base(name))
	switch {
	case strings.HasPrefix(base, "release"):
		return 0
	case strings.Contains(base, "change"):
		return 1
	default:
		return 2
	}
}

func depth(name string) int {
	return strings.Count(strings.Trim(name, "/"), "/") + 1
}

func decodeUTF8Lenient(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if isValidUTF8(data) {
		return string(data)
	}
	var b strings.Builder
	for len(data) > 0 {
		r, size := decodeRuneReplacing(data)
		b.WriteRune(r)
		data = data[size:]
	}
	return b.String()
}

func isValidUTF8(data []byte) bool {
	return utf8.Valid(data)
}

// decodeRuneReplacing decodes one UTF-8 rune, returning the Unicode
// replacement character and advancing one byte on an invalid sequence.
func decodeRuneReplacing(data []byte) (rune, int) {
	r, size := utf8.DecodeRune(data)
	if r == utf8.RuneError && size <= 1 {
		return utf8.RuneError, 1
	}
	return r, size
}

func decompressingReader(f *os.File) (io.Reader, error) {
	magic := make([]byte, 6)
	n, _ := io.ReadFull(f, magic)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	magic = magic[:n]

	switch {
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		return gzip.NewReader(f)
	case bytes.HasPrefix(magic, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case bytes.HasPrefix(magic, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return xz.NewReader(f)
	default:
		return f, nil
	}
}
