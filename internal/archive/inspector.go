// Package archive inspects a release archive to pick the binary and genesis
// members that represent a release, using glob rules keyed on chain
// identity.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/types"
)

// member is one regular file inside the archive, with its content already
// read into memory so it can be matched against multiple glob patterns and
// then extracted without re-reading the archive.
type member struct {
	name string
	data []byte
}

// Inspect opens archivePath (a possibly-compressed tar), matches the chain
// identity against cfg.Rules (falling back to the default patterns if none
// match), and extracts the chosen binary and genesis members to
// extractionDir as binary-<basename> and genesis-<basename>.
//
// A (nil, nil) return means "the archive did not qualify for extraction";
// the caller may fall back to uploading the archive itself. A non-nil error
// means the archive file could not be opened, or a rule matched but the
// required members could not be produced.
func Inspect(archivePath, extractionDir string, chain config.ChainConfig, cfg config.ArtifactSelectionConfig) ([]types.UploadCandidate, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	members, ok, err := readTarMembers(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrArchiveMember, err)
	}
	if !ok {
		return nil, nil
	}

	rule := matchRule(chain, cfg)
	if rule == nil {
		return nil, nil
	}

	binaryMember := findByPatterns(members, rule.BinaryPatterns)
	genesisMember := findByPatterns(members, rule.GenesisPatterns)
	if binaryMember == nil || genesisMember == nil {
		return nil, fmt.Errorf("%w: binary or genesis member not found for %s/%s",
			apperrors.ErrArchiveIncomplete, chain.Organization, chain.Repository)
	}

	if err := os.MkdirAll(extractionDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create extraction dir: %v", apperrors.ErrArchiveMember, err)
	}

	binaryCandidate, err := extractMember(*binaryMember, extractionDir, "binary")
	if err != nil {
		return nil, err
	}
	genesisCandidate, err := extractMember(*genesisMember, extractionDir, "genesis")
	if err != nil {
		return nil, err
	}

	return []types.UploadCandidate{binaryCandidate, genesisCandidate}, nil
}

func matchRule(chain config.ChainConfig, cfg config.ArtifactSelectionConfig) *config.ArtifactSelectionRule {
	for i := range cfg.Rules {
		rule := cfg.Rules[i]
		if rule.Organization != "" && rule.Organization != chain.Organization {
			continue
		}
		if rule.Repository != "" && rule.Repository != chain.Repository {
			continue
		}
		return &rule
	}
	if len(cfg.DefaultBinaryPatterns) > 0 && len(cfg.DefaultGenesisPatterns) > 0 {
		return &config.ArtifactSelectionRule{
			BinaryPatterns:  cfg.DefaultBinaryPatterns,
			GenesisPatterns: cfg.DefaultGenesisPatterns,
		}
	}
	return nil
}

// findByPatterns returns the member matched by the first pattern that
// matches anything, breaking ties within that pattern by lexicographically
// smallest member name.
func findByPatterns(members []member, patterns []string) *member {
	for _, pattern := range patterns {
		var matches []member
		for _, m := range members {
			if matchesPattern(m.name, pattern) {
				matches = append(matches, m)
			}
		}
		if len(matches) == 0 {
			continue
		}
		sort.Slice(matches, func(i, j int) bool { return matches[i].name < matches[j].name })
		return &matches[0]
	}
	return nil
}

func matchesPattern(memberName, pattern string) bool {
	if ok, _ := path.Match(pattern, memberName); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(memberName))
	return ok
}

func extractMember(m member, extractionDir, artifactType string) (types.UploadCandidate, error) {
	if len(m.data) == 0 {
		return types.UploadCandidate{}, fmt.Errorf("%w: member has invalid size: %s", apperrors.ErrArchiveMember, m.name)
	}
	outputName := path.Base(m.name)
	destination := filepath.Join(extractionDir, artifactType+"-"+outputName)
	if err := os.WriteFile(destination, m.data, 0o644); err != nil {
		return types.UploadCandidate{}, fmt.Errorf("%w: write %s: %v", apperrors.ErrArchiveMember, destination, err)
	}
	sourceMember := m.name
	return types.UploadCandidate{
		LocalPath:    destination,
		OutputName:   outputName,
		ArtifactType: artifactType,
		SourceMember: &sourceMember,
	}, nil
}

// readTarMembers decompresses archivePath (gzip, zstd, xz, or none) and
// enumerates its regular-file members. ok is false when the stream is not
// a readable tar at all — the caller treats that as "rule did not match".
func readTarMembers(archivePath string) (result []member, ok bool, err error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	reader, err := decompressingReader(f)
	if err != nil {
		return nil, false, nil
	}

	tr := tar.NewReader(reader)
	var members []member
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(members) == 0 {
				return nil, false, nil
			}
			break
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, false, nil
		}
		members = append(members, member{name: hdr.Name, data: data})
	}
	return members, true, nil
}

// decompressingReader sniffs the magic bytes of r and wraps it with the
// matching decompressor, or returns it unwrapped for a plain tar stream.
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
