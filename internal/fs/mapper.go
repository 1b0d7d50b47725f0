package fs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ajaxzhan/gstfs/pkg/types"
)

// Mapper translates between virtual paths inside the mount and paths in
// the source directory. Extensions are compared without their leading dot
// and only on the final path element.
type Mapper struct {
	sourceDir string
	sourceExt string
	targetExt string
}

// NewMapper creates a mapper for the given mount configuration.
func NewMapper(cfg types.MountConfig) *Mapper {
	return &Mapper{
		sourceDir: cfg.SourceDir,
		sourceExt: strings.TrimPrefix(cfg.SourceExt, "."),
		targetExt: strings.TrimPrefix(cfg.TargetExt, "."),
	}
}

// SourceDir returns the mirrored source directory.
func (m *Mapper) SourceDir() string {
	return m.sourceDir
}

// SourcePath returns the source path backing a virtual path. A file that
// exists under its own name in the source directory is used as is;
// otherwise a target extension is rewritten to the source extension.
func (m *Mapper) SourcePath(virtualPath string) string {
	p := filepath.Join(m.sourceDir, virtualPath)
	if _, err := os.Stat(p); err != nil {
		p = replaceExt(p, m.targetExt, m.sourceExt)
	}
	return p
}

// IsTargetExtension reports whether the final extension of path is the
// target extension.
func (m *Mapper) IsTargetExtension(path string) bool {
	return extOf(path) == m.targetExt
}

// DisplayName returns the name a source directory entry is listed under.
func (m *Mapper) DisplayName(name string) string {
	return replaceExt(name, m.sourceExt, m.targetExt)
}

// Cacheable implements cache.Resolver. A virtual path is transcoded when it
// carries the target extension and its source does not, so that files
// already in the target format are passed through.
func (m *Mapper) Cacheable(virtualPath string) (string, bool) {
	if !m.IsTargetExtension(virtualPath) {
		return "", false
	}
	source := m.SourcePath(virtualPath)
	if m.IsTargetExtension(source) {
		return "", false
	}
	return source, true
}

func extOf(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// replaceExt swaps the final extension of name from search to replace and
// leaves any other name unchanged.
func replaceExt(name, search, replace string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext[1:] != search {
		return name
	}
	return name[:len(name)-len(ext)+1] + replace
}
