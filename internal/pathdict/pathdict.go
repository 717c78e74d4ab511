// Package pathdict splits canonical vfs-paths into (dir, name, ext)
// triples and interns them by first-seen insertion order, the scheme
// GrimoireVFS uses to deduplicate repeated directory and extension strings
// across an archive's entries.
package pathdict

import (
	"strings"

	"github.com/Virace/GrimoireVFS/internal/codec"
)

// Canonicalize converts a possibly backslash-delimited, case-varying path
// into the canonical form used for hashing and storage: forward slashes,
// a single leading slash, no trailing slash (except for the root "/"),
// and, if caseInsensitive is set, lower-cased.
func Canonicalize(p string, caseInsensitive bool) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	if caseInsensitive {
		p = strings.ToLower(p)
	}
	return p
}

// Split breaks a canonical vfs-path into (dir, name, ext):
//   - dir is everything up to and including the last "/"; paths without a
//     "/" receive dir "/".
//   - name is the basename without its final extension.
//   - ext is the final ".xxx" including the dot, or empty if none.
//
// Split is idempotent: Split(Join(Split(p))) == Split(p).
func Split(vfsPath string) (dir, name, ext string) {
	slash := strings.LastIndexByte(vfsPath, '/')
	if slash < 0 {
		dir = "/"
		name = vfsPath
	} else {
		dir = vfsPath[:slash+1]
		name = vfsPath[slash+1:]
	}
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		ext = name[dot:]
		name = name[:dot]
	}
	return dir, name, ext
}

// Join reconstructs a vfs-path from its (dir, name, ext) triple.
func Join(dir, name, ext string) string {
	return dir + name + ext
}

// Interner assigns stable ids to strings in first-seen insertion order,
// the scheme the Writer uses to build the dir/name/ext string tables
// deterministically.
type Interner struct {
	ids   map[string]uint32
	order []string
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{ids: make(map[string]uint32)}
}

// Intern returns the id for s, assigning the next sequential id on first
// insertion.
func (in *Interner) Intern(s string) uint32 {
	if id, ok := in.ids[s]; ok {
		return id
	}
	id := uint32(len(in.order)) //nolint:gosec // table sizes are bounded well under 2^32 in practice
	in.ids[s] = id
	in.order = append(in.order, s)
	return id
}

// Strings returns the interned strings in insertion (id) order.
func (in *Interner) Strings() []string {
	return in.order
}

// Len returns the number of distinct interned strings.
func (in *Interner) Len() int {
	return len(in.order)
}

// Table encodes strs as a length-prefixed string table: repeated
// (u16 length, bytes), in the supplied order (which is the id order), via
// codec.Builder.WriteString.
func Table(strs []string) ([]byte, error) {
	b := codec.NewBuilder(0)
	for _, s := range strs {
		if err := b.WriteString(s); err != nil {
			return nil, ErrComponentTooLong
		}
	}
	return b.Bytes(), nil
}

// ErrComponentTooLong is returned when a dir/name/ext component exceeds the
// 65535-byte length-prefix limit of the string table format.
var ErrComponentTooLong = errTooLong{}

type errTooLong struct{}

func (errTooLong) Error() string { return "pathdict: path component exceeds 65535 bytes" }

// ParseTable decodes a length-prefixed string table of the given byte
// length into its component strings, in id order, via codec.Cursor.ReadString.
func ParseTable(buf []byte) ([]string, error) {
	c := codec.NewCursor(buf)
	var out []string
	for c.Remaining() > 0 {
		s, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
