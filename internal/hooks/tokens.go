package hooks

import (
	"strconv"
	"strings"

	"imxup/internal/queue"
)

// Substitution tokens accepted in hook command templates:
//
//	%N  gallery name             %T  template (BBCode) file path
//	%p  gallery source folder    %C  image count
//	%s  total size in bytes      %t  thumbnail size setting
//	%g  host-assigned gallery id %j  gallery URL on the primary host
//	%b  archive path             %z  just-in-time store-mode zip
//	%e1..%e4 ext fields          %c1..%c4 custom fields
//
// Resolution is longest-match-first: %e1 is resolved as a whole and never
// partially consumed by a shorter token sharing its prefix. Unknown tokens
// are left literal.
const zipToken = "%z"

// tokenValues builds the substitution table for one gallery. The zip path is
// injected by the executor only when the template references %z.
func tokenValues(gallery *queue.Gallery, zipPath string) map[string]string {
	values := map[string]string{
		"%N": gallery.Name,
		"%T": gallery.TemplatePath,
		"%p": gallery.SourcePath,
		"%C": strconv.Itoa(gallery.FileCount),
		"%s": strconv.FormatInt(gallery.TotalBytes, 10),
		"%t": strconv.Itoa(gallery.ThumbSize),
		"%g": gallery.HostGalleryID,
		"%j": gallery.GalleryURL,
		"%b": gallery.ArchivePath,
		"%z": zipPath,
	}
	for i := 1; i <= 4; i++ {
		values["%e"+strconv.Itoa(i)] = gallery.Ext(i)
		values["%c"+strconv.Itoa(i)] = gallery.Custom(i)
	}
	return values
}

// expand substitutes tokens in a single argument. At each % the three
// character tokens are tried before the two character ones, which keeps a
// longer token from being split by a shorter prefix.
func expand(arg string, values map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(arg); {
		if arg[i] != '%' {
			b.WriteByte(arg[i])
			i++
			continue
		}
		matched := false
		for _, width := range []int{3, 2} {
			if i+width > len(arg) {
				continue
			}
			if value, ok := values[arg[i:i+width]]; ok {
				b.WriteString(value)
				i += width
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(arg[i])
			i++
		}
	}
	return b.String()
}

// usesToken reports whether any argument references the token.
func usesToken(args []string, token string) bool {
	for _, arg := range args {
		if strings.Contains(arg, token) {
			return true
		}
	}
	return false
}

// splitCommand breaks a command template into arguments, honoring single and
// double quotes so substituted values containing spaces survive as one
// argument when the user quotes the token.
func splitCommand(template string) []string {
	var (
		args    []string
		current strings.Builder
		quote   byte
		started bool
	)
	for i := 0; i < len(template); i++ {
		ch := template[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				current.WriteByte(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			started = true
		case ch == ' ' || ch == '\t':
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteByte(ch)
			started = true
		}
	}
	if started {
		args = append(args, current.String())
	}
	return args
}
