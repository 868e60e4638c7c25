// Package blob stores post images. Object names are images/<uuid>-<name>.
package blob

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"local.dev/postboard/internal/models"
)

var allowedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

// DetectImage sniffs the first 512 bytes and returns the content type and
// extension. The file name's extension is the fallback when sniffing is
// inconclusive.
func DetectImage(data []byte, filename string) (contentType, ext string, err error) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	mtype := http.DetectContentType(head)

	switch mtype {
	case "image/jpeg":
		return mtype, ".jpg", nil
	case "image/png":
		return mtype, ".png", nil
	case "image/webp":
		return mtype, ".webp", nil
	case "image/gif":
		return mtype, ".gif", nil
	}
	if e := strings.ToLower(filepath.Ext(filename)); allowedExt[e] {
		if e == ".jpg" || e == ".jpeg" {
			return "image/jpeg", e, nil
		}
		return "image/" + strings.TrimPrefix(e, "."), e, nil
	}
	return "", "", models.NewValidationError("image", "Unsupported image type: "+mtype)
}

// ObjectPath builds a collision-free object name that keeps a readable
// version of the original file name.
func ObjectPath(filename, ext string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." || base == "/" {
		base = "img"
	}
	base = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '.' ||
			(r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			return r
		}
		return '-'
	}, base)
	return "images/" + uuid.NewString() + "-" + base + ext
}
