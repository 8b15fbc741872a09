package storage

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".pdf":  true,
	".mp4":  true,
}

var allowedMime = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/bmp":       true,
	"application/pdf": true,
	"video/mp4":       true,
}

// thumbnailable lists the formats imaging can decode.
var thumbnailable = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
}

// DetectContentType checks the extension and the sniffed head bytes against
// the upload whitelist and returns the content type to store.
func DetectContentType(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", errors.New("不支持的文件类型")
	}

	detected := http.DetectContentType(head)
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	if strings.HasPrefix(detected, "text/") || strings.Contains(detected, "xml") {
		return "", errors.New("不支持的文件类型")
	}
	if allowedMime[detected] {
		return detected, nil
	}
	return "", errors.New("不支持的文件类型")
}
