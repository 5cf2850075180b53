// Package static resolves and maps the files served from the resource
// directory.
package static

import (
	"path/filepath"
	"strings"
)

// GetContentType returns MIME type based on file extension
func GetContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return "text/html"
	case ".xhtml":
		return "application/xhtml+xml"
	case ".css":
		return "text/css"
	case ".js":
		return "text/javascript"
	case ".json":
		return "application/json"
	case ".xml":
		return "text/xml"
	case ".txt":
		return "text/plain"
	case ".rtf":
		return "application/rtf"
	case ".pdf":
		return "application/pdf"
	case ".word", ".doc":
		return "application/msword"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".ico":
		return "image/x-icon"
	case ".au":
		return "audio/basic"
	case ".mp3":
		return "audio/mpeg"
	case ".mpeg", ".mpg":
		return "video/mpeg"
	case ".mp4":
		return "video/mp4"
	case ".avi":
		return "video/x-msvideo"
	case ".gz":
		return "application/x-gzip"
	case ".tar":
		return "application/x-tar"
	case ".zip":
		return "application/zip"
	default:
		return "text/plain"
	}
}

// Resolve joins a request path onto root. The path is cleaned as if rooted,
// so ".." segments cannot climb above root.
func Resolve(root, reqPath string) string {
	return filepath.Join(root, filepath.FromSlash(cleanPath(reqPath)))
}

func cleanPath(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return filepath.ToSlash(filepath.Clean(p))
}
