package http

import (
	"fmt"
	"os"
	"strconv"

	"github.com/xiaqy71/myWebServer/core/buffer"
	"github.com/xiaqy71/myWebServer/core/static"
	"github.com/xiaqy71/myWebServer/logger"
)

// Status codes produced by the server.
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusInternalServerError = 500
)

var statusText = map[int]string{
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "Not Found",
	StatusInternalServerError: "Internal Server Error",
}

// errorPages maps codes with a dedicated page under the resource directory.
var errorPages = map[int]string{
	StatusBadRequest: "/400.html",
	StatusForbidden:  "/403.html",
	StatusNotFound:   "/404.html",
}

// StatusText returns the reason phrase for code.
func StatusText(code int) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return statusText[StatusBadRequest]
}

// Response plans one reply: the header block goes into a Buffer and the
// body, when it is a file, stays mapped for the second write vector.
type Response struct {
	code      int
	path      string
	srcDir    string
	keepAlive bool
	file      []byte

	log *logger.Logger
}

// NewResponse creates an empty response.
func NewResponse(log *logger.Logger) *Response {
	if log == nil {
		log = logger.Nop()
	}
	return &Response{code: -1, log: log}
}

// Init sets up the next reply, releasing the previous file mapping.
func (r *Response) Init(srcDir, path string, keepAlive bool, code int) {
	r.UnmapFile()
	r.srcDir = srcDir
	r.path = path
	r.keepAlive = keepAlive
	r.code = code
}

// Code returns the final status code after MakeResponse.
func (r *Response) Code() int { return r.code }

// Path returns the served path after MakeResponse.
func (r *Response) Path() string { return r.path }

// File returns the mapped body, or nil.
func (r *Response) File() []byte { return r.file }

// FileLen returns the length of the mapped body.
func (r *Response) FileLen() int { return len(r.file) }

// UnmapFile releases the mapped body.
func (r *Response) UnmapFile() {
	if r.file != nil {
		if err := static.Unmap(r.file); err != nil {
			r.log.Warnf("munmap %s: %v", r.path, err)
		}
		r.file = nil
	}
}

// MakeResponse writes the status line and headers to buf and maps the body
// file. An inline HTML body is appended instead when no file can be served.
func (r *Response) MakeResponse(buf *buffer.Buffer) {
	if r.code == StatusOK {
		fi, err := os.Stat(static.Resolve(r.srcDir, r.path))
		switch {
		case err != nil || fi.IsDir():
			r.code = StatusNotFound
		case fi.Mode().Perm()&0o004 == 0:
			r.code = StatusForbidden
		}
	}
	if page, ok := errorPages[r.code]; ok {
		r.path = page
	}

	r.addStatusLine(buf)
	r.addHeaders(buf)
	r.addContent(buf)
}

func (r *Response) addStatusLine(buf *buffer.Buffer) {
	if _, ok := statusText[r.code]; !ok {
		r.code = StatusBadRequest
	}
	buf.AppendString("HTTP/1.1 " + strconv.Itoa(r.code) + " " + statusText[r.code] + "\r\n")
}

func (r *Response) addHeaders(buf *buffer.Buffer) {
	buf.AppendString("Connection: ")
	if r.keepAlive {
		buf.AppendString("keep-alive\r\n")
		buf.AppendString("keep-alive: max=6, timeout=120\r\n")
	} else {
		buf.AppendString("close\r\n")
	}
}

func (r *Response) addContent(buf *buffer.Buffer) {
	if r.code == StatusInternalServerError {
		r.errorContent(buf, "The server could not complete the request")
		return
	}

	full := static.Resolve(r.srcDir, r.path)
	data, err := static.Map(full)
	if err != nil {
		r.log.Debugf("map %s: %v", full, err)
		r.errorContent(buf, "File NotFound!")
		return
	}
	r.file = data

	buf.AppendString("Content-Type: " + static.GetContentType(r.path) + "\r\n")
	buf.AppendString("Content-Length: " + strconv.Itoa(len(data)) + "\r\n\r\n")
}

// errorContent writes a self-contained HTML body.
func (r *Response) errorContent(buf *buffer.Buffer, message string) {
	body := fmt.Sprintf("<html><title>Error</title><body bgcolor=\"ffffff\">%d : %s\n<p>%s</p><hr><em>myWebServer</em></body></html>",
		r.code, statusText[r.code], message)

	buf.AppendString("Content-Type: text/html\r\n")
	buf.AppendString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
	buf.AppendString(body)
}
