package http

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/xiaqy71/myWebServer/core/buffer"
	"github.com/xiaqy71/myWebServer/logger"
)

// MaxBodySize bounds Content-Length.
const MaxBodySize = 1 << 20

var (
	// ErrMalformedRequest is a permanent parse failure answered with 400.
	ErrMalformedRequest = errors.New("malformed HTTP request")
	// ErrNoVerifier is returned when a form submission needs a credential
	// check but none is configured.
	ErrNoVerifier = errors.New("no credential verifier configured")
)

var (
	requestLineRe = regexp.MustCompile(`^([^ ]*) ([^ ]*) HTTP/([^ ]*)$`)
	headerRe      = regexp.MustCompile(`^([^:]*): ?(.*)$`)
)

// defaultHTML lists the paths served with an implied .html suffix.
var defaultHTML = map[string]struct{}{
	"/index":    {},
	"/register": {},
	"/login":    {},
	"/welcome":  {},
	"/video":    {},
	"/picture":  {},
}

// formActions maps the form targets to "is login".
var formActions = map[string]bool{
	"/register.html": false,
	"/login.html":    true,
}

// ParseState is the position of the request parser.
type ParseState uint8

const (
	StateRequestLine ParseState = iota
	StateHeaders
	StateBody
	StateFinished
)

func (s ParseState) String() string {
	switch s {
	case StateRequestLine:
		return "request-line"
	case StateHeaders:
		return "headers"
	case StateBody:
		return "body"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Verifier checks submitted credentials. An error means the check could not
// be performed, which is distinct from (false, nil).
type Verifier interface {
	Verify(ctx context.Context, name, password string, isLogin bool) (bool, error)
}

// Request is an incrementally parsed HTTP/1.x request. It is reset, not
// reallocated, between requests on a keep-alive connection.
type Request struct {
	Method  string
	Path    string
	Version string
	// Headers are case-sensitive; a repeated header keeps its last value.
	Headers map[string]string
	Body    string
	Post    map[string]string

	state    ParseState
	verifier Verifier
	log      *logger.Logger
}

// NewRequest creates a request bound to a credential verifier and logger.
// Both may be nil.
func NewRequest(v Verifier, log *logger.Logger) *Request {
	if log == nil {
		log = logger.Nop()
	}
	return &Request{
		Headers:  make(map[string]string),
		Post:     make(map[string]string),
		verifier: v,
		log:      log,
	}
}

// Reset prepares the request for the next message.
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Version = ""
	r.Body = ""
	clear(r.Headers)
	clear(r.Post)
	r.state = StateRequestLine
}

// State returns the parser position.
func (r *Request) State() ParseState { return r.state }

// Header returns the value of key, or "".
func (r *Request) Header(key string) string { return r.Headers[key] }

// PostValue returns a decoded form field, or "".
func (r *Request) PostValue(key string) string { return r.Post[key] }

// IsKeepAlive reports whether the client asked for a persistent HTTP/1.1
// connection.
func (r *Request) IsKeepAlive() bool {
	return r.Headers["Connection"] == "keep-alive" && r.Version == "1.1"
}

// Parse consumes complete lines from buf. It returns true once the request
// is finished; false means more bytes are needed and the state is kept for
// the next call. An error wrapping ErrMalformedRequest is permanent; any
// other error comes from credential verification.
func (r *Request) Parse(ctx context.Context, buf *buffer.Buffer) (bool, error) {
	for r.state != StateFinished {
		if r.state == StateBody {
			done, err := r.parseBody(ctx, buf)
			if err != nil || !done {
				return false, err
			}
			continue
		}

		end := buf.FindCRLF()
		if end < 0 {
			// Partial line: wait for the rest.
			return false, nil
		}
		line := string(buf.Peek()[:end])
		_ = buf.Retrieve(end + 2)

		switch r.state {
		case StateRequestLine:
			if err := r.parseRequestLine(line); err != nil {
				return false, err
			}
		case StateHeaders:
			r.parseHeader(line)
			if r.state == StateBody && r.headersComplete(buf) {
				r.state = StateFinished
			}
		}
	}

	r.log.Debugf("[%s], [%s], [%s]", r.Method, r.Path, r.Version)
	return true, nil
}

func (r *Request) parseRequestLine(line string) error {
	m := requestLineRe.FindStringSubmatch(line)
	if m == nil {
		r.log.Errorf("RequestLine Error: %q", truncate(line, 64))
		return fmt.Errorf("%w: bad request line", ErrMalformedRequest)
	}
	r.Method, r.Path, r.Version = m[1], m[2], m[3]
	r.parsePath()
	r.state = StateHeaders
	return nil
}

func (r *Request) parsePath() {
	if r.Path == "/" {
		r.Path = "/index.html"
		return
	}
	if _, ok := defaultHTML[r.Path]; ok {
		r.Path += ".html"
	}
}

// parseHeader stores a "key: value" line. Anything else, normally the
// blank line, ends the header block.
func (r *Request) parseHeader(line string) {
	if m := headerRe.FindStringSubmatch(line); m != nil {
		r.Headers[m[1]] = m[2]
		return
	}
	r.state = StateBody
}

// headersComplete decides at the blank line whether a body follows. Without
// Content-Length only a POST takes the rest of the line as its body; any
// other method ends here so a pipelined request stays in buf.
func (r *Request) headersComplete(buf *buffer.Buffer) bool {
	if n, ok := r.contentLength(); ok {
		return n == 0
	}
	if r.Method != "POST" {
		return true
	}
	return buf.ReadableBytes() == 0
}

func (r *Request) contentLength() (int, bool) {
	v, ok := r.Headers["Content-Length"]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (r *Request) parseBody(ctx context.Context, buf *buffer.Buffer) (bool, error) {
	if n, ok := r.contentLength(); ok {
		if n > MaxBodySize {
			return false, fmt.Errorf("%w: body of %d bytes exceeds %d", ErrMalformedRequest, n, MaxBodySize)
		}
		if buf.ReadableBytes() < n {
			return false, nil
		}
		r.Body = string(buf.Peek()[:n])
		_ = buf.Retrieve(n)
	} else {
		end := buf.FindCRLF()
		if end < 0 {
			r.Body = buf.RetrieveAllString()
		} else {
			r.Body = string(buf.Peek()[:end])
			_ = buf.Retrieve(end + 2)
		}
	}
	r.log.Debugf("Body:%s, len:%d", truncate(r.Body, 128), len(r.Body))

	if err := r.parsePost(ctx); err != nil {
		return false, err
	}
	r.state = StateFinished
	return true, nil
}

func (r *Request) parsePost(ctx context.Context) error {
	if r.Method != "POST" || r.Headers["Content-Type"] != "application/x-www-form-urlencoded" {
		return nil
	}
	parseForm(r.Body, r.Post)

	isLogin, ok := formActions[r.Path]
	if !ok {
		return nil
	}
	if r.verifier == nil {
		return ErrNoVerifier
	}

	name := r.Post["username"]
	r.log.Infof("Verify name:%s login:%t", name, isLogin)
	accepted, err := r.verifier.Verify(ctx, name, r.Post["password"], isLogin)
	if err != nil {
		return fmt.Errorf("verify %q: %w", name, err)
	}
	if accepted {
		r.Path = "/welcome.html"
	} else {
		r.Path = "/error.html"
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
