package http

import (
	"context"
	"errors"
	"testing"

	"github.com/xiaqy71/myWebServer/core/buffer"
)

type fakeVerifier struct {
	users map[string]string
	err   error
	calls int
}

func (f *fakeVerifier) Verify(_ context.Context, name, password string, isLogin bool) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if name == "" || password == "" {
		return false, nil
	}
	stored, exists := f.users[name]
	if isLogin {
		return exists && stored == password, nil
	}
	if exists {
		return false, nil
	}
	f.users[name] = password
	return true, nil
}

func bufferOf(s string) *buffer.Buffer {
	b := buffer.New(0)
	b.AppendString(s)
	return b
}

func TestParseKeepAliveGet(t *testing.T) {
	req := NewRequest(nil, nil)
	buf := bufferOf("GET /index HTTP/1.1\r\nHost: x\r\nConnection: keep-alive\r\n\r\n")

	done, err := req.Parse(context.Background(), buf)
	if err != nil || !done {
		t.Fatalf("Expected finished request, got done=%v err=%v", done, err)
	}
	if req.Method != "GET" || req.Path != "/index.html" || req.Version != "1.1" {
		t.Errorf("Unexpected request line: %s %s %s", req.Method, req.Path, req.Version)
	}
	if !req.IsKeepAlive() {
		t.Error("Expected keep-alive")
	}
	if buf.ReadableBytes() != 0 {
		t.Errorf("Expected all input consumed, %d left", buf.ReadableBytes())
	}
}

func TestParsePathRewrite(t *testing.T) {
	cases := map[string]string{
		"/":          "/index.html",
		"/login":     "/login.html",
		"/picture":   "/picture.html",
		"/other":     "/other",
		"/index.css": "/index.css",
	}
	for in, want := range cases {
		req := NewRequest(nil, nil)
		done, err := req.Parse(context.Background(), bufferOf("GET "+in+" HTTP/1.0\r\n\r\n"))
		if err != nil || !done {
			t.Fatalf("%s: done=%v err=%v", in, done, err)
		}
		if req.Path != want {
			t.Errorf("%s: expected %s, got %s", in, want, req.Path)
		}
		if req.IsKeepAlive() {
			t.Errorf("%s: HTTP/1.0 must not be keep-alive", in)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"GARBAGE\r\n", "GET /  HTTP/1.1\r\n", "GET / FTP/1.0\r\n"} {
		req := NewRequest(nil, nil)
		done, err := req.Parse(context.Background(), bufferOf(in))
		if done || !errors.Is(err, ErrMalformedRequest) {
			t.Errorf("%q: expected ErrMalformedRequest, got done=%v err=%v", in, done, err)
		}
	}
}

func TestParsePipelinedGets(t *testing.T) {
	req := NewRequest(nil, nil)
	second := "GET /login HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"
	buf := bufferOf("GET /index HTTP/1.1\r\nConnection: keep-alive\r\n\r\n" + second)

	done, err := req.Parse(context.Background(), buf)
	if err != nil || !done {
		t.Fatalf("first: expected finished request, got done=%v err=%v", done, err)
	}
	if req.Path != "/index.html" || req.Body != "" {
		t.Errorf("first: expected /index.html without body, got path=%s body=%q", req.Path, req.Body)
	}
	if string(buf.Peek()) != second {
		t.Fatalf("Expected the second request to stay buffered, got %q", buf.Peek())
	}

	req.Reset()
	done, err = req.Parse(context.Background(), buf)
	if err != nil || !done {
		t.Fatalf("second: expected finished request, got done=%v err=%v", done, err)
	}
	if req.Path != "/login.html" || buf.ReadableBytes() != 0 {
		t.Errorf("second: got path=%s with %d bytes left", req.Path, buf.ReadableBytes())
	}
}

func TestParseIncremental(t *testing.T) {
	req := NewRequest(nil, nil)
	buf := buffer.New(0)
	parts := []string{"GET /wel", "come HTTP/1.1\r\nConn", "ection: close\r\n", "\r\n"}

	for i, part := range parts {
		buf.AppendString(part)
		done, err := req.Parse(context.Background(), buf)
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if want := i == len(parts)-1; done != want {
			t.Fatalf("part %d: expected done=%v, got %v (state %v)", i, want, done, req.State())
		}
	}
	if req.Path != "/welcome.html" || req.Header("Connection") != "close" {
		t.Errorf("Unexpected result: path=%s headers=%v", req.Path, req.Headers)
	}
}

func TestParseHeadersLastWins(t *testing.T) {
	req := NewRequest(nil, nil)
	_, err := req.Parse(context.Background(), bufferOf("GET / HTTP/1.1\r\nX-A: 1\r\nX-A:2\r\nx-a: 3\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if req.Header("X-A") != "2" || req.Header("x-a") != "3" {
		t.Errorf("Expected case-sensitive last-wins headers, got %v", req.Headers)
	}
}

func TestParseBodyWaitsForContentLength(t *testing.T) {
	req := NewRequest(nil, nil)
	buf := bufferOf("POST /submit HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello")

	done, err := req.Parse(context.Background(), buf)
	if err != nil || done {
		t.Fatalf("Expected to wait for the body, got done=%v err=%v", done, err)
	}
	if req.State() != StateBody {
		t.Errorf("Expected body state, got %v", req.State())
	}

	buf.AppendString(" world")
	done, err = req.Parse(context.Background(), buf)
	if err != nil || !done {
		t.Fatalf("Expected finished, got done=%v err=%v", done, err)
	}
	if req.Body != "hello world" {
		t.Errorf("Expected body %q, got %q", "hello world", req.Body)
	}
}

func TestParseBodyTooLarge(t *testing.T) {
	req := NewRequest(nil, nil)
	_, err := req.Parse(context.Background(), bufferOf("POST / HTTP/1.1\r\nContent-Length: 99999999\r\n\r\nx"))
	if !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("Expected ErrMalformedRequest, got %v", err)
	}
}

func loginRequest(path, body string) string {
	return "POST " + path + " HTTP/1.1\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Connection: keep-alive\r\n\r\n" + body
}

func TestParseLogin(t *testing.T) {
	v := &fakeVerifier{users: map[string]string{"alice": "p w"}}

	req := NewRequest(v, nil)
	done, err := req.Parse(context.Background(), bufferOf(loginRequest("/login", "username=alice&password=p+w")))
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if req.Path != "/welcome.html" {
		t.Errorf("Expected /welcome.html, got %s", req.Path)
	}

	req.Reset()
	done, err = req.Parse(context.Background(), bufferOf(loginRequest("/login.html", "username=alice&password=bad")))
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if req.Path != "/error.html" {
		t.Errorf("Expected /error.html, got %s", req.Path)
	}
}

func TestParseRegister(t *testing.T) {
	v := &fakeVerifier{users: map[string]string{}}
	req := NewRequest(v, nil)

	_, err := req.Parse(context.Background(), bufferOf(loginRequest("/register", "username=bob&password=x%26y")))
	if err != nil {
		t.Fatal(err)
	}
	if req.Path != "/welcome.html" || v.users["bob"] != "x&y" {
		t.Errorf("Expected bob registered with x&y, path=%s users=%v", req.Path, v.users)
	}
}

func TestParseVerifierFailure(t *testing.T) {
	storeErr := errors.New("store down")
	v := &fakeVerifier{err: storeErr}
	req := NewRequest(v, nil)

	done, err := req.Parse(context.Background(), bufferOf(loginRequest("/login", "username=a&password=b")))
	if done || !errors.Is(err, storeErr) || errors.Is(err, ErrMalformedRequest) {
		t.Errorf("Expected the store error, got done=%v err=%v", done, err)
	}

	req = NewRequest(nil, nil)
	if _, err := req.Parse(context.Background(), bufferOf(loginRequest("/login", "username=a&password=b"))); !errors.Is(err, ErrNoVerifier) {
		t.Errorf("Expected ErrNoVerifier, got %v", err)
	}
}

func TestParseFormIgnoredForOtherContentTypes(t *testing.T) {
	v := &fakeVerifier{users: map[string]string{}}
	req := NewRequest(v, nil)
	in := "POST /login HTTP/1.1\r\nContent-Type: text/plain\r\n\r\nusername=a&password=b"

	if _, err := req.Parse(context.Background(), bufferOf(in)); err != nil {
		t.Fatal(err)
	}
	if v.calls != 0 || req.Path != "/login.html" || len(req.Post) != 0 {
		t.Errorf("Expected no form handling, calls=%d path=%s post=%v", v.calls, req.Path, req.Post)
	}
}

func TestParseForm(t *testing.T) {
	cases := map[string]map[string]string{
		"a=1&b=2":              {"a": "1", "b": "2"},
		"a=1&a=2":              {"a": "2"},
		"name=J%C3%BCrgen+M":   {"name": "Jürgen M"},
		"k=v=w&&flag":          {"k": "v=w", "flag": ""},
		"bad=%zz+x":            {"bad": "%zz x"},
		"email=a%40b.com&x=%2": {"email": "a@b.com", "x": "%2"},
	}
	for in, want := range cases {
		got := make(map[string]string)
		parseForm(in, got)
		if len(got) != len(want) {
			t.Errorf("%q: expected %v, got %v", in, want, got)
			continue
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("%q: key %q expected %q, got %q", in, k, v, got[k])
			}
		}
	}
}

func BenchmarkParseRequest(b *testing.B) {
	raw := "GET /index HTTP/1.1\r\nHost: localhost\r\nUser-Agent: bench\r\nConnection: keep-alive\r\n\r\n"
	req := NewRequest(nil, nil)
	buf := buffer.New(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.AppendString(raw)
		req.Parse(context.Background(), buf)
		req.Reset()
	}
}
