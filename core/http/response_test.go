package http

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/xiaqy71/myWebServer/core/buffer"
)

func resourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html": "<html>index</html>",
		"404.html":   "<html>not found</html>",
		"400.html":   "<html>bad request</html>",
		"403.html":   "<html>forbidden</html>",
		"empty.txt":  "",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "secret.html"), []byte("s"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func makeResponse(dir, path string, keepAlive bool, code int) (*Response, string) {
	resp := NewResponse(nil)
	buf := buffer.New(0)
	resp.Init(dir, path, keepAlive, code)
	resp.MakeResponse(buf)
	return resp, buf.RetrieveAllString()
}

func TestResponseOK(t *testing.T) {
	dir := resourceDir(t)
	resp, head := makeResponse(dir, "/index.html", true, StatusOK)
	defer resp.UnmapFile()

	want := "HTTP/1.1 200 OK\r\n" +
		"Connection: keep-alive\r\n" +
		"keep-alive: max=6, timeout=120\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: 18\r\n\r\n"
	if head != want {
		t.Errorf("Expected header\n%q\ngot\n%q", want, head)
	}
	if string(resp.File()) != "<html>index</html>" || resp.FileLen() != 18 {
		t.Errorf("Unexpected file body %q", resp.File())
	}
}

func TestResponseErrorPages(t *testing.T) {
	dir := resourceDir(t)
	cases := []struct {
		path string
		code int
		want int
		body string
	}{
		{"/missing.html", StatusOK, StatusNotFound, "<html>not found</html>"},
		{"/sub", StatusOK, StatusNotFound, "<html>not found</html>"},
		{"/../../etc/passwd", StatusOK, StatusNotFound, "<html>not found</html>"},
		{"/index.html", StatusBadRequest, StatusBadRequest, "<html>bad request</html>"},
		{"/secret.html", StatusOK, StatusForbidden, "<html>forbidden</html>"},
	}

	for _, c := range cases {
		resp, head := makeResponse(dir, c.path, true, c.code)
		if resp.Code() != c.want {
			t.Errorf("%s: expected %d, got %d", c.path, c.want, resp.Code())
		}
		if !strings.HasPrefix(head, "HTTP/1.1 "+strconv.Itoa(c.want)+" "+StatusText(c.want)+"\r\n") {
			t.Errorf("%s: unexpected status line in %q", c.path, head)
		}
		if string(resp.File()) != c.body {
			t.Errorf("%s: expected body %q, got %q", c.path, c.body, resp.File())
		}
		resp.UnmapFile()
	}
}

func TestResponseInlineErrorBody(t *testing.T) {
	dir := t.TempDir() // no error pages at all

	resp, out := makeResponse(dir, "/nothing.html", false, StatusOK)
	if resp.Code() != StatusNotFound || resp.File() != nil {
		t.Fatalf("Expected inline 404, got code=%d file=%d bytes", resp.Code(), resp.FileLen())
	}
	if !strings.Contains(out, "Connection: close\r\n") {
		t.Errorf("Expected Connection: close in %q", out)
	}
	head, body, ok := strings.Cut(out, "\r\n\r\n")
	if !ok || !strings.Contains(body, "404 : Not Found") {
		t.Fatalf("Expected an inline error body, got %q", out)
	}
	if !strings.Contains(head, "Content-Length: "+strconv.Itoa(len(body))) {
		t.Errorf("Content-Length does not match inline body length %d: %q", len(body), head)
	}

	resp, out = makeResponse(dir, "/login.html", true, StatusInternalServerError)
	if resp.Code() != StatusInternalServerError || !strings.HasPrefix(out, "HTTP/1.1 500 Internal Server Error\r\n") {
		t.Errorf("Expected 500, got %q", out)
	}
}

func TestResponseEmptyFile(t *testing.T) {
	dir := resourceDir(t)
	resp, head := makeResponse(dir, "/empty.txt", false, StatusOK)
	if resp.Code() != StatusOK || resp.File() != nil {
		t.Errorf("Expected 200 with no mapping, got code=%d file=%v", resp.Code(), resp.File())
	}
	if !strings.HasSuffix(head, "Content-Type: text/plain\r\nContent-Length: 0\r\n\r\n") {
		t.Errorf("Unexpected header %q", head)
	}
}

func writeResource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
