/*
Package webserver is a small static-file and login HTTP/1.1 server built on
a Linux epoll reactor.

One goroutine owns the epoll instance, accepts clients and evicts idle
connections from a min-heap timer. Reads, request parsing and writes run on
a fixed worker pool. Client sockets are registered EPOLLONESHOT, so a
connection is handled by at most one worker at a time and re-armed when
that worker is done.

Quick Start

	go run ./cmd/webserver -config config.ini -resources ./resources

Configuration is an INI file (or JSON by extension) with [server], [mysql]
and [log] sections; WEBSERVER_SECTION_KEY environment variables override
file values. See config.ini.

Modules

  - app: wiring of log, credential store and engine, graceful shutdown
  - config: INI/JSON/env configuration
  - core: the reactor engine
  - core/buffer: growable read/write byte buffer with scatter reads
  - core/http: request parser, response builder, per-connection state
  - core/poller: epoll wrapper
  - core/pools: worker pool, connection recycling, byte slices
  - core/static: MIME types, path resolution, file mapping
  - core/timer: idle-connection heap timer
  - logger: leveled, optionally asynchronous, rotating log
  - store: MySQL connection pool and credential checks

Login and registration forms post to /login and /register; a successful
check serves /welcome.html, anything else /error.html.
*/
package webserver
