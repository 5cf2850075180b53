//go:build !linux

package poller

// NewPoller reports ErrUnsupported outside Linux.
func NewPoller(maxEvents int) (Poller, error) {
	return nil, ErrUnsupported
}
