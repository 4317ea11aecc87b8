package jobref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 20 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; CVTailor/1.0)"

// maxBodyBytes bounds how much of a job page is read.
const maxBodyBytes = 2 << 20

// ErrPrivateAddress is returned when a job URL resolves to a loopback,
// private, link-local or otherwise non-public address.
var ErrPrivateAddress = errors.New("address is not publicly routable")

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// FetchError represents an error during URL fetching.
type FetchError struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// FetchOptions configures the fetch behavior.
type FetchOptions struct {
	Timeout   time.Duration
	UserAgent string
	// MaxTries bounds attempts on network errors and 5xx responses.
	MaxTries uint
	Client   *http.Client
	// AllowPrivateNetworks disables the public-address check on the default
	// client.
	AllowPrivateNetworks bool
}

// DefaultFetchOptions returns sensible defaults for fetching.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		MaxTries:  2,
	}
}

// Fetch retrieves the HTML of a job posting.
func Fetch(ctx context.Context, urlStr string, opts FetchOptions) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Host == "" || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return "", &FetchError{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = newClient(timeout, opts.AllowPrivateNetworks)
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	tries := opts.MaxTries
	if tries == 0 {
		tries = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond

	return backoff.Retry(ctx, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return "", backoff.Permanent(&FetchError{URL: urlStr, Message: "failed to create request", Cause: err})
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

		resp, err := client.Do(req)
		if errors.Is(err, ErrPrivateAddress) {
			return "", backoff.Permanent(&FetchError{URL: urlStr, Message: "refused destination", Cause: err})
		}
		if err != nil {
			return "", &FetchError{URL: urlStr, Message: "HTTP request failed", Cause: err}
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return "", &FetchError{URL: urlStr, Message: "failed to read response body", Cause: err}
		}

		switch {
		case resp.StatusCode >= 500:
			return "", &FetchError{URL: urlStr, StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
		case resp.StatusCode != http.StatusOK:
			return "", backoff.Permanent(&FetchError{URL: urlStr, StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)})
		}
		return string(body), nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}

// newClient builds the fetch client. Unless private networks are allowed, the
// dialer checks every resolved address, redirects included, and the client
// ignores proxy settings so the check sees the real destination.
func newClient(timeout time.Duration, allowPrivate bool) *http.Client {
	if allowPrivate {
		return &http.Client{Timeout: timeout}
	}
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return err
			}
			if !isPublicAddr(addr) {
				return fmt.Errorf("%w: %s", ErrPrivateAddress, addr)
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return true
}
