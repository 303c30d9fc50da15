// Package directory searches the audited Active Directory over LDAP.
package directory

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/retry"
)

// PageSize keeps searches below the server-side size limit of AD.
const PageSize = 500

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Retry   retry.Config
	Logger  *slog.Logger
}

// Client implements domain.DirectoryQuerier with a fresh connection per
// query.
type Client struct {
	timeout time.Duration
	retry   retry.Config
	log     *slog.Logger
}

// New returns a client. Zero options get sensible defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Client{
		timeout: opts.Timeout,
		retry:   opts.Retry,
		log:     opts.Logger.With("component", "directory"),
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			c.log.Warn("LDAP query failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		}
	}
	return c
}

// Query binds as q.BindDN and runs a paged subtree search below q.BaseDN.
func (c *Client) Query(ctx context.Context, q domain.DirectoryQuery) (domain.DirectoryEntries, error) {
	tlsConfig, err := TLSConfig(q.URL, q.CAFile)
	if err != nil {
		return nil, err
	}

	var entries domain.DirectoryEntries
	err = retry.Do(ctx, c.retry, retryable, func() error {
		var err error
		entries, err = c.query(ctx, q, tlsConfig)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) query(ctx context.Context, q domain.DirectoryQuery, tlsConfig *tls.Config) (domain.DirectoryEntries, error) {
	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: c.timeout})}
	if tlsConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}
	conn, err := ldap.DialURL(q.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("directory: connecting to %s: %w", q.URL, err)
	}
	defer conn.Close()
	conn.SetTimeout(c.timeout)

	// go-ldap has no context support; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.Bind(q.BindDN, q.Password); err != nil {
		return nil, fmt.Errorf("directory: bind as %s: %w", q.BindDN, err)
	}

	req := ldap.NewSearchRequest(
		q.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		q.Filter,
		q.Attributes,
		nil,
	)
	res, err := conn.SearchWithPaging(req, PageSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("directory: search %q: %w", q.Filter, err)
	}
	c.log.Debug("LDAP search done", "filter", q.Filter, "entries", len(res.Entries))
	return Entries(res.Entries, q.Attributes), nil
}

// Entries converts search results, keyed by the requested attribute
// spelling. Attributes without values are left out.
func Entries(in []*ldap.Entry, attributes []string) domain.DirectoryEntries {
	out := make(domain.DirectoryEntries, len(in))
	for _, e := range in {
		attrs := make(map[string][]string, len(attributes))
		for _, name := range attributes {
			if vals := e.GetEqualFoldAttributeValues(name); len(vals) > 0 {
				attrs[name] = vals
			}
		}
		out[e.DN] = attrs
	}
	return out
}

// TLSConfig returns the TLS settings for rawURL. ldaps:// requires a CA
// file that verifies the server; ldap:// returns nil.
func TLSConfig(rawURL, caFile string) (*tls.Config, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("directory: invalid URL %q: %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ldap":
		return nil, nil
	case "ldaps":
	default:
		return nil, fmt.Errorf("directory: unsupported scheme %q", u.Scheme)
	}
	if caFile == "" {
		return nil, errors.New("directory: ldaps:// requires a CA file")
	}
	pool, err := loadCA(caFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:    pool,
		ServerName: u.Hostname(),
		MinVersion: tls.VersionTLS12,
	}, nil
}

func loadCA(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("directory: no certificates found in %s", path)
	}
	return pool, nil
}

func retryable(err error) bool {
	if retry.IsRetryable(err) {
		return true
	}
	var lerr *ldap.Error
	if !errors.As(err, &lerr) {
		return false
	}
	switch lerr.ResultCode {
	case ldap.ErrorNetwork, ldap.LDAPResultBusy, ldap.LDAPResultUnavailable:
		return true
	}
	return false
}
