// Package googleauth builds client options for Google APIs from a service
// account, shared by the Sheets ledger mirror and the Cloud Storage backend.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	applog "ordem/internal/log"

	goption "google.golang.org/api/option"
)

var ErrNoCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")

// Credentials is either inline JSON or a path to a key file.
type Credentials struct {
	JSON string
	File string
}

// Load returns the raw key material, preferring inline JSON.
func (c Credentials) Load(ctx context.Context) ([]byte, error) {
	logger := applog.FromContext(ctx)
	inline := strings.TrimSpace(c.JSON)
	file := strings.TrimSpace(c.File)
	switch {
	case inline != "":
		logger.Debug("Using inline service account JSON", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.Debug("Read service account file", "path", file, "size", len(b))
		return b, nil
	default:
		return nil, ErrNoCredentials
	}
}

// Options returns client options for the given scopes.
func (c Credentials) Options(ctx context.Context, scopes ...string) ([]goption.ClientOption, error) {
	b, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(b),
		goption.WithScopes(scopes...),
	}, nil
}

// PooledHTTPClient is tuned for long-lived workers talking to Google APIs.
func PooledHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}
}
