// Package google writes the ledger to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ordem/internal/googleauth"
	applog "ordem/internal/log"
	"ordem/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultIndexTTL = 5 * time.Minute

// Client mirrors ledger rows into one sheet. It caches the id column so an
// update or clear costs one API call when the index is warm.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger

	mu        sync.Mutex
	ids       []string // column A, index 0 is row 1
	expiresAt time.Time
	indexTTL  time.Duration
}

var _ sheets.Ledger = (*Client)(nil)

// New builds a client authenticated with the service account in creds.
func New(ctx context.Context, spreadsheetID, sheetName string, creds googleauth.Credentials) (*Client, error) {
	opts, err := creds.Options(ctx, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, err
	}
	opts = append(opts, goption.WithHTTPClient(googleauth.PooledHTTPClient()))
	return NewWithOptions(ctx, spreadsheetID, sheetName, opts...)
}

// NewWithOptions is New with caller supplied client options.
func NewWithOptions(ctx context.Context, spreadsheetID, sheetName string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if sheetName == "" {
		sheetName = "Lancamentos"
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        applog.FromContext(ctx).WithComponent(applog.ComponentSheets),
		indexTTL:      defaultIndexTTL,
	}, nil
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:F%d", c.sheetName, row, row)
}

// EnsureHeader writes the header when the first row is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	ids, err := c.index(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 && ids[0] != "" {
		return nil
	}
	header := make([]any, len(sheets.Header))
	for i, h := range sheets.Header {
		header[i] = h
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rowRange(1),
		&gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	c.invalidate()
	return nil
}

func (c *Client) Append(ctx context.Context, row sheets.LedgerRow) error {
	// A redelivered insert must not duplicate the row.
	if n, err := c.find(ctx, row.ID); err == nil && n > 0 {
		return c.write(ctx, n, row)
	}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.sheetName+"!A:F",
		&gsheet.ValueRange{Values: [][]any{row.Cells()}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	c.mu.Lock()
	if time.Now().Before(c.expiresAt) {
		c.ids = append(c.ids, row.ID)
	}
	c.mu.Unlock()
	c.logger.DebugContext(ctx, "Ledger row appended", applog.FieldRecordID, row.ID)
	return nil
}

func (c *Client) Update(ctx context.Context, row sheets.LedgerRow) error {
	n, err := c.find(ctx, row.ID)
	if err != nil {
		return err
	}
	return c.write(ctx, n, row)
}

func (c *Client) write(ctx context.Context, n int, row sheets.LedgerRow) error {
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rowRange(n),
		&gsheet.ValueRange{Values: [][]any{row.Cells()}}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d: %w", n, err)
	}
	c.logger.DebugContext(ctx, "Ledger row updated", applog.FieldRecordID, row.ID, "row", n)
	return nil
}

func (c *Client) Clear(ctx context.Context, id string) error {
	n, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, c.rowRange(n), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row %d: %w", n, err)
	}
	c.mu.Lock()
	if n-1 < len(c.ids) {
		c.ids[n-1] = ""
	}
	c.mu.Unlock()
	c.logger.DebugContext(ctx, "Ledger row cleared", applog.FieldRecordID, id, "row", n)
	return nil
}

// find returns the 1-based sheet row holding id.
func (c *Client) find(ctx context.Context, id string) (int, error) {
	ids, err := c.index(ctx)
	if err != nil {
		return 0, err
	}
	for i, v := range ids {
		if v == id {
			return i + 1, nil
		}
	}
	return 0, sheets.ErrRowNotFound
}

func (c *Client) index(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if time.Now().Before(c.expiresAt) {
		ids := c.ids
		c.mu.Unlock()
		return ids, nil
	}
	c.mu.Unlock()

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read id column: %w", err)
	}
	ids := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}

	c.mu.Lock()
	c.ids = ids
	c.expiresAt = time.Now().Add(c.indexTTL)
	c.mu.Unlock()
	return ids, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
