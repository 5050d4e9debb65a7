package sheet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Credentials identifies a Google service account. Either File or both
// Email and PrivateKey must be set.
type Credentials struct {
	Email      string
	PrivateKey string
	File       string
}

// json renders the service-account key file Google's client expects.
// Private keys supplied through environment variables usually carry
// literal "\n" sequences, which are expanded here.
func (c Credentials) json() ([]byte, error) {
	if c.Email == "" || c.PrivateKey == "" {
		return nil, fmt.Errorf("google credentials require an email and a private key")
	}
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": c.Email,
		"private_key":  strings.ReplaceAll(c.PrivateKey, `\n`, "\n"),
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
}

// Google is a Source for one spreadsheet in Google Sheets.
type Google struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewGoogle connects to a spreadsheet with a service account.
func NewGoogle(ctx context.Context, spreadsheetID string, creds Credentials) (*Google, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if creds.File != "" {
		opts = append(opts, option.WithCredentialsFile(creds.File))
	} else {
		raw, err := creds.json()
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsJSON(raw))
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &Google{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// Read implements Source.
func (g *Google) Read(ctx context.Context, rng string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rng, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		rows[i] = cells
	}
	return rows, nil
}

// WriteCells implements Source with a single values:batchUpdate call.
// Values are written RAW so "0" stays the string the sheet formulas expect.
func (g *Google) WriteCells(ctx context.Context, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	data := make([]*sheets.ValueRange, len(updates))
	for i, u := range updates {
		data[i] = &sheets.ValueRange{
			Range:  u.Cell,
			Values: [][]interface{}{{u.Value}},
		}
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	if _, err := g.svc.Spreadsheets.Values.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to write %d cells: %w", len(updates), err)
	}
	return nil
}
