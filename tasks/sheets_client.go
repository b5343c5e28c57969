package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"alphadip-config/types"
)

// ErrSheetNotFound is returned when GOOGLE_SHEETS_ID does not name a spreadsheet
var ErrSheetNotFound = errors.New("spreadsheet not found")

// ErrNoAPIKey is returned when the client would otherwise fall back to
// Application Default Credentials
var ErrNoAPIKey = errors.New("sheets API key is required")

// ErrSheetForbidden is returned when the API key may not read the spreadsheet
var ErrSheetForbidden = errors.New("spreadsheet not accessible with this API key")

// SheetsClient reads a spreadsheet with an API key
type SheetsClient struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewSheetsClient creates a Sheets API client authenticated by apiKey.
// Extra options are appended, so tests can point the client at another endpoint.
func NewSheetsClient(ctx context.Context, apiKey, spreadsheetID string, opts ...option.ClientOption) (*SheetsClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)

	service, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsClient{
		service:       service,
		spreadsheetID: spreadsheetID,
	}, nil
}

// Describe fetches the spreadsheet title and tab names
func (c *SheetsClient) Describe(ctx context.Context) (*types.SheetInfo, error) {
	logger := zap.L().With(zap.String("task", "describe_sheet"), zap.String("spreadsheet_id", c.spreadsheetID))
	logger.Info("describe_sheet started")

	ss, err := c.service.Spreadsheets.Get(c.spreadsheetID).
		Fields("spreadsheetId", "properties.title", "sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifySheetsError(err)
	}

	info := &types.SheetInfo{
		SpreadsheetID: ss.SpreadsheetId,
		Tabs:          []string{},
	}
	if ss.Properties != nil {
		info.Title = ss.Properties.Title
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			info.Tabs = append(info.Tabs, sh.Properties.Title)
		}
	}

	logger.Info("describe_sheet complete", zap.String("title", info.Title), zap.Int("tab_count", len(info.Tabs)))
	return info, nil
}

// ReadRange returns the values of an A1 range, e.g. "Sheet1!A1:D10"
func (c *SheetsClient) ReadRange(ctx context.Context, a1Range string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, a1Range).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", a1Range, classifySheetsError(err))
	}
	return resp.Values, nil
}

func classifySheetsError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("sheets request: %w", err)
	}
	switch gerr.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrSheetNotFound, gerr.Message)
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrSheetForbidden, gerr.Message)
	default:
		return fmt.Errorf("sheets API returned status %d: %w", gerr.Code, err)
	}
}
