package laplace

import (
	"context"
	"fmt"
	"net/url"
)

// EarningsTranscriptListItem identifies one earnings call transcript.
type EarningsTranscriptListItem struct {
	Symbol     string `json:"symbol"`
	Year       int    `json:"year"`
	Quarter    int    `json:"quarter"`
	Date       string `json:"date"`
	FiscalYear int    `json:"fiscal_year"`
}

// EarningsTranscript is a full earnings call transcript with its
// optional AI-generated summary.
type EarningsTranscript struct {
	Symbol     string  `json:"symbol"`
	Year       int     `json:"year"`
	Quarter    int     `json:"quarter"`
	Date       string  `json:"date"`
	Content    string  `json:"content"`
	Summary    *string `json:"summary"`
	HasSummary bool    `json:"has_summary"`
}

// GetEarningsTranscripts lists the available earnings call transcripts
// for a symbol.
func (c *Client) GetEarningsTranscripts(ctx context.Context, symbol string, region Region) ([]EarningsTranscriptListItem, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("region", string(region))

	var transcripts []EarningsTranscriptListItem
	if err := c.get(ctx, "v1/earnings/transcripts", query, &transcripts); err != nil {
		return nil, fmt.Errorf("get earnings transcripts %s: %w", symbol, err)
	}

	return transcripts, nil
}

// GetEarningsTranscript fetches a single transcript by ID.
func (c *Client) GetEarningsTranscript(ctx context.Context, transcriptID string, region Region) (*EarningsTranscript, error) {
	query := url.Values{}
	query.Set("region", string(region))

	var transcript EarningsTranscript
	if err := c.get(ctx, "v1/earnings/transcript/"+transcriptID, query, &transcript); err != nil {
		return nil, fmt.Errorf("get earnings transcript %s: %w", transcriptID, err)
	}

	return &transcript, nil
}
