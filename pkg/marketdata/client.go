// Package marketdata provides a bulk download client that pulls historical
// bars from a configured provider and hands them to a writer in chunks.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/schollz/progressbar/v3"

	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/marketdata/provider"
)

// BarWriter receives downloaded bars. The bars store satisfies this.
type BarWriter interface {
	Upsert(ctx context.Context, bars []types.Bar) error
}

// DownloadParams holds the parameters for a market data download request.
type DownloadParams struct {
	Symbol    string          `validate:"required"`
	Timeframe types.Timeframe `validate:"required"`
	StartDate time.Time       `validate:"required"`
	EndDate   time.Time       `validate:"required,gtfield=StartDate"`
}

// Client downloads historical data from a provider and persists it through
// a writer.
type Client struct {
	provider provider.Provider
	writer   BarWriter
	validate *validator.Validate
}

// NewClient creates a download client from an already validated provider
// configuration.
func NewClient(config provider.Config, writer BarWriter) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid provider configuration: %w", err)
	}

	marketProvider, err := provider.NewProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create market data provider: %w", err)
	}

	return &Client{
		provider: marketProvider,
		writer:   writer,
		validate: validate,
	}, nil
}

// Download fetches the requested span in day-sized chunks, writing each chunk
// as it arrives. The context can be used to cancel the download.
func (c *Client) Download(ctx context.Context, params DownloadParams) error {
	if err := c.validate.Struct(params); err != nil {
		return fmt.Errorf("invalid download parameters: %w", err)
	}
	if err := params.Timeframe.Validate(); err != nil {
		return err
	}

	totalDays := int(params.EndDate.Sub(params.StartDate).Hours()/24) + 1
	bar := progressbar.NewOptions(totalDays,
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", params.Symbol)),
		progressbar.OptionShowCount(),
	)

	for chunkStart := params.StartDate; chunkStart.Before(params.EndDate); chunkStart = chunkStart.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunkEnd := chunkStart.AddDate(0, 0, 1)
		if chunkEnd.After(params.EndDate) {
			chunkEnd = params.EndDate
		}

		bars, err := c.provider.FetchBars(ctx, params.Symbol, params.Timeframe, chunkStart, chunkEnd)
		if err != nil {
			return fmt.Errorf("failed to download chunk starting %s: %w", chunkStart.Format(time.DateOnly), err)
		}

		if err := c.writer.Upsert(ctx, bars); err != nil {
			return fmt.Errorf("failed to write chunk starting %s: %w", chunkStart.Format(time.DateOnly), err)
		}

		bar.Add(1)
	}

	bar.Finish()

	return nil
}
