// Package importer loads stock recommendations from a CSV export.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"PriceSentinel/internal/collector"
	"PriceSentinel/internal/markethours"
	"PriceSentinel/internal/model"
)

// Column headers of the recommendations sheet.
const (
	ColName     = "Stock Name"
	ColTicker   = "Ticker"
	ColEntryMin = "Entry Min"
	ColEntryMax = "Entry Max"
	ColTarget   = "Target"
	ColStopLoss = "Stoploss/Exit Price"
	ColDate     = "Date of Coverage"
)

// Store is the subset of the position store the importer writes to.
type Store interface {
	Exists(ctx context.Context, symbol, company string, at time.Time) (bool, error)
	Create(ctx context.Context, p *model.Position) error
}

// Result counts imported and skipped rows.
type Result struct {
	Created int
	Skipped int
}

// Importer creates positions from CSV rows. Rows without a name, ticker or
// both entry bounds are skipped, as are recommendations already recorded for
// the same symbol and company on the same day.
type Importer struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func New(store Store, log zerolog.Logger) *Importer {
	return &Importer{
		store: store,
		log:   log.With().Str("component", "importer").Logger(),
		now:   time.Now,
	}
}

// Import reads every row of r. Store failures abort the import; malformed
// rows do not.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var res Result

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		// sheets exported with a trailing space after "Date of Coverage"
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{ColName, ColTicker, ColEntryMin, ColEntryMax} {
		if _, ok := cols[required]; !ok {
			return res, fmt.Errorf("missing column %q", required)
		}
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read line %d: %w", line, err)
		}
		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if isBlank(record) {
			continue
		}

		p, ok := im.position(get)
		if !ok {
			im.log.Debug().Int("line", line).Msg("skipping incomplete row")
			res.Skipped++
			continue
		}

		exists, err := im.store.Exists(ctx, p.Symbol, p.CompanyName, p.RecommendedAt)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if exists {
			res.Skipped++
			continue
		}
		if err := im.store.Create(ctx, p); err != nil {
			return res, fmt.Errorf("line %d: create %s: %w", line, p.Symbol, err)
		}
		res.Created++
	}

	im.log.Info().Int("created", res.Created).Int("skipped", res.Skipped).Msg("import complete")
	return res, nil
}

func (im *Importer) position(get func(string) string) (*model.Position, bool) {
	company := get(ColName)
	symbol := collector.NormalizeSymbol(get(ColTicker))
	if company == "" || symbol == "" {
		return nil, false
	}
	lo, ok := parseNumber(get(ColEntryMin))
	if !ok {
		return nil, false
	}
	hi, ok := parseNumber(get(ColEntryMax))
	if !ok {
		return nil, false
	}

	now := im.now().In(markethours.IST)
	recommended, ok := ParseCoverageDate(get(ColDate), now.Year())
	if !ok {
		recommended = now
	}

	return &model.Position{
		Symbol:        symbol,
		CompanyName:   company,
		EntryZone:     formatNumber(lo) + " - " + formatNumber(hi),
		Target:        get(ColTarget),
		StopLoss:      get(ColStopLoss),
		Status:        model.StatusEntry,
		RecommendedAt: recommended,
	}, true
}

var coverageLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"January 2 2006",
	"2-Jan-2006",
}

// ParseCoverageDate reads a coverage date in IST. Dates written without a
// year ("12 Jan") are placed in year.
func ParseCoverageDate(raw string, year int) (time.Time, bool) {
	s := strings.Join(strings.Fields(strings.ReplaceAll(raw, ",", " ")), " ")
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range coverageLayouts {
		if t, err := time.ParseInLocation(layout, s, markethours.IST); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation(layout, s+" "+strconv.Itoa(year), markethours.IST); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation(layout, s+"-"+strconv.Itoa(year), markethours.IST); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
