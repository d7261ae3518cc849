package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"imovelworker/internal/listing"
	"imovelworker/logger"
	"imovelworker/pkg/errors"
)

// csvHeader fixes the CSV column order. Downstream spreadsheets depend on it.
var csvHeader = []string{
	"id", "portal", "property_type", "title",
	"price", "price_per_sqm", "bedrooms", "bathrooms", "parking_spaces", "area",
	"neighborhood", "city", "state",
	"condo_fee", "iptu", "total_cost",
	"url", "collected_at", "listing_date",
}

// Writer exports collected listings to JSON and CSV files under a base
// directory.
type Writer struct {
	dir string
	log *logger.Logger
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, log: logger.ForExport()}
}

// WriteJSON writes all listings as a pretty-printed JSON array to name under
// the base directory.
func (w *Writer) WriteJSON(name string, listings []listing.Listing) error {
	path := filepath.Join(w.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewPersistence("failed to create export directory", err)
	}

	data, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return errors.NewPersistence("failed to encode listings", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.NewPersistence("failed to write JSON export", err)
	}

	w.log.Info().Str("path", path).Int("listings", len(listings)).Msg("JSON export written")
	return nil
}

// WriteCSV writes all listings as CSV to name under the base directory.
// Absent optional fields render as empty cells.
func (w *Writer) WriteCSV(name string, listings []listing.Listing) error {
	path := filepath.Join(w.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewPersistence("failed to create export directory", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.NewPersistence("failed to create CSV export", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(csvHeader); err != nil {
		return errors.NewPersistence("failed to write CSV header", err)
	}
	for _, l := range listings {
		if err := cw.Write(row(l)); err != nil {
			return errors.NewPersistence("failed to write CSV row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.NewPersistence("failed to flush CSV export", err)
	}

	w.log.Info().Str("path", path).Int("listings", len(listings)).Msg("CSV export written")
	return nil
}

func row(l listing.Listing) []string {
	return []string{
		l.ID,
		l.Portal,
		l.PropertyType,
		l.Title,
		money(l.Price),
		optMoney(l.PricePerSqm),
		optCount(l.Bedrooms),
		optCount(l.Bathrooms),
		optCount(l.ParkingSpaces),
		optCount(l.Area),
		l.Neighborhood,
		l.City,
		l.State,
		optMoney(l.CondoFee),
		optMoney(l.IPTU),
		money(l.TotalCost),
		l.URL,
		l.CollectedAt.Format(time.RFC3339),
		l.ListingDate,
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optMoney(v *float64) string {
	if v == nil {
		return ""
	}
	return money(*v)
}

func optCount(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
