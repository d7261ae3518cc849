package listing

import "time"

// Listing represents one collected property record. Optional attributes are
// pointers so an absent field is distinguishable from a zero value; they
// render as null in JSON and empty in CSV.
type Listing struct {
	ID            string     `json:"id"`
	Portal        string     `json:"portal"`
	URL           string     `json:"url,omitempty"`
	Title         string     `json:"title,omitempty"`
	PropertyType  string     `json:"property_type,omitempty"`
	Price         float64    `json:"price"`
	PricePerSqm   *float64   `json:"price_per_sqm,omitempty"`
	Bedrooms      *int       `json:"bedrooms,omitempty"`
	Bathrooms     *int       `json:"bathrooms,omitempty"`
	ParkingSpaces *int       `json:"parking_spaces,omitempty"`
	Area          *int       `json:"area,omitempty"`
	Neighborhood  string     `json:"neighborhood,omitempty"`
	City          string     `json:"city,omitempty"`
	State         string     `json:"state,omitempty"`
	CondoFee      *float64   `json:"condo_fee,omitempty"`
	IPTU          *float64   `json:"iptu,omitempty"`
	TotalCost     float64    `json:"total_cost"`
	ListingDate   string     `json:"listing_date,omitempty"`
	CollectedAt   time.Time  `json:"collected_at"`
	SourcePage    int        `json:"source_page"`
}

// RawRecord is one candidate listing as produced by a fetcher: a map of
// labeled text fields plus the card's full text blob. It carries no typing;
// the extractor owns all interpretation.
type RawRecord struct {
	Fields map[string]string `json:"fields"`
	Text   string            `json:"text,omitempty"`
}

// Field returns the raw text for a label, or "" when absent.
func (r RawRecord) Field(name string) string {
	return r.Fields[name]
}

// RunCounters accumulates per-run bookkeeping persisted with each checkpoint.
type RunCounters struct {
	PagesProcessed int `json:"pages_processed"`
	PagesFailed    int `json:"pages_failed"`
	Retries        int `json:"retries"`
	EmptyPages     int `json:"empty_pages"`
}

// CollectionState is the durable progress record for one run. It is owned and
// mutated exclusively by the collection engine; the checkpoint store only
// serializes it.
type CollectionState struct {
	LastPageCompleted int         `json:"last_page_completed"`
	SeenIDs           []string    `json:"seen_ids"`
	Results           []Listing   `json:"results"`
	RunStartedAt      time.Time   `json:"run_started_at"`
	LastCheckpointAt  time.Time   `json:"last_checkpoint_at"`
	Counters          RunCounters `json:"counters"`
}

// NewCollectionState returns an empty state for a fresh run.
func NewCollectionState(now time.Time) *CollectionState {
	return &CollectionState{
		SeenIDs:      []string{},
		Results:      []Listing{},
		RunStartedAt: now,
	}
}
