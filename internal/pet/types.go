// Package pet defines core types shared across subsystems.
package pet

import (
	"time"
)

// Type identifies the animal category a record belongs to.
type Type string

// Animal categories supported by the ingestion pipeline.
const (
	TypeDog Type = "dog"
	TypeCat Type = "cat"
)

// ParseType validates a raw type string from the API or queue.
func ParseType(raw string) (Type, bool) {
	switch Type(raw) {
	case TypeDog, TypeCat:
		return Type(raw), true
	default:
		return "", false
	}
}

// Gender is the canonicalized gender of an animal.
type Gender string

// Gender values stored on canonical records.
const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// Unknown is the sentinel for text fields the parser could not extract.
const Unknown = "unknown"

// AgeUnknown is the sentinel for an age the parser could not extract.
const AgeUnknown = -1

// ListItem is one candidate entry extracted from a listing page.
type ListItem struct {
	NativeID string `json:"native_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url,omitempty"`
}

// DetailFields holds raw fields extracted from a detail page. A field the
// selector chain could not locate carries the Unknown/AgeUnknown sentinel.
type DetailFields struct {
	Breed       string `json:"breed"`
	AgeYears    int    `json:"age_years"`
	Gender      Gender `json:"gender"`
	Prefecture  string `json:"prefecture"`
	City        string `json:"city"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	AdoptionFee string `json:"adoption_fee"`
	Vaccinated  bool   `json:"vaccinated"`
	Neutered    bool   `json:"neutered"`
}

// Pet is the canonical record persisted for a crawled animal. ID is
// namespaced by source and stable across re-crawls of the same native item.
type Pet struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Name        string    `json:"name"`
	Breed       string    `json:"breed,omitempty"`
	AgeYears    int       `json:"age_years"`
	Gender      Gender    `json:"gender"`
	Prefecture  string    `json:"prefecture,omitempty"`
	City        string    `json:"city,omitempty"`
	Description string    `json:"description,omitempty"`
	Personality []string  `json:"personality,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	AdoptionFee string    `json:"adoption_fee,omitempty"`
	Vaccinated  bool      `json:"vaccinated"`
	Neutered    bool      `json:"neutered"`
	OriginalID  string    `json:"original_id"`
	Source      string    `json:"source"`
	CrawledAt   time.Time `json:"crawled_at"`
}

// Checkpoint is the durable resumption marker for a (source, type) pair.
// TotalProcessed never decreases and LastCrawlAt only advances; the writer
// for a given key must be serialized by the caller (last-writer-wins).
type Checkpoint struct {
	SourceID       string            `json:"source_id"`
	PetType        Type              `json:"pet_type"`
	LastItemID     string            `json:"lastItemId"`
	RecentItemIDs  []string          `json:"recentItemIds"`
	TotalProcessed int64             `json:"totalProcessed"`
	LastCrawlAt    time.Time         `json:"lastCrawlAt"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	UpdatedAt      time.Time         `json:"-"`
}

// Seen reports whether the id was processed in a recent prior run.
func (c *Checkpoint) Seen(nativeID string) bool {
	if c == nil {
		return false
	}
	if nativeID == c.LastItemID {
		return true
	}
	for _, id := range c.RecentItemIDs {
		if id == nativeID {
			return true
		}
	}
	return false
}

// QueueMessage is dispatched downstream for each item awaiting a derived
// asset (screenshot/conversion stages).
type QueueMessage struct {
	BatchID       string    `json:"batchId"`
	PetID         string    `json:"petId"`
	PetType       Type      `json:"petType"`
	ExpectedTotal int       `json:"expectedTotal"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	RetryCount    int       `json:"retryCount"`
}

// DeadLetter wraps a message that exhausted its retry budget.
type DeadLetter struct {
	QueueMessage
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// CrawlResult summarizes one crawl run. Success is true iff Errors is empty.
type CrawlResult struct {
	Success      bool     `json:"success"`
	TotalItems   int      `json:"totalItems"`
	NewItems     int      `json:"newItems"`
	UpdatedItems int      `json:"updatedItems"`
	Errors       []string `json:"errors"`
}

// Finalize sets Success from the accumulated error list.
func (r *CrawlResult) Finalize() {
	r.Success = len(r.Errors) == 0
}

// SaveReport aggregates a batched persistence call. Per-item failures are
// collected here rather than aborting the batch.
type SaveReport struct {
	NewCount     int      `json:"newCount"`
	UpdatedCount int      `json:"updatedCount"`
	Errors       []string `json:"errors"`
}

// ArchiveResult reports which image variants were written for an item.
type ArchiveResult struct {
	HasOriginal bool `json:"hasOriginal"`
	HasDerived  bool `json:"hasDerived"`
}
