package models

import (
	"encoding/json"
	"time"
)

// Source identifies the upstream agency or site a recall was ingested from.
type Source string

const (
	SourceCPSC      Source = "cpsc"
	SourceFDAFood   Source = "fda_food"
	SourceFDADrug   Source = "fda_drug"
	SourceFDADevice Source = "fda_device"
	SourceUSDA      Source = "usda"
	SourceNHTSA     Source = "nhtsa"
	SourceNHTSAVIN  Source = "nhtsa_vin"
	// SourceMisc prefixes ad-hoc site scrapers; the full source value is
	// "misc/<site-name>".
	SourceMisc Source = "misc"
)

// MiscSource builds the source value for an ad-hoc scraper site.
func MiscSource(site string) Source {
	return Source(string(SourceMisc) + "/" + site)
}

// RemedyUpdate is one entry in a recall's append-only remedy history.
type RemedyUpdate struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Recall is the canonical recall entity. The pair (Source, ExternalID) is
// globally unique and serves as the dedup key; rows are created on first
// sighting, mutated on later sightings, and never deleted.
type Recall struct {
	ID          string          `json:"id" db:"id"`
	Source      Source          `json:"source" db:"source"`
	ExternalID  string          `json:"external_id" db:"external_id"`
	Product     string          `json:"product" db:"product"`
	Brand       string          `json:"brand,omitempty" db:"brand"`
	Category    string          `json:"category,omitempty" db:"category"`
	Hazard      string          `json:"hazard,omitempty" db:"hazard"`
	RecallDate  *time.Time      `json:"recall_date,omitempty" db:"recall_date"`
	DetailsURL  string          `json:"details_url,omitempty" db:"details_url"`
	UPCs        []string        `json:"upcs,omitempty" db:"upcs"`
	VINs        []string        `json:"vins,omitempty" db:"vins"`
	RawPayload  json.RawMessage `json:"-" db:"raw_payload"`
	RemedyHist  []RemedyUpdate  `json:"remedy_updates" db:"remedy_updates"`
	FetchedAt   time.Time       `json:"fetched_at" db:"fetched_at"`
	InsertedAt  time.Time       `json:"inserted_at" db:"inserted_at"`
}

// LastRemedy returns the most recent remedy update, or nil when none exist.
func (r *Recall) LastRemedy() *RemedyUpdate {
	if len(r.RemedyHist) == 0 {
		return nil
	}
	return &r.RemedyHist[len(r.RemedyHist)-1]
}
