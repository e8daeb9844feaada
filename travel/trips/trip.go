// Package trips holds the read-only trip catalog the handlers answer from.
package trips

import "encoding/json"

// Trip is one static trip document.
type Trip struct {
	TripID              string              `yaml:"trip_id" json:"trip_id"`
	Name                string              `yaml:"name" json:"name"`
	Source              string              `yaml:"source" json:"source,omitempty"`
	Destination         string              `yaml:"destination" json:"destination"`
	Duration            Duration            `yaml:"duration" json:"duration"`
	Summary             Summary             `yaml:"trip_summary" json:"trip_summary"`
	Batches             Batches             `yaml:"batches" json:"batches"`
	Itinerary           []ItineraryDay      `yaml:"itinerary" json:"itinerary"`
	ItineraryHighlights []string            `yaml:"itinerary_highlights" json:"itinerary_highlights,omitempty"`
	Accommodation       Accommodation       `yaml:"accommodation" json:"accommodation"`
	Logistics           Logistics           `yaml:"logistics" json:"logistics"`
	Pricing             Pricing             `yaml:"pricing" json:"pricing"`
	Inclusions          []string            `yaml:"inclusions" json:"inclusions"`
	Exclusions          []string            `yaml:"exclusions" json:"exclusions"`
	ThingsToCarry       map[string][]string `yaml:"things_to_carry" json:"things_to_carry,omitempty"`
	Weather             map[string]string   `yaml:"weather_expectation" json:"weather_expectation,omitempty"`
	Safety              Safety              `yaml:"safety_profile" json:"safety_profile"`
}

type Duration struct {
	Days   int `yaml:"days" json:"days"`
	Nights int `yaml:"nights" json:"nights"`
}

type Summary struct {
	Description    string   `yaml:"description" json:"description"`
	RecommendedFor []string `yaml:"recommended_for" json:"recommended_for,omitempty"`
	Categories     []string `yaml:"trip_category" json:"trip_category,omitempty"`
}

// Batches lists departures. SeatsLeft is kept as text because the catalog
// may carry the "<dynamic>" placeholder.
type Batches struct {
	Note      string  `yaml:"note" json:"note,omitempty"`
	Available []Batch `yaml:"available_batches" json:"available_batches"`
}

type Batch struct {
	BatchID   string `yaml:"batch_id" json:"batch_id"`
	StartDate string `yaml:"start_date" json:"start_date"`
	EndDate   string `yaml:"end_date" json:"end_date"`
	SeatsLeft string `yaml:"seats_left" json:"seats_left"`
	Status    string `yaml:"status" json:"status"`
}

type ItineraryDay struct {
	Day        int      `yaml:"day" json:"day"`
	Title      string   `yaml:"title" json:"title"`
	Activities []string `yaml:"activities" json:"activities"`
	Overnight  *string  `yaml:"overnight" json:"overnight,omitempty"`
}

type Accommodation struct {
	Note  string `yaml:"note" json:"note,omitempty"`
	Stays []Stay `yaml:"stays" json:"stays"`
}

type Stay struct {
	Location    string `yaml:"location" json:"location"`
	Type        string `yaml:"type" json:"type"`
	RoomSharing string `yaml:"room_sharing" json:"room_sharing"`
}

type Logistics struct {
	MeetingPoint string `yaml:"meeting_point" json:"meeting_point"`
	Pickup       Pickup `yaml:"pickup" json:"pickup"`
	Dropoff      string `yaml:"dropoff" json:"dropoff"`
}

// Pickup.Included is "true" or "false" as text.
type Pickup struct {
	Included string `yaml:"included" json:"included"`
	Notes    string `yaml:"notes" json:"notes"`
}

type Pricing struct {
	BasePrice string `yaml:"base_price" json:"base_price"`
	Currency  string `yaml:"currency" json:"currency"`
	Notes     string `yaml:"notes" json:"notes"`
}

type Safety struct {
	RiskLevel string   `yaml:"risk_level" json:"risk_level"`
	Notes     []string `yaml:"notes" json:"notes"`
}

// JSON renders the trip for prompts.
func (t *Trip) JSON() string {
	if t == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// PickupIncluded reports whether pickup is part of the package.
func (t *Trip) PickupIncluded() bool {
	return t != nil && t.Logistics.Pickup.Included == "true"
}
