package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
)

// =============================================================================
// POLICY AND EMPATHETIC TABLE TESTS
// =============================================================================

func TestApplyPolicy(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
		ok       bool
	}{
		{"refund decision", "Will I get a refund if I cancel", RefundBoundary, true},
		{"policy explanation", "What is the cancellation policy", RefundFullPolicy, true},
		{"tell me about refunds", "Tell me about refunds", RefundFullPolicy, true},
		{"discount", "Any discount for students", DiscountBoundary, true},
		{"first time", "Is there something for a first time traveller", DiscountBoundary, true},
		{"plain price", "What is the price", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ApplyPolicy(tt.question)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmpatheticTable(t *testing.T) {
	tests := []struct {
		question string
		want     string
		ok       bool
	}{
		{"How many people registered so far", GroupSizeReply, true},
		{"How many women travelers are there", GenderRatioReply, true},
		{"Let me think about it", DecisionDeferred, true},
		{"Is pickup included", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, ok := Empathetic.Respond(tt.question)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmpatheticTableOrder(t *testing.T) {
	// Test that the first matching rule wins
	rule, ok := Empathetic.Match("can you share how many female travellers")
	assert.True(t, ok)
	assert.Equal(t, "group_size", rule.Name)
}

// =============================================================================
// SEAT ENGINE TESTS
// =============================================================================

func seatTrip(batches ...trips.Batch) *trips.Trip {
	return &trips.Trip{TripID: "t", Batches: trips.Batches{Available: batches}}
}

func alwaysSeat(ctx context.Context, text string) string { return SeatIntent }
func neverSeat(ctx context.Context, text string) string  { return "OTHER" }

func TestCheckSeats(t *testing.T) {
	ctx := context.Background()
	rajasthan := seatTrip(
		trips.Batch{StartDate: "2026-02-08", SeatsLeft: "8"},
		trips.Batch{StartDate: "2026-01-24", SeatsLeft: "0"},
	)

	tests := []struct {
		name     string
		trip     *trips.Trip
		question string
		detect   IntentDetector
		want     string
		ok       bool
	}{
		{
			name:     "date not in batches names next date",
			trip:     rajasthan,
			question: "Are seats available on 20th January 2026?",
			want:     "Unfortunately, we do not have seats on this date (20th January 2026), but we do have seats on next available date (8th February 2026).",
			ok:       true,
		},
		{
			name:     "full batch names next date",
			trip:     rajasthan,
			question: "Any seats left on 2026-01-24",
			want:     "Unfortunately, we do not have seats on this date (24th January 2026), but we do have seats on next available date (8th February 2026).",
			ok:       true,
		},
		{
			name:     "open batch",
			trip:     rajasthan,
			question: "seats left on 8 February 2026",
			want:     seatsAvailable,
			ok:       true,
		},
		{
			name:     "no date any seats",
			trip:     rajasthan,
			question: "Are there seats?",
			want:     seatsAvailable,
			ok:       true,
		},
		{
			name:     "dynamic placeholder counts as zero",
			trip:     seatTrip(trips.Batch{StartDate: "2026-01-18", SeatsLeft: DynamicSeats}),
			question: "how many seats are left",
			want:     "Unfortunately, we do not have seats available right now.",
			ok:       true,
		},
		{
			name:     "non numeric on date is limited",
			trip:     seatTrip(trips.Batch{StartDate: "2026-01-18", SeatsLeft: "few"}),
			question: "seats available on 18th January 2026",
			want:     seatsLimited,
			ok:       true,
		},
		{
			name:     "date question is not a seat question",
			trip:     rajasthan,
			question: "What dates are available?",
			ok:       false,
		},
		{
			name:     "ambiguous confirmed by detector",
			trip:     rajasthan,
			question: "Is the trip available?",
			detect:   alwaysSeat,
			want:     seatsAvailable,
			ok:       true,
		},
		{
			name:     "ambiguous rejected by detector",
			trip:     rajasthan,
			question: "Is the trip available?",
			detect:   neverSeat,
			ok:       false,
		},
		{
			name:     "no trip",
			question: "Are there seats?",
			ok:       false,
		},
		{
			name:     "no batches",
			trip:     seatTrip(),
			question: "Are there seats?",
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CheckSeats(ctx, tt.trip, tt.question, tt.detect)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextAvailable(t *testing.T) {
	batches := []trips.Batch{
		{StartDate: "2026-03-01", SeatsLeft: "2"},
		{StartDate: "2026-01-10", SeatsLeft: "0"},
		{StartDate: "2026-02-01", SeatsLeft: DynamicSeats},
		{StartDate: "", SeatsLeft: "9"},
	}

	next := NextAvailable(batches, "")
	if assert.NotNil(t, next) {
		assert.Equal(t, "2026-03-01", next.StartDate)
	}
	assert.Nil(t, NextAvailable(batches, "2026-03-01"))
}

func TestFormatDate(t *testing.T) {
	tests := map[string]string{
		"2026-01-24": "24th January 2026",
		"2026-02-01": "1st February 2026",
		"2026-03-02": "2nd March 2026",
		"2026-04-03": "3rd April 2026",
		"2026-05-11": "11th May 2026",
		"2026-06-12": "12th June 2026",
		"2026-07-13": "13th July 2026",
		"2026-08-21": "21st August 2026",
		"2026-08-22": "22nd August 2026",
		"2026-08-23": "23rd August 2026",
		"not-a-date": "not-a-date",
	}

	for in, want := range tests {
		assert.Equal(t, want, FormatDate(in), in)
	}
}

func TestSeatCount(t *testing.T) {
	n, numeric := SeatCount(DynamicSeats)
	assert.Equal(t, 0, n)
	assert.True(t, numeric)

	n, numeric = SeatCount(" 4 ")
	assert.Equal(t, 4, n)
	assert.True(t, numeric)

	_, numeric = SeatCount("plenty")
	assert.False(t, numeric)
}
