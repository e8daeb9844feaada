package rules

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/travel/intents"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
)

// SeatIntent is the detect_intent label for seat questions.
const SeatIntent = "SEAT_AVAILABILITY"

// DynamicSeats is the catalog placeholder for an unknown seat count.
const DynamicSeats = "<dynamic>"

const (
	seatsAvailable = "Seats are available, book fast!"
	seatsLimited   = "Limited seats available — book soon to secure your spot."
)

// IntentDetector labels an ambiguous question. Only SeatIntent matters here.
type IntentDetector func(ctx context.Context, text string) string

var (
	clearSeatPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(seats?|seat\s+availability)\s+(available|left|remaining)\b`),
		regexp.MustCompile(`\b(are|is)\s+there\s+seats?\b`),
		regexp.MustCompile(`\b(do|does)\s+(you|we)\s+have\s+seats?\b`),
		regexp.MustCompile(`\bcan\s+i\s+book\b`),
		regexp.MustCompile(`\bis\s+it\s+available\s+to\s+book\b`),
		regexp.MustCompile(`\bseats?\s+left\b`),
		regexp.MustCompile(`\bseats?\s+remaining\b`),
		regexp.MustCompile(`\bhow\s+many\s+seats?\s+(are\s+)?(left|available|remaining)\b`),
	}
	ambiguousSeatKeywords = []string{"available", "book", "booking"}
)

// IsSeatQuestion decides whether a question asks about seats. Date questions
// never do. Clear patterns match directly; ambiguous ones ask detect.
func IsSeatQuestion(ctx context.Context, question string, detect IntentDetector) bool {
	lowered := strings.ToLower(question)
	if intents.IsDateQuestion(lowered) {
		return false
	}
	for _, p := range clearSeatPatterns {
		if p.MatchString(lowered) {
			return true
		}
	}
	if detect == nil || !(Rule{Keywords: ambiguousSeatKeywords}).Matches(lowered) {
		return false
	}
	return detect(ctx, question) == SeatIntent
}

// CheckSeats answers a seat question from the trip's batches. ok is false
// when the question is not about seats or the trip lists no batches.
func CheckSeats(ctx context.Context, trip *trips.Trip, question string, detect IntentDetector) (string, bool) {
	if trip == nil || question == "" {
		return "", false
	}
	if !IsSeatQuestion(ctx, question, detect) {
		return "", false
	}
	batches := trip.Batches.Available
	if len(batches) == 0 {
		return "", false
	}

	if date, found := intents.ExtractDate(question); found {
		return seatsOnDate(batches, date), true
	}

	for _, b := range batches {
		if n, numeric := SeatCount(b.SeatsLeft); !numeric || n > 0 {
			return seatsAvailable, true
		}
	}
	if next := NextAvailable(batches, ""); next != nil {
		return fmt.Sprintf("Unfortunately, we do not have seats available right now, but we do have seats on next available date (%s).", FormatDate(next.StartDate)), true
	}
	return "Unfortunately, we do not have seats available right now.", true
}

func seatsOnDate(batches []trips.Batch, date string) string {
	for _, b := range batches {
		if b.StartDate != date {
			continue
		}
		n, numeric := SeatCount(b.SeatsLeft)
		if !numeric {
			return seatsLimited
		}
		if n > 0 {
			return seatsAvailable
		}
		break
	}
	return noSeatsOn(date, NextAvailable(batches, date))
}

func noSeatsOn(date string, next *trips.Batch) string {
	if next != nil {
		return fmt.Sprintf("Unfortunately, we do not have seats on this date (%s), but we do have seats on next available date (%s).", FormatDate(date), FormatDate(next.StartDate))
	}
	return fmt.Sprintf("Unfortunately, we do not have seats on this date (%s).", FormatDate(date))
}

// SeatCount parses a seats_left value. The dynamic placeholder counts as
// zero; other non-numeric values report numeric=false.
func SeatCount(seatsLeft string) (n int, numeric bool) {
	if seatsLeft == DynamicSeats {
		return 0, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(seatsLeft))
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextAvailable returns the earliest batch starting after the given date
// (any date when after is empty) that has seats. A non-numeric seat count
// counts as available.
func NextAvailable(batches []trips.Batch, after string) *trips.Batch {
	sorted := append([]trips.Batch(nil), batches...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartDate < sorted[j].StartDate })

	for i := range sorted {
		b := sorted[i]
		if b.StartDate == "" || (after != "" && b.StartDate <= after) {
			continue
		}
		if n, numeric := SeatCount(b.SeatsLeft); !numeric || n > 0 {
			return &b
		}
	}
	return nil
}

// FormatDate renders YYYY-MM-DD as "24th January 2026". Unparseable input
// is returned unchanged.
func FormatDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%d%s %s %d", t.Day(), OrdinalSuffix(t.Day()), t.Month(), t.Year())
}

// OrdinalSuffix returns st, nd, rd or th for a day of month.
func OrdinalSuffix(day int) string {
	if n := day % 100; n >= 11 && n <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
