// Package rules holds the deterministic answer tables: fixed messages, the
// pricing policy table, the empathetic table and the seat engine.
package rules

// Boundary and redirect messages.
const (
	RefundBoundary   = "I can't help with guarantees or detailed refund decisions here."
	RefundFullPolicy = "21+ days: Free cancellation, full refund. Within 21 days: No refund, full advance retained. No modification allowed within 21 day non cancellation period."
	DiscountBoundary = "I can't confirm discounts or special offers here. The listed price is the current trip price; our team can share any active offers when you're ready to book."
	MalformedPrompt  = "Could you please rephrase your question? I want to make sure I understand correctly."
	HostileRedirect  = "I'm here to help. Let's focus on how I can assist you with your travel plans."
)

// Reply-level messages.
const (
	ComposeNoFacts    = "I'm here to help. Could you provide more details about your question?"
	MergeNothing      = "I'm here to help. Could you rephrase your question?"
	BookingCelebrate  = "Zo Zo 😍"
	CallFollowUp      = "I can help with that 🙂\nBefore I arrange a call, could you briefly share:\n1. What you'd like to discuss on the call?\n2. Your preferred time/availability for the call?"
	CallEscalated     = "Perfect! I've noted your request.\n\nOur team will reach out to you at your preferred time."
	DecisionDeferred  = "No problem! Take your time. Feel free to reach out when you're ready to book or if you have any questions."
	GroupSizeReply    = "Group trips like this usually have around 8–12 participants, and registrations typically continue until close to the departure date."
	GenderRatioReply  = "Usually, we have around 3–4 women travelers, and the group is generally a comfortable mix by the time the trip starts."
	GeneralTripPrompt = "What is the description, duration, destination, itinerary highlights, and key features of this trip?"
)

// Per-handler clarify fallbacks, used when a block yields no facts.
const (
	LogisticsFallback = "I'd be happy to share logistics details. Would you like to know about pickup points, meeting locations, or transportation arrangements?"
	PricingFallback   = "I'd be happy to share pricing details. Would you like to know about the trip cost, payment options, or booking information?"
	ItineraryFallback = "Itinerary details are available upon booking confirmation."

	UnknownTripFallback        = "I'd be happy to share that information. Could you clarify which trip you're asking about (e.g., Kashmir, Andaman)?"
	UnknownDestinationFallback = "I don't have information about a trip to that destination. Could you clarify which trip you're asking about (e.g., Kashmir, Andaman)?"
)
