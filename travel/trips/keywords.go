package trips

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var highlightStopWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "from": true, "through": true,
}

// Keywords derives the match keywords of a trip from its destination, name,
// itinerary highlights and meeting point. Order is first occurrence.
func Keywords(t *Trip) []string {
	var kws keywordSet

	if dest := strings.ToLower(strings.TrimSpace(t.Destination)); dest != "" {
		main := strings.TrimSpace(strings.Split(dest, ",")[0])
		kws.add(main)
		if strings.Contains(main, " ") {
			for _, w := range strings.Fields(main) {
				kws.addWord(trimPunct(w))
			}
		}
		if strings.Contains(dest, " ") {
			kws.add(dest)
		}
	}

	if clean := cleanName(strings.ToLower(t.Name)); clean != "" {
		kws.add(clean)
		for _, w := range strings.Fields(clean) {
			kws.addWord(trimPunct(w))
		}
	}

	for _, h := range t.ItineraryHighlights {
		lowered := strings.ToLower(h)
		if prefix, _, found := strings.Cut(lowered, ":"); found {
			kws.add(strings.TrimSpace(prefix))
		}
		for _, w := range strings.Fields(lowered) {
			w = trimPunct(w)
			if highlightStopWords[w] || !strings.ContainsFunc(w, unicode.IsLetter) {
				continue
			}
			kws.addWord(w)
		}
	}

	if mp := strings.ToLower(t.Logistics.MeetingPoint); mp != "" {
		city, _, _ := strings.Cut(mp, "(")
		kws.add(strings.TrimSpace(city))
	}

	return kws.list
}

// cleanName strips marketing words and parentheses from a lowercased name.
func cleanName(name string) string {
	r := strings.NewReplacer("experience", "", "winter edition", "", "(", "", ")", "")
	return strings.Join(strings.Fields(r.Replace(name)), " ")
}

func trimPunct(w string) string {
	return strings.Trim(w, ".,;:()[]{}")
}

type keywordSet struct {
	list []string
	seen map[string]bool
}

func (k *keywordSet) add(kw string) {
	if kw == "" {
		return
	}
	if k.seen == nil {
		k.seen = make(map[string]bool)
	}
	if k.seen[kw] {
		return
	}
	k.seen[kw] = true
	k.list = append(k.list, kw)
}

// addWord keeps only words longer than three letters.
func (k *keywordSet) addWord(w string) {
	if utf8.RuneCountInString(w) > 3 {
		k.add(w)
	}
}
