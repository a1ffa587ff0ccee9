package calculator

import (
	"regexp"
	"strconv"
	"strings"
)

// PriceRange is an inclusive price band with Min <= Max.
type PriceRange struct {
	Min float64
	Max float64
}

// Mid returns the midpoint of the band.
func (r PriceRange) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// Contains reports whether price lies inside the band, bounds included.
func (r PriceRange) Contains(price float64) bool {
	return price >= r.Min && price <= r.Max
}

var (
	numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	rangeRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)`)
	toWordRe = regexp.MustCompile(`(?i)\bto\b`)

	noiseReplacer = strings.NewReplacer("₹", "", "$", "", ",", "")
	dashReplacer  = strings.NewReplacer(
		"‐", "-", // hyphen
		"‑", "-", // non-breaking hyphen
		"‒", "-", // figure dash
		"–", "-", // en dash
		"—", "-", // em dash
		"―", "-", // horizontal bar
		"−", "-", // minus sign
		"﹣", "-", // small hyphen-minus
		"－", "-", // fullwidth hyphen-minus
	)
)

func clean(text string) string {
	return strings.TrimSpace(noiseReplacer.Replace(text))
}

// ParseRange reads an entry-zone string such as "650-570", "₹570 – 650" or
// "570 to 650". The two bounds may appear in either order. A single number
// yields a zero-width band. ok is false when no number is present.
func ParseRange(text string) (r PriceRange, ok bool) {
	s := clean(text)
	if s == "" {
		return PriceRange{}, false
	}
	s = dashReplacer.Replace(s)
	s = toWordRe.ReplaceAllString(s, "-")

	if m := rangeRe.FindStringSubmatch(s); m != nil {
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA == nil && errB == nil {
			if a > b {
				a, b = b, a
			}
			return PriceRange{Min: a, Max: b}, true
		}
	}

	v, ok := ParsePrice(s)
	if !ok {
		return PriceRange{}, false
	}
	return PriceRange{Min: v, Max: v}, true
}

// ParsePrice extracts the first number from a free-text price such as
// "₹1,234.50" or "Target 720". ok is false when no number is present.
func ParsePrice(text string) (float64, bool) {
	m := numberRe.FindString(clean(text))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
