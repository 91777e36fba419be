package receipt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoAmount is returned when no plausible rupiah amount is found.
var ErrNoAmount = errors.New("no amount detected")

// amounts below this are treated as noise (dates, reference numbers)
const minPlausible = 500

const maxPlausible = 999_999_999

var (
	// "Rp 10.000", "IDR 10,000.00", "Rp10000"
	currencyRE = regexp.MustCompile(`(?i)(rp\.?|idr)\s*([0-9]{1,3}(?:[.,][0-9]{3})+(?:[.,][0-9]{2})?|[0-9]{4,9})`)
	// "Total: 25.000", "Jumlah 25.000,00", "Nominal Rp 25.000"
	labelRE = regexp.MustCompile(`(?i)(total|jumlah|nominal|setoran|amount)\s*:?\s*(?:rp\.?|idr)?\s*([0-9]{1,3}(?:[.,][0-9]{3})+(?:[.,][0-9]{2})?|[0-9]{4,9})`)
	// bare grouped numbers "150.000"
	groupedRE = regexp.MustCompile(`\b([0-9]{1,3}(?:\.[0-9]{3})+(?:,[0-9]{2})?)\b`)
	// "25 ribu", "25rb"
	ribuRE = regexp.MustCompile(`(?i)\b([0-9]{1,3})\s*(ribu|rb)\b`)

	centsRE = regexp.MustCompile(`[.,][0-9]{2}$`)
)

// Candidate is one amount found in OCR text.
type Candidate struct {
	Amount int64
	Raw    string
	Score  int
}

// ParseRupiah turns "10.000,00", "7,500.00" or "Rp 25.000" into whole rupiah.
// A trailing two-digit decimal part is dropped.
func ParseRupiah(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if centsRE.MatchString(s) {
		s = s[:len(s)-3]
	}
	digits := onlyDigits(s)
	if digits == "" {
		return 0, fmt.Errorf("no digits in %q", s)
	}
	amt, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", digits, err)
	}
	return amt, nil
}

// Candidates lists every amount found in text, best first.
func Candidates(text string) []Candidate {
	text = normalize(text)
	seen := map[int64]int{}
	var out []Candidate
	add := func(raw string, amt int64, score int) {
		if amt < minPlausible || amt > maxPlausible {
			return
		}
		if i, ok := seen[amt]; ok {
			if score > out[i].Score {
				out[i].Score = score
				out[i].Raw = raw
			}
			return
		}
		seen[amt] = len(out)
		out = append(out, Candidate{Amount: amt, Raw: raw, Score: score})
	}

	for _, m := range labelRE.FindAllStringSubmatch(text, -1) {
		if amt, err := ParseRupiah(m[2]); err == nil {
			score := 8
			if strings.EqualFold(m[1], "total") || strings.EqualFold(m[1], "jumlah") {
				score += 2
			}
			if strings.Contains(strings.ToLower(m[0]), "rp") || strings.Contains(strings.ToLower(m[0]), "idr") {
				score += 3
			}
			add(m[0], amt, score)
		}
	}
	for _, m := range currencyRE.FindAllStringSubmatch(text, -1) {
		if amt, err := ParseRupiah(m[2]); err == nil {
			score := 6
			if strings.ContainsAny(m[2], ".,") {
				score++
			}
			add(m[0], amt, score)
		}
	}
	for _, m := range groupedRE.FindAllStringSubmatch(text, -1) {
		if amt, err := ParseRupiah(m[1]); err == nil {
			add(m[1], amt, 3)
		}
	}
	for _, m := range ribuRE.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			add(m[0], n*1000, 4)
		}
	}

	// higher score first, then the larger amount
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && better(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Amount > b.Amount
}

// ExtractAmount picks the most likely amount in text and a confidence in
// [0, 1] derived from how it was found.
func ExtractAmount(text string) (int64, float64, error) {
	cands := Candidates(text)
	if len(cands) == 0 {
		return 0, 0, ErrNoAmount
	}
	best := cands[0]
	conf := float64(best.Score) / 13
	if conf > 1 {
		conf = 1
	}
	// a close runner-up with a different amount lowers trust
	if len(cands) > 1 && cands[1].Score >= best.Score-1 {
		conf *= 0.7
	}
	return best.Amount, conf, nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalize collapses whitespace so patterns can span OCR line breaks.
func normalize(t string) string {
	return strings.Join(strings.Fields(t), " ")
}
