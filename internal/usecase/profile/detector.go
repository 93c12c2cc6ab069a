package profile

import (
	"math"
	"strings"
	"unicode"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/usecase/season"
)

const (
	// minStructuralConfidence — ниже этого порога структурный сигнал не определяет профиль.
	minStructuralConfidence = 0.3
	// overrideThreshold — оценка текста, начиная с которой текст может перебить структуру.
	overrideThreshold = 0.3

	ReasonConfidenceInsufficient = "confidence_insufficient"
	keywordReasonPrefix          = "keyword:"
)

// Detector определяет поведенческий профиль бронирования.
// Не хранит изменяемого состояния и безопасен для параллельного использования.
type Detector struct {
	calendar              domain.SeasonCalendar
	keywords              map[domain.ProfileCode][]string
	keepStructuralReasons bool
}

// Option настраивает Detector.
type Option func(*Detector)

// WithCalendar подменяет календарь каникул.
func WithCalendar(cal domain.SeasonCalendar) Option {
	return func(d *Detector) {
		if cal != nil {
			d.calendar = cal
		}
	}
}

// WithKeywords подменяет словарь ключевых слов.
func WithKeywords(keywords map[domain.ProfileCode][]string) Option {
	return func(d *Detector) {
		if len(keywords) > 0 {
			d.keywords = normalizeKeywords(keywords)
		}
	}
}

// WithOverrideKeepsStructuralReasons сохраняет структурные причины, когда текст перебивает профиль.
func WithOverrideKeepsStructuralReasons(keep bool) Option {
	return func(d *Detector) {
		d.keepStructuralReasons = keep
	}
}

// NewDetector создаёт классификатор.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		calendar: season.Calendar{},
		keywords: normalizeKeywords(DefaultKeywords),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

type accumulator struct {
	score   float64
	reasons []string
}

func (a *accumulator) add(points float64, reason string) {
	a.score += points
	a.reasons = append(a.reasons, reason)
}

// StructuralScores возвращает оценки по каждому профилю без учёта текста.
func (d *Detector) StructuralScores(signal domain.BookingSignal) map[domain.ProfileCode]float64 {
	acc := d.score(signal)
	out := make(map[domain.ProfileCode]float64, len(acc))
	for code, a := range acc {
		out[code] = a.score
	}
	return out
}

// DetectProfile определяет профиль по структуре бронирования и, если есть, по переписке.
func (d *Detector) DetectProfile(signal domain.BookingSignal) domain.ProfileResult {
	acc := d.score(signal)

	winner := domain.ScoredProfiles[0]
	for _, code := range domain.ScoredProfiles[1:] {
		if acc[code].score > acc[winner].score {
			winner = code
		}
	}

	best := acc[winner]
	result := domain.ProfileResult{
		Profile:    winner,
		Confidence: clamp(best.score),
		Reasons:    append([]string(nil), best.reasons...),
	}
	if best.score < minStructuralConfidence {
		result.Profile = domain.ProfileDefault
		result.Reasons = append(result.Reasons, ReasonConfidenceInsufficient)
	}

	if len(signal.FreeTextMessages) > 0 {
		result = d.enrich(result, signal.FreeTextMessages)
	}
	return result
}

func (d *Detector) score(signal domain.BookingSignal) map[domain.ProfileCode]*accumulator {
	acc := make(map[domain.ProfileCode]*accumulator, len(domain.ScoredProfiles))
	for _, code := range domain.ScoredProfiles {
		acc[code] = &accumulator{}
	}

	guests := signal.GuestCount
	days := signal.StayDurationDays
	category := domain.PropertyCategory(strings.ToLower(strings.TrimSpace(string(signal.PropertyCategory))))
	schoolHoliday := d.calendar.IsSchoolHoliday(signal.StayDate)
	vacation := d.calendar.IsVacationPeriod(signal.StayDate)

	family := acc[domain.ProfileFamily]
	if signal.HasChildren {
		family.add(0.5, "children_present")
	}
	if guests >= 3 && schoolHoliday {
		family.add(0.3, "group_during_school_holiday")
	}
	if guests >= 4 {
		family.add(0.2, "large_group")
	}
	if category == domain.PropertyHouse || category == domain.PropertyVilla {
		family.add(0.1, "family_property")
	}

	traveler := acc[domain.ProfileTraveler]
	if guests == 1 && days <= 3 {
		traveler.add(0.4, "solo_short_stay")
	}
	if guests == 1 && (category == domain.PropertyStudio || category == domain.PropertyApartment) {
		traveler.add(0.3, "solo_compact_property")
	}
	if !vacation && !schoolHoliday {
		traveler.add(0.15, "off_season")
	}
	if days <= 2 {
		traveler.add(0.1, "very_short_stay")
	}

	escape := acc[domain.ProfileEscape]
	if guests == 2 && days <= 4 {
		escape.add(0.45, "couple_short_stay")
	}
	if guests == 2 && !signal.HasChildren {
		escape.add(0.2, "couple_without_children")
	}
	if guests == 2 && (category == domain.PropertyApartment || category == domain.PropertyVilla) {
		escape.add(0.1, "couple_property")
	}

	adventure := acc[domain.ProfileAdventure]
	if days >= 5 && vacation {
		adventure.add(0.4, "long_stay_vacation")
	}
	if days >= 7 {
		adventure.add(0.2, "extended_stay")
	}
	if guests >= 2 && guests <= 4 && vacation {
		adventure.add(0.15, "group_vacation")
	}

	for _, a := range acc {
		a.score = round(a.score)
	}
	return acc
}

type messageMatch struct {
	score    float64
	keywords []string
}

func (d *Detector) enrich(result domain.ProfileResult, messages []string) domain.ProfileResult {
	text := normalizeText(strings.Join(messages, " "))

	matches := make(map[domain.ProfileCode]messageMatch, len(domain.ScoredProfiles))
	var found []string
	for _, code := range domain.ScoredProfiles {
		var m messageMatch
		for _, kw := range d.keywords[code] {
			if containsWord(text, kw) {
				m.score += messageKeywordWeight
				m.keywords = append(m.keywords, kw)
			}
		}
		m.score = round(m.score)
		matches[code] = m
		found = append(found, m.keywords...)
	}
	result.KeywordsFound = found

	top := domain.ScoredProfiles[0]
	for _, code := range domain.ScoredProfiles[1:] {
		if matches[code].score > matches[top].score {
			top = code
		}
	}
	best := matches[top]
	if best.score <= 0 {
		return result
	}

	switch {
	case top == result.Profile:
		result.Confidence = clamp(result.Confidence + best.score)
		result.Reasons = append(result.Reasons, keywordReasons(best.keywords)...)
	case best.score > overrideThreshold && best.score > result.Confidence:
		reasons := keywordReasons(best.keywords)
		if d.keepStructuralReasons {
			reasons = append(append([]string(nil), result.Reasons...), reasons...)
		}
		result.Profile = top
		result.Confidence = clamp(best.score)
		result.Reasons = reasons
	default:
		result.Confidence = clamp(result.Confidence + best.score/2)
	}
	return result
}

func keywordReasons(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		out = append(out, keywordReasonPrefix+kw)
	}
	return out
}

// normalizeText приводит текст к нижнему регистру и заменяет пунктуацию пробелами.
func normalizeText(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return " " + strings.Join(strings.Fields(mapped), " ") + " "
}

// pluralSuffixes — окончания множественного числа, которые засчитываются вместе с ключевым словом.
var pluralSuffixes = []string{"", "s", "x"}

// containsWord ищет ключевое слово целиком, допуская окончание множественного числа.
func containsWord(text, keyword string) bool {
	for _, suffix := range pluralSuffixes {
		if strings.Contains(text, " "+keyword+suffix+" ") {
			return true
		}
	}
	return false
}

func normalizeKeywords(in map[domain.ProfileCode][]string) map[domain.ProfileCode][]string {
	out := make(map[domain.ProfileCode][]string, len(in))
	for code, words := range in {
		for _, w := range words {
			w = strings.Join(strings.Fields(strings.ToLower(w)), " ")
			if w == "" {
				continue
			}
			out[code] = append(out[code], w)
		}
	}
	return out
}

func clamp(v float64) float64 {
	v = round(v)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
