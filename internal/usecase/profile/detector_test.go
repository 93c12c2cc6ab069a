package profile

import (
	"math"
	"slices"
	"testing"
	"time"

	"guest-messaging/internal/domain"
)

// 12 марта 2025: среда вне каникул и праздников.
var plainWeekday = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDetectProfileEscapeCouple(t *testing.T) {
	d := NewDetector()
	res := d.DetectProfile(domain.BookingSignal{
		GuestCount:       2,
		StayDurationDays: 3,
		PropertyCategory: domain.PropertyApartment,
		StayDate:         plainWeekday,
	})
	if res.Profile != domain.ProfileEscape {
		t.Fatalf("ожидали Escape, получили %s", res.Profile)
	}
	if res.Confidence < 0.65 || res.Confidence > 0.75 {
		t.Fatalf("ожидали уверенность 0.65–0.75, получили %v", res.Confidence)
	}
	want := []string{"couple_short_stay", "couple_without_children", "couple_property"}
	if !slices.Equal(res.Reasons, want) {
		t.Fatalf("ожидали причины %v, получили %v", want, res.Reasons)
	}
}

func TestDetectProfileFallsBackToDefault(t *testing.T) {
	d := NewDetector()
	res := d.DetectProfile(domain.BookingSignal{
		GuestCount:       1,
		StayDurationDays: 10,
		PropertyCategory: "unknown",
		StayDate:         plainWeekday,
	})
	if res.Profile != domain.ProfileDefault {
		t.Fatalf("ожидали Default, получили %s", res.Profile)
	}
	if !slices.Contains(res.Reasons, ReasonConfidenceInsufficient) {
		t.Fatalf("ожидали причину %s, получили %v", ReasonConfidenceInsufficient, res.Reasons)
	}
	if !approx(res.Confidence, 0.2) {
		t.Fatalf("ожидали уверенность 0.2, получили %v", res.Confidence)
	}
}

func TestDetectProfileTieKeepsFamilyFirst(t *testing.T) {
	d := NewDetector()
	// суббота вне каникул: Family и Adventure набирают по 0.6
	signal := domain.BookingSignal{
		GuestCount:       1,
		StayDurationDays: 7,
		PropertyCategory: domain.PropertyHouse,
		StayDate:         time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
		HasChildren:      true,
	}
	scores := d.StructuralScores(signal)
	if !approx(scores[domain.ProfileFamily], scores[domain.ProfileAdventure]) {
		t.Fatalf("ожидали равные оценки, получили %v", scores)
	}
	if res := d.DetectProfile(signal); res.Profile != domain.ProfileFamily {
		t.Fatalf("при равенстве ожидали Family, получили %s", res.Profile)
	}
}

func TestDetectProfileZeroDateCountsAsOffSeason(t *testing.T) {
	res := NewDetector().DetectProfile(domain.BookingSignal{GuestCount: 5, StayDurationDays: 4})
	if res.Profile != domain.ProfileDefault {
		t.Fatalf("ожидали Default, получили %s", res.Profile)
	}
	want := []string{"large_group", ReasonConfidenceInsufficient}
	if !slices.Equal(res.Reasons, want) {
		t.Fatalf("ожидали причины %v, получили %v", want, res.Reasons)
	}
}

func TestDetectProfileFamilyInSchoolHoliday(t *testing.T) {
	d := NewDetector()
	res := d.DetectProfile(domain.BookingSignal{
		GuestCount:       4,
		StayDurationDays: 7,
		PropertyCategory: domain.PropertyHouse,
		StayDate:         time.Date(2025, time.August, 10, 0, 0, 0, 0, time.UTC),
		HasChildren:      true,
	})
	if res.Profile != domain.ProfileFamily {
		t.Fatalf("ожидали Family, получили %s", res.Profile)
	}
	if res.Confidence != 1 {
		t.Fatalf("ожидали уверенность, обрезанную до 1, получили %v", res.Confidence)
	}
}

func TestFamilyScoreIsMonotonic(t *testing.T) {
	d := NewDetector()
	dates := []time.Time{
		plainWeekday,
		time.Date(2024, time.December, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC),
		{},
	}
	for _, date := range dates {
		for _, days := range []int{1, 3, 7, 14} {
			strong := d.StructuralScores(domain.BookingSignal{HasChildren: true, GuestCount: 4, PropertyCategory: domain.PropertyVilla, StayDurationDays: days, StayDate: date})
			weak := d.StructuralScores(domain.BookingSignal{HasChildren: false, GuestCount: 1, PropertyCategory: domain.PropertyStudio, StayDurationDays: days, StayDate: date})
			if strong[domain.ProfileFamily] <= weak[domain.ProfileFamily] {
				t.Fatalf("ожидали рост оценки Family: %v <= %v (date=%s, days=%d)", strong[domain.ProfileFamily], weak[domain.ProfileFamily], date.Format("2006-01-02"), days)
			}
		}
	}
}

func TestDetectProfileKeywordsCorroborateWinner(t *testing.T) {
	d := NewDetector()
	res := d.DetectProfile(domain.BookingSignal{
		GuestCount:       2,
		StayDurationDays: 3,
		PropertyCategory: domain.PropertyApartment,
		StayDate:         plainWeekday,
		FreeTextMessages: []string{"Week-end ROMANTIQUE", "c'est pour notre anniversaire !"},
	})
	if res.Profile != domain.ProfileEscape {
		t.Fatalf("ожидали Escape, получили %s", res.Profile)
	}
	if res.Confidence != 1 {
		t.Fatalf("ожидали уверенность 1, получили %v", res.Confidence)
	}
	if !slices.Contains(res.Reasons, "keyword:romantique") || !slices.Contains(res.Reasons, "keyword:anniversaire") {
		t.Fatalf("ожидали причины с ключевыми словами, получили %v", res.Reasons)
	}
	if !slices.Contains(res.Reasons, "couple_short_stay") {
		t.Fatalf("структурные причины должны сохраниться: %v", res.Reasons)
	}
}

func TestDetectProfileKeywordsOverride(t *testing.T) {
	signal := domain.BookingSignal{
		GuestCount:       1,
		StayDurationDays: 10,
		PropertyCategory: "unknown",
		StayDate:         plainWeekday,
		FreeTextMessages: []string{"On vient avec les enfants et le bébé, besoin d'une poussette"},
	}

	res := NewDetector().DetectProfile(signal)
	if res.Profile != domain.ProfileFamily {
		t.Fatalf("ожидали Family, получили %s", res.Profile)
	}
	if !approx(res.Confidence, 0.45) {
		t.Fatalf("ожидали уверенность 0.45, получили %v", res.Confidence)
	}
	want := []string{"keyword:enfant", "keyword:bébé", "keyword:poussette"}
	if !slices.Equal(res.Reasons, want) {
		t.Fatalf("ожидали только причины-ключевые слова %v, получили %v", want, res.Reasons)
	}

	kept := NewDetector(WithOverrideKeepsStructuralReasons(true)).DetectProfile(signal)
	if !slices.Contains(kept.Reasons, "extended_stay") || !slices.Contains(kept.Reasons, "keyword:poussette") {
		t.Fatalf("ожидали структурные и текстовые причины, получили %v", kept.Reasons)
	}
}

func TestDetectProfileKeywordsPartialCorroboration(t *testing.T) {
	res := NewDetector().DetectProfile(domain.BookingSignal{
		GuestCount:       2,
		StayDurationDays: 3,
		PropertyCategory: domain.PropertyApartment,
		StayDate:         plainWeekday,
		FreeTextMessages: []string{"besoin du wifi pour le travail"},
	})
	if res.Profile != domain.ProfileEscape {
		t.Fatalf("ожидали Escape, получили %s", res.Profile)
	}
	if !approx(res.Confidence, 0.9) {
		t.Fatalf("ожидали уверенность 0.9, получили %v", res.Confidence)
	}
	if !slices.Equal(res.KeywordsFound, []string{"travail", "wifi"}) {
		t.Fatalf("неожиданные ключевые слова: %v", res.KeywordsFound)
	}
}

func TestDetectProfileInvariants(t *testing.T) {
	d := NewDetector()
	categories := []domain.PropertyCategory{domain.PropertyStudio, domain.PropertyApartment, domain.PropertyHouse, domain.PropertyVilla, "boat"}
	dates := []time.Time{plainWeekday, time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC), time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)}
	for guests := 1; guests <= 6; guests++ {
		for days := 1; days <= 10; days++ {
			for _, cat := range categories {
				for _, date := range dates {
					for _, children := range []bool{false, true} {
						res := d.DetectProfile(domain.BookingSignal{GuestCount: guests, StayDurationDays: days, PropertyCategory: cat, StayDate: date, HasChildren: children, FreeTextMessages: []string{"kayak et randonnée"}})
						if !res.Profile.Valid() {
							t.Fatalf("неизвестный профиль %q", res.Profile)
						}
						if res.Confidence < 0 || res.Confidence > 1 {
							t.Fatalf("уверенность вне [0,1]: %v", res.Confidence)
						}
						if len(res.Reasons) == 0 {
							t.Fatalf("пустые причины для guests=%d days=%d cat=%s", guests, days, cat)
						}
					}
				}
			}
		}
	}
}

func TestKeywordsMatchWholeWords(t *testing.T) {
	d := NewDetector()
	res := d.DetectProfile(domain.BookingSignal{
		GuestCount:       2,
		StayDurationDays: 3,
		PropertyCategory: domain.PropertyApartment,
		StayDate:         plainWeekday,
		FreeTextMessages: []string{"On peut skipper le ménage ? La surface du salon nous suffit."},
	})
	if len(res.KeywordsFound) != 0 {
		t.Fatalf("слова внутри других слов не должны засчитываться: %v", res.KeywordsFound)
	}
	if res.Profile != domain.ProfileEscape || !approx(res.Confidence, 0.75) {
		t.Fatalf("ожидали Escape с уверенностью 0.75, получили %s %v", res.Profile, res.Confidence)
	}
}

func TestContainsWordAcceptsPlural(t *testing.T) {
	text := normalizeText("Deux randonnées, des vélos et les enfants. Surface, skipper.")
	for _, kw := range []string{"randonnée", "vélo", "enfant"} {
		if !containsWord(text, kw) {
			t.Fatalf("ожидали совпадение для %q в %q", kw, text)
		}
	}
	for _, kw := range []string{"ski", "surf"} {
		if containsWord(text, kw) {
			t.Fatalf("не ожидали совпадения для %q в %q", kw, text)
		}
	}
}
