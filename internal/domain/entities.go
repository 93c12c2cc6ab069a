package domain

import (
	"strings"
	"time"
)

// ProfileCode описывает поведенческий профиль гостя.
type ProfileCode string

const (
	ProfileFamily    ProfileCode = "Family"
	ProfileAdventure ProfileCode = "Adventure"
	ProfileTraveler  ProfileCode = "Traveler"
	ProfileEscape    ProfileCode = "Escape"
	ProfileDefault   ProfileCode = "Default"
)

// ScoredProfiles перечисляет профили с собственным скорингом в порядке разрешения ничьих.
var ScoredProfiles = []ProfileCode{ProfileFamily, ProfileAdventure, ProfileTraveler, ProfileEscape}

// AllProfiles перечисляет все профили, включая Default.
var AllProfiles = []ProfileCode{ProfileFamily, ProfileAdventure, ProfileTraveler, ProfileEscape, ProfileDefault}

// Valid сообщает, входит ли код в число известных профилей.
func (p ProfileCode) Valid() bool {
	switch p {
	case ProfileFamily, ProfileAdventure, ProfileTraveler, ProfileEscape, ProfileDefault:
		return true
	}
	return false
}

// ParseProfileCode приводит строку к коду профиля без учёта регистра.
func ParseProfileCode(raw string) (ProfileCode, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, code := range AllProfiles {
		if strings.EqualFold(string(code), trimmed) {
			return code, true
		}
	}
	return ProfileDefault, false
}

// PropertyCategory описывает тип жилья.
type PropertyCategory string

const (
	PropertyStudio    PropertyCategory = "studio"
	PropertyApartment PropertyCategory = "apartment"
	PropertyHouse     PropertyCategory = "house"
	PropertyVilla     PropertyCategory = "villa"
)

// BookingSignal собирает данные бронирования для классификации.
type BookingSignal struct {
	GuestCount       int
	StayDurationDays int
	PropertyCategory PropertyCategory
	StayDate         time.Time
	HasChildren      bool
	FreeTextMessages []string
}

// ProfileResult содержит итог классификации.
type ProfileResult struct {
	Profile       ProfileCode `json:"profile"`
	Confidence    float64     `json:"confidence"`
	Reasons       []string    `json:"reasons"`
	KeywordsFound []string    `json:"keywords_found,omitempty"`
}

// ProfileDetection фиксирует, какой профиль был определён и какой реально использован при отправке.
type ProfileDetection struct {
	ID            int64
	AttemptID     string
	Recipient     string
	TemplateName  string
	Detected      ProfileCode
	Used          ProfileCode
	Confidence    float64
	Reasons       []string
	KeywordsFound []string
	CreatedAt     time.Time
}

// SeasonCalendar отвечает на вопрос о каникулах и выходных.
type SeasonCalendar interface {
	IsSchoolHoliday(date time.Time) bool
	IsVacationPeriod(date time.Time) bool
}
