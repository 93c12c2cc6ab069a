package profile

import "guest-messaging/internal/domain"

// messageKeywordWeight — вклад одного найденного ключевого слова.
const messageKeywordWeight = 0.15

// DefaultKeywords — словарь ключевых слов из переписки с гостем.
// Слово засчитывается целиком или с окончанием множественного числа (s, x).
var DefaultKeywords = map[domain.ProfileCode][]string{
	domain.ProfileFamily: {
		"enfant", "bébé", "bebe", "famille", "poussette", "lit parapluie", "chaise haute", "kids", "children", "baby",
	},
	domain.ProfileAdventure: {
		"randonnée", "vélo", "velo", "kayak", "escalade", "ski", "surf", "trek", "hiking",
	},
	domain.ProfileTraveler: {
		"travail", "réunion", "reunion", "business", "conférence", "conference", "déplacement", "professionnel", "facture", "wifi",
	},
	domain.ProfileEscape: {
		"romantique", "anniversaire", "lune de miel", "couple", "détente", "massage", "amoureux", "honeymoon",
	},
}
