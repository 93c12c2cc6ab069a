package templates

// Имена шаблонов каталога.
const (
	Welcome             = "welcome"
	OTP                 = "otp"
	CheckinInstructions = "checkin_instructions"
	CheckoutReminder    = "checkout_reminder"
	ReviewRequest       = "review_request"
)

// Catalog — стандартный набор шаблонов для гостей.
func Catalog() []Template {
	return []Template{
		{
			Name: Welcome,
			Variants: Variants{
				Family:    text("Bonjour {guestName} ! Toute l'équipe vous souhaite la bienvenue à {propertyName}. Lit bébé et jeux pour les enfants sont disponibles sur demande. Bon séjour en famille !"),
				Adventure: text("Bonjour {guestName} ! Bienvenue à {propertyName}. Sentiers, spots et bons plans du coin vous attendent dans le livret d'accueil. Bonne aventure !"),
				Traveler:  text("Bonjour {guestName}, bienvenue à {propertyName}. Wifi : {wifiName}. Check-in autonome, tout est prêt pour votre séjour."),
				Escape:    text("Bonjour {guestName}, bienvenue à {propertyName}. Profitez de ce moment à deux, nous restons discrets et disponibles si besoin."),
				Default:   text("Bonjour {guestName}, bienvenue à {propertyName}. N'hésitez pas à nous écrire pour toute question pendant votre séjour."),
			},
		},
		{
			Name:     OTP,
			Variants: Same(text("Votre code de vérification : {code}. Il expire dans {expirationMinutes} minutes.")),
		},
		{
			Name: CheckinInstructions,
			Variants: Variants{
				Family:    text("{guestName}, arrivée le {checkinDate} à partir de {checkinTime}. Code d'accès : {accessCode}. Pensez à la poussette : l'ascenseur est au fond du hall."),
				Adventure: text("{guestName}, arrivée le {checkinDate} dès {checkinTime}. Code d'accès : {accessCode}. Un local vélos/skis est à votre disposition."),
				Traveler:  text("{guestName}, check-in le {checkinDate} dès {checkinTime}. Code : {accessCode}. Wifi : {wifiName}."),
				Escape:    text("{guestName}, arrivée le {checkinDate} dès {checkinTime}. Code d'accès : {accessCode}. Une petite attention vous attend à l'intérieur."),
				Default:   text("{guestName}, arrivée le {checkinDate} à partir de {checkinTime}. Code d'accès : {accessCode}."),
			},
		},
		{
			Name: CheckoutReminder,
			Variants: Variants{
				Family:    text("{guestName}, départ demain avant {checkoutTime}. Vérifiez jouets et doudous avant de partir !"),
				Adventure: text("{guestName}, départ demain avant {checkoutTime}. N'oubliez pas votre matériel dans le local."),
				Traveler:  text("{guestName}, départ demain avant {checkoutTime}. Laissez les clés dans la boîte, facture envoyée par e-mail."),
				Escape:    text("{guestName}, votre séjour se termine demain avant {checkoutTime}. Nous espérons que cette parenthèse vous a plu."),
				Default:   text("{guestName}, départ demain avant {checkoutTime}. Merci de laisser les clés dans la boîte."),
			},
		},
		{
			Name: ReviewRequest,
			Variants: Variants{
				Family:    text("Merci {guestName} ! Votre avis sur {propertyName} aidera d'autres familles : {reviewLink}"),
				Adventure: text("Merci {guestName} ! Racontez votre aventure à {propertyName} : {reviewLink}"),
				Traveler:  text("Merci {guestName}. Un avis rapide sur {propertyName} ? {reviewLink}"),
				Escape:    text("Merci {guestName} pour votre confiance. Un mot sur votre escapade à {propertyName} ? {reviewLink}"),
				Default:   text("Merci {guestName} pour votre séjour à {propertyName}. Votre avis : {reviewLink}"),
			},
		},
	}
}

// DefaultRegistry собирает реестр из стандартного каталога.
func DefaultRegistry() *Registry {
	return MustRegistry(Catalog()...)
}
