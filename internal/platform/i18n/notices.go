// Package i18n selects the localized user-facing notice strings
// returned by the listing endpoints. Finnish is the primary audience
// language; English is the fallback.
package i18n

import (
	"golang.org/x/text/language"
)

var supported = []language.Tag{
	language.Finnish, // default
	language.English,
}

var matcher = language.NewMatcher(supported)

// Notice identifies a translatable message.
type Notice string

const (
	NoticeNotAuthorized      Notice = "not_authorized"
	NoticeListingNotFound    Notice = "listing_not_found"
	NoticePaymentRequired    Notice = "payment_required"
	NoticeInvalidTransition  Notice = "invalid_transition"
	NoticeListingHidden      Notice = "listing_hidden"
	NoticeListingRepublished Notice = "listing_republished"
	NoticeDraftDeleted       Notice = "draft_deleted"
	NoticeListingPublished   Notice = "listing_published"
)

var messages = map[language.Tag]map[Notice]string{
	language.Finnish: {
		NoticeNotAuthorized:      "Sinulla ei ole oikeutta hallita tätä ilmoitusta.",
		NoticeListingNotFound:    "Ilmoitusta ei löytynyt.",
		NoticePaymentRequired:    "Ilmoitusta ei ole maksettu. Julkaise ilmoitus maksamalla se ensin.",
		NoticeInvalidTransition:  "Toimintoa ei voi suorittaa ilmoituksen nykyisessä tilassa.",
		NoticeListingHidden:      "Ilmoitus on piilotettu.",
		NoticeListingRepublished: "Ilmoitus on julkaistu uudelleen.",
		NoticeDraftDeleted:       "Luonnos on poistettu.",
		NoticeListingPublished:   "Ilmoitus on julkaistu.",
	},
	language.English: {
		NoticeNotAuthorized:      "You are not allowed to manage this listing.",
		NoticeListingNotFound:    "Listing not found.",
		NoticePaymentRequired:    "This listing has not been paid for. Complete checkout to publish it.",
		NoticeInvalidTransition:  "The action cannot be performed in the listing's current state.",
		NoticeListingHidden:      "The listing has been hidden.",
		NoticeListingRepublished: "The listing has been republished.",
		NoticeDraftDeleted:       "The draft has been deleted.",
		NoticeListingPublished:   "The listing has been published.",
	},
}

// Localize returns the notice text for the best match of acceptLanguage
// (an Accept-Language header value). Unknown notices return an empty
// string so callers notice missing translations in tests.
func Localize(acceptLanguage string, notice Notice) string {
	tag := Match(acceptLanguage)
	if text, ok := messages[tag][notice]; ok {
		return text
	}
	return messages[language.Finnish][notice]
}

// Match resolves an Accept-Language header to a supported tag.
func Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.Finnish
	}
	_, index, _ := matcher.Match(tags...)
	return supported[index]
}
