// Package i18n provides the message catalog for user-facing notifications.
package i18n

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/JonMunkholm/ev2/internal/collection"
)

// Supported lists the languages with a translated catalog.
var Supported = []language.Tag{language.English, language.German}

var matcher = language.NewMatcher(Supported)

type entry struct {
	key string
	en  catalog.Message
	de  catalog.Message
}

func counted(one, other string) catalog.Message {
	return plural.Selectf(1, "%d", plural.One, one, plural.Other, other)
}

var entries = []entry{
	{collection.MsgNetworkError,
		catalog.String("Could not reach the server. Please try again."),
		catalog.String("Der Server ist nicht erreichbar. Bitte erneut versuchen.")},

	{collection.MsgCreateSucceeded,
		counted("%[1]d item created", "%[1]d items created"),
		counted("%[1]d Eintrag angelegt", "%[1]d Einträge angelegt")},
	{collection.MsgCreatePartial,
		catalog.String("%[1]d created, %[2]d failed"),
		catalog.String("%[1]d angelegt, %[2]d fehlgeschlagen")},
	{collection.MsgCreateFailed,
		counted("%[1]d item could not be created", "%[1]d items could not be created"),
		counted("%[1]d Eintrag konnte nicht angelegt werden", "%[1]d Einträge konnten nicht angelegt werden")},

	{collection.MsgUpdateSucceeded,
		counted("%[1]d item updated", "%[1]d items updated"),
		counted("%[1]d Eintrag aktualisiert", "%[1]d Einträge aktualisiert")},
	{collection.MsgUpdatePartial,
		catalog.String("%[1]d updated, %[2]d failed"),
		catalog.String("%[1]d aktualisiert, %[2]d fehlgeschlagen")},
	{collection.MsgUpdateFailed,
		counted("%[1]d item could not be updated", "%[1]d items could not be updated"),
		counted("%[1]d Eintrag konnte nicht aktualisiert werden", "%[1]d Einträge konnten nicht aktualisiert werden")},
	{collection.MsgNothingToUpdate,
		catalog.String("There are no changes to save."),
		catalog.String("Es gibt keine Änderungen zu speichern.")},

	{collection.MsgDeleteSucceeded,
		counted("%[1]d item deleted", "%[1]d items deleted"),
		counted("%[1]d Eintrag gelöscht", "%[1]d Einträge gelöscht")},
	{collection.MsgDeletePartial,
		catalog.String("%[1]d deleted, %[2]d failed"),
		catalog.String("%[1]d gelöscht, %[2]d fehlgeschlagen")},
	{collection.MsgDeleteFailed,
		counted("%[1]d item could not be deleted", "%[1]d items could not be deleted"),
		counted("%[1]d Eintrag konnte nicht gelöscht werden", "%[1]d Einträge konnten nicht gelöscht werden")},

	{collection.MsgCodePrefix + "DUPLICATE_NAME",
		catalog.String("An item with this name already exists."),
		catalog.String("Ein Eintrag mit diesem Namen existiert bereits.")},
	{collection.MsgCodePrefix + "NOT_FOUND",
		catalog.String("The item no longer exists."),
		catalog.String("Der Eintrag existiert nicht mehr.")},
	{collection.MsgCodePrefix + "PROTECTED_RECORD",
		catalog.String("This item is protected and cannot be changed."),
		catalog.String("Dieser Eintrag ist geschützt und kann nicht geändert werden.")},
}

// Translator resolves message keys for one language. It implements
// collection.Translator.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
	known   map[string]bool
}

var _ collection.Translator = (*Translator)(nil)

// New returns a translator for the best match of locale among the supported
// languages. An empty or unparsable locale selects English.
func New(locale string) *Translator {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		// Set only fails for malformed messages, which the table above does not contain.
		_ = b.Set(language.English, e.key, e.en)
		_ = b.Set(language.German, e.key, e.de)
		known[e.key] = true
	}

	tag := Match(locale)
	return &Translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
		known:   known,
	}
}

// Match picks the supported language closest to locale.
func Match(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	desired, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(desired) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(desired...)
	return Supported[idx]
}

// Tag returns the language in use.
func (t *Translator) Tag() language.Tag { return t.tag }

// T renders key with args. Unknown keys are returned unchanged.
func (t *Translator) T(key string, args ...any) string {
	if !t.known[key] {
		return key
	}
	return t.printer.Sprintf(key, args...)
}
