package router

import "strings"

// Language is the reply language inferred for a conversation.
type Language string

const (
	LangEnglish Language = "en"
	LangFrench  Language = "fr"
	LangArabic  Language = "ar"
)

var frenchWords = []string{"oui", "bonjour", "merci", "problème", "courant", "panne", "électricité", "j'ai"}

var arabicMarkers = []rune{'،', '؟', 'أ', 'ب', 'ت', 'ث'}

// DetectLanguage sniffs the first user message for French keywords or Arabic
// characters; everything else is treated as English. Keyword sniffing keeps
// the fixed confirmation prompts in the user's language without another
// model call.
func DetectLanguage(firstUserMessage string) Language {
	msg := strings.ToLower(firstUserMessage)
	if containsAny(msg, frenchWords) {
		return LangFrench
	}
	for _, r := range arabicMarkers {
		if strings.ContainsRune(msg, r) {
			return LangArabic
		}
	}
	return LangEnglish
}
