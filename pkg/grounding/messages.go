package grounding

import "github.com/vitrine/vitrine/pkg/intent"

var refineMessages = map[string]string{
	intent.LocalePT: "Não encontrei produtos para isso. Pode refinar a busca informando a categoria, a cidade ou o orçamento?",
	intent.LocaleEN: "I couldn't find products for that. Could you refine your search with a category, city or budget?",
}

var introMessages = map[string]string{
	intent.LocalePT: "Separei estas opções para você:",
	intent.LocaleEN: "Here are some options for you:",
}

var smalltalkMessages = map[string]string{
	intent.LocalePT: "Oi! Sou o assistente da Vitrine. Me diga o que você procura, por exemplo um produto, uma categoria ou um orçamento.",
	intent.LocaleEN: "Hi! I'm the Vitrine assistant. Tell me what you're looking for, such as a product, a category or a budget.",
}

func localized(table map[string]string, locale string) string {
	if msg, ok := table[locale]; ok {
		return msg
	}
	return table[intent.LocalePT]
}

// RefineMessage is the canned reply used whenever no grounded item survives.
func RefineMessage(locale string) string { return localized(refineMessages, locale) }

// IntroMessage replaces an empty generated message when items were cited.
func IntroMessage(locale string) string { return localized(introMessages, locale) }

// SmalltalkMessage is the reply on the small-talk path.
func SmalltalkMessage(locale string) string { return localized(smalltalkMessages, locale) }
