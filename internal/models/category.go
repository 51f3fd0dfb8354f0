package models

import "strings"

// Category is a fixed topic tag assigned to markets by keyword matching.
type Category string

const (
	CategoryPolitics      Category = "Politics"
	CategoryCrypto        Category = "Crypto"
	CategoryTech          Category = "Tech"
	CategoryFinance       Category = "Finance"
	CategorySports        Category = "Sports"
	CategoryEntertainment Category = "Entertainment"
)

// categoryKeywords maps each category to the lowercase keywords that assign
// it. Matching is plain substring containment over the question and
// description, evaluated once per market.
var categoryKeywords = map[Category][]string{
	CategoryPolitics: {
		"election", "president", "senate", "congress", "democrat", "republican",
		"political", "government", "vote", "ballot",
	},
	CategoryCrypto: {
		"bitcoin", "ethereum", "crypto", "blockchain", "token", "defi", "nft",
		"btc", "eth", "solana", "coinbase", "binance",
	},
	CategoryTech: {
		"artificial intelligence", "openai", "chatgpt", "gpt", "llm",
		"technology", "google", "microsoft", "apple", "meta", "amazon", "tesla",
	},
	CategoryFinance: {
		"stock", "finance", "economy", "recession", "inflation",
		"federal reserve", "interest rate", "gdp", "nasdaq", "s&p",
	},
	CategorySports: {
		"nfl", "football", "nba", "basketball", "mlb", "baseball", "nhl", "hockey",
		"soccer", "tennis", "golf", "olympics", "world cup", "super bowl",
	},
	CategoryEntertainment: {
		"movie", "film", "television", "streaming", "netflix", "disney",
		"oscar", "emmy", "grammy", "actor", "actress", "celebrity",
	},
}

// categoryOrder keeps Categorize output deterministic.
var categoryOrder = []Category{
	CategoryPolitics, CategoryCrypto, CategoryTech,
	CategoryFinance, CategorySports, CategoryEntertainment,
}

// Categorize assigns categories to a market from its question and
// description text. Returns nil when nothing matches.
func Categorize(question, description string) []Category {
	text := strings.ToLower(question + " " + description)

	var categories []Category
	for _, cat := range categoryOrder {
		for _, keyword := range categoryKeywords[cat] {
			if strings.Contains(text, keyword) {
				categories = append(categories, cat)
				break
			}
		}
	}
	return categories
}
