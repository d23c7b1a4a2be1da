package domain

import "strings"

// Category is a coarse topic bucket derived from the market question.
type Category string

const (
	CategorySports        Category = "sports"
	CategoryCrypto        Category = "crypto"
	CategoryPolitics      Category = "politics"
	CategoryEconomics     Category = "economics"
	CategoryGeopolitics   Category = "geopolitics"
	CategoryTech          Category = "tech"
	CategoryEntertainment Category = "entertainment"
	CategoryOther         Category = "other"
)

// categoryKeywords is checked in order; the first bucket with a match wins.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategorySports, []string{
		"nba", "nfl", "nhl", "mlb", "premier league", "champions league",
		"vs.", "game", "match", "winner", "playoff", "super bowl",
		"world cup", "olympics", "tennis", "golf", "f1", "formula",
		"boxing", "ufc", "mma", "spread:", "o/u", "lol:", "esports",
	}},
	{CategoryCrypto, []string{
		"bitcoin", "btc", "ethereum", "eth", "crypto", "solana", "sol",
		"token", "blockchain", "defi", "nft", "altcoin", "memecoin",
	}},
	{CategoryPolitics, []string{
		"president", "election", "congress", "senate", "house",
		"democrat", "republican", "vote", "governor", "mayor",
		"trump", "biden", "cabinet", "nomination", "supreme court",
		"impeach", "legislation", "bill pass",
	}},
	{CategoryEconomics, []string{
		"fed", "interest rate", "inflation", "gdp", "unemployment",
		"recession", "fomc", "treasury", "tariff", "trade",
	}},
	{CategoryGeopolitics, []string{
		"war", "strike", "invasion", "military", "iran", "russia",
		"china", "ukraine", "israel", "gaza", "hamas", "nato", "sanctions",
	}},
	{CategoryTech, []string{
		"ai", "openai", "google", "apple", "tesla", "amazon", "meta",
		"microsoft", "chatgpt", "model", "launch", "acquisition",
	}},
	{CategoryEntertainment, []string{
		"oscar", "grammy", "emmy", "movie", "album", "celebrity",
		"kardashian", "taylor swift", "elon musk tweet",
	}},
}

// Categorize assigns a Category by substring keyword match on the lowercased question.
func Categorize(question string) Category {
	q := strings.ToLower(question)
	for _, bucket := range categoryKeywords {
		for _, k := range bucket.keywords {
			if strings.Contains(q, k) {
				return bucket.category
			}
		}
	}
	return CategoryOther
}

// ParseCategory normalizes user input ("Sports", " crypto ") to a Category.
func ParseCategory(s string) Category {
	return Category(strings.ToLower(strings.TrimSpace(s)))
}
