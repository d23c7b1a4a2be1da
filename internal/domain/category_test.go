package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	cases := map[string]Category{
		"Will the Lakers win the NBA Finals?":              CategorySports,
		"Will Bitcoin reach $150k by June?":                CategoryCrypto,
		"Will the Senate confirm the nominee?":             CategoryPolitics,
		"Will the Fed cut interest rates in March?":        CategoryEconomics,
		"Will Russia and Ukraine sign a ceasefire?":        CategoryGeopolitics,
		"Will OpenAI release GPT-6 this year?":             CategoryTech,
		"Will Oppenheimer win the Oscar for Best Picture?": CategoryEntertainment,
		"Will it snow in Lisbon on Christmas?":             CategoryOther,
	}
	for q, want := range cases {
		assert.Equal(t, want, Categorize(q), q)
	}
}

func TestCategorize_OrderMatters(t *testing.T) {
	// "trump" is politics but "match" comes first in the sports bucket.
	assert.Equal(t, CategorySports, Categorize("Trump golf match winner?"))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryCrypto, ParseCategory("  Crypto "))
}
