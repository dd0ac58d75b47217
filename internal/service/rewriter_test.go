package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteDisambiguation(t *testing.T) {
	r := NewQueryRewriter()

	out := r.Rewrite("The Avengers 1998")
	assert.Contains(t, out, "British spy film")
	assert.NotContains(t, out, "Marvel")
}

func TestRewriteSynonymExpansion(t *testing.T) {
	r := NewQueryRewriter()

	out := r.Rewrite("movies by nolan")
	assert.Contains(t, out, "Christopher Nolan")
	// 扩展保留原查询文本
	assert.True(t, strings.HasPrefix(out, "movies by nolan"))
}

func TestRewriteLongestPhraseWins(t *testing.T) {
	r := NewQueryRewriter()

	// "star wars" 整体命中，而不是被 "war" 截胡
	out := r.Rewrite("best star wars movie")
	assert.Contains(t, out, "space opera")
	assert.NotContains(t, out, "military soldiers")
}

func TestRewriteWordBoundary(t *testing.T) {
	r := NewQueryRewriter()

	// "wardrobe" 不应命中 "war"
	out := r.Rewrite("the lion the witch and the wardrobe")
	assert.NotContains(t, out, "military")
}

func TestRewriteYearNormalization(t *testing.T) {
	r := NewQueryRewriter()

	out := r.Rewrite("1999 dystopia simulation hackers")
	assert.Equal(t, "dystopia simulation hackers 1999", out)
}

func TestRewriteFirstRuleWins(t *testing.T) {
	r := NewQueryRewriter()

	// 消歧表命中后不再做年份归一化
	out := r.Rewrite("avengers 1998")
	assert.Contains(t, out, "Ralph Fiennes")
}

func TestRewritePassthrough(t *testing.T) {
	r := NewQueryRewriter()

	q := "a movie about dreams within dreams"
	assert.Equal(t, q, r.Rewrite(q))
}

func TestRewriteEmptyQuery(t *testing.T) {
	r := NewQueryRewriter()
	assert.Equal(t, "", r.Rewrite(""))
	assert.Equal(t, "   ", r.Rewrite("   "))
}
