package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/peninemate/internal/model"
)

func history(pairs ...string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(pairs))
	for i := 0; i < len(pairs)-1; i += 2 {
		msgs = append(msgs, model.ChatMessage{Role: pairs[i], Content: pairs[i+1]})
	}
	return msgs
}

func TestResolveDirectorFollowUp(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"user", "Who directed The Matrix?",
		"assistant", "Lana Wachowski, Lilly Wachowski directed The Matrix (1999).",
	)
	out := r.Resolve("who was in it", h)
	assert.Equal(t, "Who is the cast of The Matrix", out)
}

func TestResolveCastShapeYieldsTitle(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"user", "Cast of Inception?",
		"assistant", "Cast of Inception: Leonardo DiCaprio, Joseph Gordon-Levitt.",
	)
	out := r.Resolve("who directed it", h)
	assert.Equal(t, "Who directed Inception", out)
}

func TestResolveReleasedShape(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Interstellar was released in 2014.",
	)
	out := r.Resolve("what is it about", h)
	assert.Equal(t, "What is Interstellar about", out)
}

func TestResolveMostRecentEntityWins(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Christopher Nolan directed Inception (2010).",
		"user", "And The Matrix?",
		"assistant", "Lana Wachowski, Lilly Wachowski directed The Matrix (1999).",
	)
	out := r.Resolve("when was it released", h)
	assert.Equal(t, "When was The Matrix released", out)
}

func TestResolveExplicitTitleOverridesVagueness(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Christopher Nolan directed Inception (2010).",
	)
	// "the cast" 是含糊标记，但问题里已有明确片名，不做消解
	out := r.Resolve("cast of The Dark Knight", h)
	assert.Equal(t, "cast of The Dark Knight", out)
}

func TestResolveNoHistoryPassthrough(t *testing.T) {
	r := NewContextResolver()
	out := r.Resolve("who directed it", nil)
	assert.Equal(t, "who directed it", out)
}

func TestResolveNonVaguePassthrough(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Christopher Nolan directed Inception (2010).",
	)
	out := r.Resolve("who directed Dunkirk", h)
	assert.Equal(t, "who directed Dunkirk", out)
}

func TestResolveNoExtractableEntityPassthrough(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Sorry, I couldn't find any movies matching your question.",
	)
	out := r.Resolve("who directed it", h)
	assert.Equal(t, "who directed it", out)
}

func TestResolveDirectorEntityFollowUp(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Christopher Nolan directed Inception (2010).",
	)
	// 人称代词指向人物，用导演实体改写成作品列表问句
	out := r.Resolve("what else did he direct", h)
	assert.Equal(t, "movies directed by Christopher Nolan", out)
}

func TestResolveDirectorEntityTakesFirstOfList(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Lana Wachowski, Lilly Wachowski directed The Matrix (1999).",
	)
	out := r.Resolve("what else did she direct", h)
	assert.Equal(t, "movies directed by Lana Wachowski", out)
}

func TestResolveActorEntityFollowUp(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Cast of Inception: Leonardo DiCaprio, Joseph Gordon-Levitt.",
	)
	out := r.Resolve("what other movies has he been in", h)
	assert.Equal(t, "movies starring Leonardo DiCaprio", out)
}

func TestResolveMovieRefStillWinsOverPersonEntities(t *testing.T) {
	r := NewContextResolver()

	// 同一句历史同时产出电影、导演两类实体，"it" 指向电影
	h := history(
		"assistant", "Christopher Nolan directed Inception (2010).",
	)
	out := r.Resolve("what is it about", h)
	assert.Equal(t, "What is Inception about", out)
}

func TestResolveWordBoundaryOnIt(t *testing.T) {
	r := NewContextResolver()

	h := history(
		"assistant", "Christopher Nolan directed Inception (2010).",
	)
	// "Titanic" 里的 "it" 不是独立词，不触发消解
	out := r.Resolve("who directed Titanic", h)
	assert.Equal(t, "who directed Titanic", out)
}
