package service

import (
	"log"
	"regexp"
	"strings"

	"github.com/user/peninemate/internal/model"
)

// ContextResolver 多轮对话指代消解。从历史里助手的回答中提取最近提到的
// 实体（电影、导演、演员），把含糊问题（"它是谁导演的"、"他还导过什么"）
// 改写成带实体名的独立问题。纯文本处理，不访问存储。
type ContextResolver struct{}

// NewContextResolver 创建指代消解器
func NewContextResolver() *ContextResolver {
	return &ContextResolver{}
}

// 助手回答的固定句式，实体提取依赖这些形状
var (
	directedRe = regexp.MustCompile(`(?i)^(.+?) directed (.+?) \((\d{4})\)\.?$`)
	castOfRe   = regexp.MustCompile(`(?i)^Cast of (.+?): (.+)$`)
	releasedRe = regexp.MustCompile(`(?i)^(.+?) was released in (\d{4})\.?$`)
)

// 含糊指代标记，命中任意一个即认为问题依赖上下文
var vagueMarkers = []string{
	"it", "that film", "that movie", "this film", "this movie",
	"the film", "the movie", "the director", "the cast",
	"he", "she", "they", "him", "her",
}

// 指向人物而非电影的代词
var personPronouns = []string{"he", "she", "they", "him", "her"}

// 问题里自带明确片名的句式，命中则不做指代消解
var explicitRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcast of ([a-z0-9].+)`),
	regexp.MustCompile(`(?i)\bwho directed ([a-z0-9].+)`),
	regexp.MustCompile(`(?i)\bwhen was ([a-z0-9].+?) released`),
}

// 代词和冠词，明确句式捕获到这些词时仍视为含糊
var pronouns = map[string]bool{
	"it": true, "that": true, "this": true, "the": true,
	"he": true, "she": true, "they": true, "him": true, "her": true,
	"that film": true, "that movie": true, "this film": true, "this movie": true,
	"the film": true, "the movie": true,
}

// contextEntities 从历史里提取出的最近实体，每类各取最近一个
type contextEntities struct {
	title    string
	director string
	actor    string
}

func (e contextEntities) empty() bool {
	return e.title == "" && e.director == "" && e.actor == ""
}

// Resolve 指代消解。问题不含糊或历史里没有可用实体时原样返回。
func (r *ContextResolver) Resolve(question string, history []model.ChatMessage) string {
	if len(history) == 0 {
		return question
	}
	if r.isExplicit(question) {
		return question
	}
	if !r.isVague(question) {
		return question
	}

	ents := r.recentEntities(history)
	if ents.empty() {
		return question
	}

	rewritten := r.substitute(question, ents)
	if rewritten != question {
		log.Printf("[Resolver] 指代消解: %q -> %q", question, rewritten)
	}
	return rewritten
}

// isExplicit 问题是否自带明确片名。明确性优先于含糊标记，
// "cast of Inception" 里的 "the cast" 式误判由这里挡掉。
func (r *ContextResolver) isExplicit(question string) bool {
	for _, re := range explicitRes {
		m := re.FindStringSubmatch(question)
		if m == nil {
			continue
		}
		captured := strings.ToLower(strings.TrimRight(strings.TrimSpace(m[1]), "?.!"))
		if captured != "" && !pronouns[captured] {
			return true
		}
	}
	return false
}

// isVague 问题是否含有指代标记，按词边界匹配
func (r *ContextResolver) isVague(question string) bool {
	lower := strings.ToLower(question)
	for _, marker := range vagueMarkers {
		if containsPhrase(lower, marker) {
			return true
		}
	}
	return false
}

// recentEntities 从最近的助手回答往前提取实体，每类只保留最先遇到（最近）的一个
func (r *ContextResolver) recentEntities(history []model.ChatMessage) contextEntities {
	var ents contextEntities
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "assistant" {
			continue
		}
		for _, line := range strings.Split(history[i].Content, "\n") {
			line = strings.TrimSpace(line)
			if m := directedRe.FindStringSubmatch(line); m != nil {
				if ents.title == "" {
					ents.title = strings.TrimSpace(m[2])
				}
				if ents.director == "" {
					ents.director = firstName(m[1])
				}
				continue
			}
			if m := castOfRe.FindStringSubmatch(line); m != nil {
				if ents.title == "" {
					ents.title = strings.TrimSpace(m[1])
				}
				if ents.actor == "" {
					ents.actor = firstName(m[2])
				}
				continue
			}
			if m := releasedRe.FindStringSubmatch(line); m != nil {
				if ents.title == "" {
					ents.title = strings.TrimSpace(m[1])
				}
			}
		}
	}
	return ents
}

// firstName 从逗号分隔的人名列表里取第一个
func firstName(list string) string {
	name := list
	if idx := strings.Index(list, ","); idx >= 0 {
		name = list[:idx]
	}
	return strings.TrimRight(strings.TrimSpace(name), ".")
}

// substitute 把指代改写成带实体名的规范问句。
// 人称代词指向人物，优先走作品列表改写；其余指代指向电影。
func (r *ContextResolver) substitute(question string, ents contextEntities) string {
	lower := strings.ToLower(question)

	personRef := false
	for _, p := range personPronouns {
		if containsPhrase(lower, p) {
			personRef = true
			break
		}
	}

	switch {
	case personRef && ents.director != "" &&
		(strings.Contains(lower, "direct") || strings.Contains(lower, "made")):
		return "movies directed by " + ents.director
	case personRef && ents.actor != "" &&
		(strings.Contains(lower, "been in") || strings.Contains(lower, "star") ||
			strings.Contains(lower, "act") || strings.Contains(lower, "movies")):
		return "movies starring " + ents.actor
	}

	if ents.title == "" {
		return question
	}

	switch {
	case strings.Contains(lower, "the director") || strings.Contains(lower, "directed"):
		return "Who directed " + ents.title
	case strings.Contains(lower, "the cast") || strings.Contains(lower, "who was in") ||
		strings.Contains(lower, "who starred"):
		return "Who is the cast of " + ents.title
	case strings.Contains(lower, "released") || strings.Contains(lower, "come out"):
		return "When was " + ents.title + " released"
	case strings.Contains(lower, "about"):
		return "What is " + ents.title + " about"
	}

	// 无法归入规范问句时，把最长的指代标记原位替换成片名
	var best string
	for _, marker := range vagueMarkers {
		if containsPhrase(lower, marker) && len(marker) > len(best) {
			best = marker
		}
	}
	if best == "" {
		return question
	}
	idx := strings.Index(lower, best)
	return question[:idx] + ents.title + question[idx+len(best):]
}
