package service

import (
	"log"
	"regexp"
	"strings"
)

// QueryRewriter 语义检索前的查询改写器。规则按固定顺序匹配，
// 命中第一条即返回：消歧 → 同义词扩展 → 年份归一化。
// 改写是纯函数，不访问网络或数据库。
type QueryRewriter struct{}

// NewQueryRewriter 创建查询改写器
func NewQueryRewriter() *QueryRewriter {
	return &QueryRewriter{}
}

// disambiguations 同名电影消歧表。键为归一化后的完整查询，
// 值为指向特定版本的改写结果。
var disambiguations = map[string]string{
	"the avengers 1998":  "The Avengers 1998 British spy film Ralph Fiennes Uma Thurman",
	"avengers 1998":      "The Avengers 1998 British spy film Ralph Fiennes Uma Thurman",
	"the italian job":    "The Italian Job heist film Mini Cooper",
	"king kong 1933":     "King Kong 1933 original giant ape film",
	"king kong 2005":     "King Kong 2005 Peter Jackson remake",
	"solaris 1972":       "Solaris 1972 Tarkovsky Soviet science fiction",
	"solaris 2002":       "Solaris 2002 Soderbergh George Clooney",
}

// expansions 同义词与别称扩展表，把口语化说法补全成更利于向量召回的描述
var expansions = map[string]string{
	"nolan":          "Christopher Nolan director",
	"tarantino":      "Quentin Tarantino director",
	"spielberg":      "Steven Spielberg director",
	"scorsese":       "Martin Scorsese director",
	"kubrick":        "Stanley Kubrick director",
	"fincher":        "David Fincher director",
	"villeneuve":     "Denis Villeneuve director",
	"dicaprio":       "Leonardo DiCaprio actor",
	"denzel":         "Denzel Washington actor",
	"morgan freeman": "Morgan Freeman actor",
	"sci-fi":         "science fiction futuristic technology space",
	"scifi":          "science fiction futuristic technology space",
	"action":         "action fighting explosions chase",
	"horror":         "horror scary frightening terror",
	"comedy":         "comedy funny humorous laugh",
	"drama":          "drama emotional serious",
	"romance":        "romance love relationship romantic",
	"space":          "space outer space astronauts cosmos",
	"war":            "war battle military soldiers combat",
	"love":           "love romance relationship romantic",
	"crime":          "crime criminal heist gangster",
	"time travel":    "time travel temporal paradox past future",
	"marvel":         "Marvel superhero comic book",
	"mcu":            "Marvel Cinematic Universe superhero",
	"dc":             "DC Comics superhero Batman Superman",
	"star wars":      "Star Wars space opera Jedi galaxy",
}

var yearRe = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

// Rewrite 改写查询。未命中任何规则时原样返回。
func (r *QueryRewriter) Rewrite(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return query
	}

	// 规则一：同名消歧，整句精确匹配
	if rewritten, ok := disambiguations[normalized]; ok {
		log.Printf("[Rewriter] 消歧改写: %q -> %q", query, rewritten)
		return rewritten
	}

	// 规则二：同义词扩展，长词条优先避免"star wars"被"war"截胡
	if rewritten, ok := r.expand(query, normalized); ok {
		log.Printf("[Rewriter] 同义词扩展: %q -> %q", query, rewritten)
		return rewritten
	}

	// 规则三：年份归一化，把年份从句中挪到句尾
	if loc := yearRe.FindStringIndex(query); loc != nil {
		year := query[loc[0]:loc[1]]
		rest := strings.TrimSpace(query[:loc[0]] + query[loc[1]:])
		rest = strings.Join(strings.Fields(rest), " ")
		if rest != "" {
			rewritten := rest + " " + year
			if rewritten != query {
				log.Printf("[Rewriter] 年份归一化: %q -> %q", query, rewritten)
				return rewritten
			}
		}
	}

	return query
}

func (r *QueryRewriter) expand(original, normalized string) (string, bool) {
	var bestKey string
	for key := range expansions {
		if !containsPhrase(normalized, key) {
			continue
		}
		if len(key) > len(bestKey) {
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", false
	}
	return original + " " + expansions[bestKey], true
}

// containsPhrase 词边界匹配，避免"war"命中"wardrobe"这类子串
func containsPhrase(s, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordChar(s[start-1])
		afterOK := end == len(s) || !isWordChar(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
