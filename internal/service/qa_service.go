package service

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"

	"github.com/user/peninemate/internal/config"
	"github.com/user/peninemate/internal/model"
)

// intentPattern 一类意图的正则模板集合
type intentPattern struct {
	intent   model.Intent
	patterns []*regexp.Regexp
}

// intentPatterns 意图分类表。按声明顺序逐类尝试，
// 第一个命中的模板决定意图，捕获组是片名或人名。
var intentPatterns = []intentPattern{
	{model.IntentDirector, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^who directed (.+?)\??$`),
		regexp.MustCompile(`(?i)^who (?:is|was) the director of (.+?)\??$`),
		regexp.MustCompile(`(?i)^director of (.+?)\??$`),
	}},
	{model.IntentCast, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^who (?:is|was) (?:in )?the cast of (.+?)\??$`),
		regexp.MustCompile(`(?i)^(?:the )?cast of (.+?)\??$`),
		regexp.MustCompile(`(?i)^who starred in (.+?)\??$`),
		regexp.MustCompile(`(?i)^who (?:was|is) in (.+?)\??$`),
		regexp.MustCompile(`(?i)^who acted in (.+?)\??$`),
	}},
	{model.IntentPlot, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^what is (.+?) about\??$`),
		regexp.MustCompile(`(?i)^what'?s (.+?) about\??$`),
		regexp.MustCompile(`(?i)^(?:plot|synopsis|story) of (.+?)\??$`),
		regexp.MustCompile(`(?i)^tell me about (.+?)\??$`),
	}},
	{model.IntentYear, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^when was (.+?) released\??$`),
		regexp.MustCompile(`(?i)^when did (.+?) come out\??$`),
		regexp.MustCompile(`(?i)^what year (?:was|did) (.+?)(?: released| come out)\??$`),
		regexp.MustCompile(`(?i)^release year of (.+?)\??$`),
	}},
	{model.IntentBoxOffice, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^how much (?:money )?did (.+?) (?:make|gross|earn)\??$`),
		regexp.MustCompile(`(?i)^box office (?:of|for) (.+?)\??$`),
		regexp.MustCompile(`(?i)^what did (.+?) gross\??$`),
	}},
	{model.IntentActorFilms, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:what )?(?:movies|films) (?:with|starring|featuring) (.+?)\??$`),
		regexp.MustCompile(`(?i)^what (?:movies|films) (?:has|did) (.+?) (?:been in|star in|starred in|act in)\??$`),
	}},
	{model.IntentDirectorFilms, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:what )?(?:movies|films) (?:by|directed by|from director) (.+?)\??$`),
		regexp.MustCompile(`(?i)^what (?:movies|films) (?:has|did) (.+?) (?:direct|directed|make|made)\??$`),
	}},
}

// QAService 问答服务：指代消解 → 意图分类 → 检索取数 → 组装答案
type QAService struct {
	cfg       *config.Config
	search    *SearchService
	resolver  *ContextResolver
	generator TextGenerator
}

// NewQAService 创建问答服务，generator 可为 nil（降级为模板化答案）
func NewQAService(cfg *config.Config, search *SearchService, generator TextGenerator) *QAService {
	return &QAService{
		cfg:       cfg,
		search:    search,
		resolver:  NewContextResolver(),
		generator: generator,
	}
}

// classify 意图分类，返回意图与捕获的片名/人名
func classify(question string) (model.Intent, string) {
	q := strings.TrimSpace(question)
	for _, ip := range intentPatterns {
		for _, re := range ip.patterns {
			if m := re.FindStringSubmatch(q); m != nil {
				return ip.intent, strings.TrimRight(strings.TrimSpace(m[1]), "?.!")
			}
		}
	}
	return model.IntentFreeText, q
}

// AnswerQuestion 回答一个问题。未命中按正常结果返回（Found=false），
// 下游故障记日志后也按未命中降级，不向调用方抛错。
func (s *QAService) AnswerQuestion(ctx context.Context, question string, history []model.ChatMessage) *model.QAResult {
	resolved := s.resolver.Resolve(question, history)
	intent, arg := classify(resolved)
	log.Printf("[QA] 意图=%s 参数=%q (原问题=%q)", intent, arg, question)

	var result *model.QAResult
	switch intent {
	case model.IntentDirector:
		result = s.answerDirector(ctx, arg)
	case model.IntentCast:
		result = s.answerCast(ctx, arg)
	case model.IntentPlot:
		result = s.answerPlot(ctx, arg)
	case model.IntentYear:
		result = s.answerYear(ctx, arg)
	case model.IntentBoxOffice:
		result = s.answerBoxOffice(ctx, arg)
	case model.IntentActorFilms:
		result = s.answerFilmography(arg, "actor")
	case model.IntentDirectorFilms:
		result = s.answerFilmography(arg, "director")
	default:
		result = s.answerFreeText(ctx, arg)
	}
	result.Intent = intent

	if result.Found {
		result.Answer = s.polish(ctx, question, result, history)
	}
	return result
}

// findMovie 按片名定位一部电影，走完整的混合检索管线
func (s *QAService) findMovie(ctx context.Context, title string) (*model.SearchResult, string) {
	results, source, err := s.search.SearchHybrid(ctx, title, nil, 1)
	if err != nil {
		log.Printf("[QA] 检索失败 (title=%q): %v", title, err)
		return nil, source
	}
	if len(results) == 0 {
		return nil, source
	}
	return &results[0], source
}

func notFoundResult(title string) *model.QAResult {
	return &model.QAResult{
		Answer: fmt.Sprintf("Sorry, I couldn't find a movie matching %q.", title),
		Source: model.SourceDatabase,
		Found:  false,
	}
}

func (s *QAService) answerDirector(ctx context.Context, title string) *model.QAResult {
	hit, _ := s.findMovie(ctx, title)
	if hit == nil {
		return &model.QAResult{
			Answer:     notFoundResult(title).Answer,
			Source:     model.SourceDatabase,
			Structured: model.DirectorAnswer{Found: false},
		}
	}

	directors := s.creditNames(ctx, hit.TMDBID, "crew", 0)
	if len(directors) == 0 {
		return &model.QAResult{
			Answer:     fmt.Sprintf("I found %s but have no director information for it.", hit.Title),
			Movies:     []model.SearchResult{*hit},
			Source:     hit.Source,
			Structured: model.DirectorAnswer{Found: false},
		}
	}

	return &model.QAResult{
		Answer: fmt.Sprintf("%s directed %s%s.", strings.Join(directors, ", "), hit.Title, yearSuffix(hit.Year)),
		Movies: []model.SearchResult{*hit},
		Source: hit.Source,
		Found:  true,
		Structured: model.DirectorAnswer{
			Found:     true,
			Title:     hit.Title,
			Year:      hit.Year,
			Directors: directors,
		},
	}
}

func (s *QAService) answerCast(ctx context.Context, title string) *model.QAResult {
	hit, _ := s.findMovie(ctx, title)
	if hit == nil {
		return &model.QAResult{
			Answer:     notFoundResult(title).Answer,
			Source:     model.SourceDatabase,
			Structured: model.CastAnswer{Found: false},
		}
	}

	cast := s.creditNames(ctx, hit.TMDBID, "cast", 10)
	if len(cast) == 0 {
		return &model.QAResult{
			Answer:     fmt.Sprintf("I found %s but have no cast information for it.", hit.Title),
			Movies:     []model.SearchResult{*hit},
			Source:     hit.Source,
			Structured: model.CastAnswer{Found: false},
		}
	}

	return &model.QAResult{
		Answer: fmt.Sprintf("Cast of %s: %s.", hit.Title, strings.Join(cast, ", ")),
		Movies: []model.SearchResult{*hit},
		Source: hit.Source,
		Found:  true,
		Structured: model.CastAnswer{
			Found: true,
			Title: hit.Title,
			Year:  hit.Year,
			Cast:  cast,
		},
	}
}

func (s *QAService) answerPlot(ctx context.Context, title string) *model.QAResult {
	hit, _ := s.findMovie(ctx, title)
	if hit == nil {
		return &model.QAResult{
			Answer:     notFoundResult(title).Answer,
			Source:     model.SourceDatabase,
			Structured: model.PlotAnswer{Found: false},
		}
	}
	if hit.Overview == "" {
		return &model.QAResult{
			Answer:     fmt.Sprintf("I found %s but have no synopsis for it.", hit.Title),
			Movies:     []model.SearchResult{*hit},
			Source:     hit.Source,
			Structured: model.PlotAnswer{Found: false},
		}
	}

	return &model.QAResult{
		Answer: fmt.Sprintf("%s%s: %s", hit.Title, yearSuffix(hit.Year), hit.Overview),
		Movies: []model.SearchResult{*hit},
		Source: hit.Source,
		Found:  true,
		Structured: model.PlotAnswer{
			Found:    true,
			Title:    hit.Title,
			Year:     hit.Year,
			Overview: hit.Overview,
		},
	}
}

func (s *QAService) answerYear(ctx context.Context, title string) *model.QAResult {
	hit, _ := s.findMovie(ctx, title)
	if hit == nil {
		return &model.QAResult{
			Answer:     notFoundResult(title).Answer,
			Source:     model.SourceDatabase,
			Structured: model.YearAnswer{Found: false},
		}
	}
	if hit.Year == nil {
		return &model.QAResult{
			Answer:     fmt.Sprintf("I found %s but have no release year for it.", hit.Title),
			Movies:     []model.SearchResult{*hit},
			Source:     hit.Source,
			Structured: model.YearAnswer{Found: false},
		}
	}

	return &model.QAResult{
		Answer: fmt.Sprintf("%s was released in %d.", hit.Title, *hit.Year),
		Movies: []model.SearchResult{*hit},
		Source: hit.Source,
		Found:  true,
		Structured: model.YearAnswer{
			Found: true,
			Title: hit.Title,
			Year:  hit.Year,
		},
	}
}

func (s *QAService) answerBoxOffice(ctx context.Context, title string) *model.QAResult {
	hit, _ := s.findMovie(ctx, title)
	if hit == nil {
		return &model.QAResult{
			Answer:     notFoundResult(title).Answer,
			Source:     model.SourceDatabase,
			Structured: model.BoxOfficeAnswer{Found: false},
		}
	}
	if hit.BoxOfficeWorldwide == nil {
		return &model.QAResult{
			Answer:     fmt.Sprintf("Box office data for %s is not available.", hit.Title),
			Movies:     []model.SearchResult{*hit},
			Source:     hit.Source,
			Structured: model.BoxOfficeAnswer{Found: false, Title: hit.Title, Year: hit.Year},
		}
	}

	answer := fmt.Sprintf("%s%s grossed %s worldwide", hit.Title, yearSuffix(hit.Year),
		formatDollars(*hit.BoxOfficeWorldwide))
	if hit.BoxOfficeDomestic != nil && hit.BoxOfficeForeign != nil {
		answer += fmt.Sprintf(" (%s domestic, %s foreign)",
			formatDollars(*hit.BoxOfficeDomestic), formatDollars(*hit.BoxOfficeForeign))
	}
	answer += "."

	return &model.QAResult{
		Answer: answer,
		Movies: []model.SearchResult{*hit},
		Source: hit.Source,
		Found:  true,
		Structured: model.BoxOfficeAnswer{
			Found:     true,
			Title:     hit.Title,
			Year:      hit.Year,
			Worldwide: hit.BoxOfficeWorldwide,
			Domestic:  hit.BoxOfficeDomestic,
			Foreign:   hit.BoxOfficeForeign,
		},
	}
}

// answerFilmography 作品列表只查本地库。人名不适合标题检索和语义检索，
// 库里没有就是没有，不触发外部兜底。
func (s *QAService) answerFilmography(person, role string) *model.QAResult {
	var movies []model.Movie
	var err error
	if role == "director" {
		movies, err = s.search.movies.FindByDirector(person, 10)
	} else {
		movies, err = s.search.movies.FindByActor(person, 10)
	}
	if err != nil {
		log.Printf("[QA] 作品列表查询失败 (person=%q role=%s): %v", person, role, err)
		movies = nil
	}
	if len(movies) == 0 {
		return &model.QAResult{
			Answer:     fmt.Sprintf("I don't have any movies on record for %s.", person),
			Source:     model.SourceDatabase,
			Structured: model.FilmographyAnswer{Found: false, Person: person, Role: role},
		}
	}

	results := make([]model.SearchResult, 0, len(movies))
	titles := make([]string, 0, len(movies))
	for _, m := range movies {
		results = append(results, model.SearchResult{Movie: m, Source: model.SourceDatabase})
		titles = append(titles, m.Title+yearSuffix(m.Year))
	}

	verb := "starring"
	if role == "director" {
		verb = "directed by"
	}
	return &model.QAResult{
		Answer: fmt.Sprintf("Movies %s %s: %s.", verb, person, strings.Join(titles, ", ")),
		Movies: results,
		Source: model.SourceDatabase,
		Found:  true,
		Structured: model.FilmographyAnswer{
			Found:  true,
			Person: person,
			Role:   role,
			Movies: results,
		},
	}
}

func (s *QAService) answerFreeText(ctx context.Context, question string) *model.QAResult {
	results, source, err := s.search.SearchHybrid(ctx, question, nil, 5)
	if err != nil {
		log.Printf("[QA] 自由文本检索失败 (q=%q): %v", question, err)
	}
	if len(results) == 0 {
		return &model.QAResult{
			Answer: "Sorry, I couldn't find any movies matching your question.",
			Source: model.SourceDatabase,
		}
	}

	best := results[0]
	answer := best.Title + yearSuffix(best.Year)
	if best.Overview != "" {
		answer += ": " + best.Overview
	}
	return &model.QAResult{
		Answer: answer,
		Movies: results,
		Source: source,
		Found:  true,
	}
}

// creditNames 读取某部电影某一类演职员的名字。
// creditType 为 cast 时按戏份顺序，limit>0 时截断。
func (s *QAService) creditNames(ctx context.Context, tmdbID int, creditType string, limit int) []string {
	credits, err := s.search.GetCreditsEnsured(ctx, tmdbID)
	if err != nil {
		log.Printf("[QA] 读取演职员失败 (tmdb_id=%d): %v", tmdbID, err)
		return nil
	}

	var names []string
	for _, c := range credits {
		if c.CreditType != creditType {
			continue
		}
		if creditType == "crew" && c.Job != "Director" {
			continue
		}
		names = append(names, c.PersonName)
		if limit > 0 && len(names) >= limit {
			break
		}
	}
	return names
}

// polish 用 LLM 把模板化答案润色成自然语言。失败时保留模板答案。
func (s *QAService) polish(ctx context.Context, question string, result *model.QAResult, history []model.ChatMessage) string {
	if s.generator == nil {
		return result.Answer
	}

	var b strings.Builder
	b.WriteString("You are a movie expert assistant. Answer the user's question in one or two natural sentences, using ONLY the facts below. Do not invent information.\n\nFacts:\n")
	b.WriteString(result.Answer)
	b.WriteString("\n")
	for i, m := range result.Movies {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "- %s%s", m.Title, yearSuffix(m.Year))
		if m.Overview != "" {
			fmt.Fprintf(&b, ": %s", m.Overview)
		}
		b.WriteString("\n")
	}
	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		start := len(history) - 5
		if start < 0 {
			start = 0
		}
		for _, msg := range history[start:] {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", question)

	answer, err := s.generator.Generate(ctx, b.String())
	if err != nil {
		log.Printf("[QA] LLM 润色失败，保留模板答案: %v", err)
		return result.Answer
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return result.Answer
	}
	return answer
}

// Recommend 电影推荐。优先本地库按类型和年代筛选，
// 从前 20 个候选里随机取，库里不够时用外部热门列表兜底。
func (s *QAService) Recommend(ctx context.Context, genres []string, years []int, exclude []string, limit int) (*model.QAResult, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	movies, err := s.search.movies.FindForRecommendation(genres, years, exclude, 20)
	if err != nil {
		log.Printf("[QA] 推荐查询失败: %v", err)
	}

	source := model.SourceDatabase
	if len(movies) == 0 && s.search.tmdb != nil {
		discovered, err := s.search.tmdb.Discover(ctx, 1)
		if err != nil {
			log.Printf("[QA] 推荐外部兜底失败: %v", err)
		}
		for _, d := range discovered {
			pop := d.Popularity
			movies = append(movies, model.Movie{
				TMDBID:      d.ID,
				Title:       d.Title,
				Year:        d.Year(),
				Overview:    d.Overview,
				Popularity:  &pop,
				VoteAverage: d.VoteAverage,
				DataSource:  "tmdb",
			})
		}
		source = model.SourceLazyLoad
	}

	if len(movies) == 0 {
		return &model.QAResult{
			Answer: "Sorry, I have no recommendations matching those filters.",
			Intent: model.IntentRecommendation,
			Source: model.SourceDatabase,
		}, nil
	}

	rand.Shuffle(len(movies), func(i, j int) {
		movies[i], movies[j] = movies[j], movies[i]
	})
	if len(movies) > limit {
		movies = movies[:limit]
	}

	results := make([]model.SearchResult, 0, len(movies))
	titles := make([]string, 0, len(movies))
	for _, m := range movies {
		results = append(results, model.SearchResult{Movie: m, Source: source})
		titles = append(titles, m.Title+yearSuffix(m.Year))
	}

	return &model.QAResult{
		Answer: "You might enjoy: " + strings.Join(titles, ", ") + ".",
		Movies: results,
		Intent: model.IntentRecommendation,
		Source: source,
		Found:  true,
	}, nil
}

func yearSuffix(year *int) string {
	if year == nil {
		return ""
	}
	return fmt.Sprintf(" (%d)", *year)
}

func formatDollars(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return "$" + strings.Join(parts, ",")
}
