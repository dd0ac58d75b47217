package model

// ChatMessage 一条对话历史
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// 检索结果来源标记
const (
	SourceKeyword  = "keyword"
	SourceSemantic = "semantic"
	SourceDatabase = "database"
	SourceLazyLoad = "external_api_lazy_loaded"
)

// SearchResult 单次请求内的瞬态检索结果，带来源与打分，不落库
type SearchResult struct {
	Movie
	Source          string  `json:"source"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`
	FinalScore      float64 `json:"final_score,omitempty"`
}

// Intent 问题意图分类
type Intent string

const (
	IntentDirector       Intent = "director"
	IntentCast           Intent = "cast"
	IntentPlot           Intent = "plot"
	IntentYear           Intent = "year"
	IntentBoxOffice      Intent = "box_office"
	IntentActorFilms     Intent = "actor_filmography"
	IntentDirectorFilms  Intent = "director_filmography"
	IntentFreeText       Intent = "free_text"
	IntentRecommendation Intent = "recommendation"
)

// 每类意图各自的结构化结果，只携带该意图相关的字段。
// Found=false 表示正常的未命中，不是错误。

// DirectorAnswer 导演类问题的结果
type DirectorAnswer struct {
	Found     bool     `json:"found"`
	Title     string   `json:"title,omitempty"`
	Year      *int     `json:"year,omitempty"`
	Directors []string `json:"directors,omitempty"`
}

// CastAnswer 演员阵容类问题的结果
type CastAnswer struct {
	Found bool     `json:"found"`
	Title string   `json:"title,omitempty"`
	Year  *int     `json:"year,omitempty"`
	Cast  []string `json:"cast,omitempty"`
}

// PlotAnswer 剧情类问题的结果
type PlotAnswer struct {
	Found    bool   `json:"found"`
	Title    string `json:"title,omitempty"`
	Year     *int   `json:"year,omitempty"`
	Overview string `json:"overview,omitempty"`
}

// YearAnswer 上映年份类问题的结果
type YearAnswer struct {
	Found bool   `json:"found"`
	Title string `json:"title,omitempty"`
	Year  *int   `json:"year,omitempty"`
}

// BoxOfficeAnswer 票房类问题的结果
type BoxOfficeAnswer struct {
	Found     bool   `json:"found"`
	Title     string `json:"title,omitempty"`
	Year      *int   `json:"year,omitempty"`
	Worldwide *int64 `json:"worldwide,omitempty"`
	Domestic  *int64 `json:"domestic,omitempty"`
	Foreign   *int64 `json:"foreign,omitempty"`
}

// FilmographyAnswer 作品列表类问题（演员或导演）的结果
type FilmographyAnswer struct {
	Found  bool           `json:"found"`
	Person string         `json:"person,omitempty"`
	Role   string         `json:"role,omitempty"` // actor / director
	Movies []SearchResult `json:"movies,omitempty"`
}

// QAResult 问答接口的统一返回
type QAResult struct {
	Answer     string         `json:"answer"`
	Movies     []SearchResult `json:"movies"`
	Source     string         `json:"source"`
	Intent     Intent         `json:"intent"`
	Found      bool           `json:"found"`
	Structured interface{}    `json:"structured,omitempty"`
}
