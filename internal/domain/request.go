package domain

// ContentKind — тип контента, на который указывает ссылка.
type ContentKind string

const (
	// ContentKindPost — обычный пост: /p/{shortcode}.
	ContentKindPost ContentKind = "post"

	// ContentKindReel — reel: /reel/{shortcode}.
	ContentKindReel ContentKind = "reel"
)

// DefaultPriority — приоритет запроса, если producer его не указал.
const DefaultPriority = 1

// CrawlRequest — единица работы из очереди crawl_requests.
//
// Создаётся Codec'ом при декодировании тела сообщения и больше не меняется.
// Живёт ровно одну попытку доставки.
type CrawlRequest struct {
	// SourceURL — ссылка на пост или reel (в JSON: instagram_url).
	SourceURL string `json:"instagram_url"`

	// Shortcode — идентификатор поста из пути ссылки.
	Shortcode string `json:"-"`

	// Kind — post или reel.
	Kind ContentKind `json:"-"`

	// RequestID — correlation id от отправителя (опционально).
	RequestID string `json:"request_id,omitempty"`

	// Priority — приоритет запроса.
	// Пока только информационный: порядок очереди от него не зависит.
	Priority int `json:"priority"`
}
