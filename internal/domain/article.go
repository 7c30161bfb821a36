package domain

import "time"

// Article is a stored upstream article. ID is the upstream article id.
type Article struct {
	ID          string    `db:"id"`
	FeedID      string    `db:"feed_id"`
	Title       string    `db:"title"`
	PicURL      string    `db:"pic_url"`
	PublishTime int64     `db:"publish_time"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ArticleSummary is one entry of an upstream article page.
type ArticleSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PicURL      string `json:"picUrl"`
	PublishTime int64  `json:"publishTime"`
}

// ToArticle tags a summary with its owning feed.
func (s ArticleSummary) ToArticle(feedID string) Article {
	return Article{
		ID:          s.ID,
		FeedID:      feedID,
		Title:       s.Title,
		PicURL:      s.PicURL,
		PublishTime: s.PublishTime,
	}
}

// ArticleQuery selects stored articles for rendering.
type ArticleQuery struct {
	FeedIDs []string
	Limit   int
	Offset  int
}
