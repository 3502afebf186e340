package models

import "time"

type Post struct {
	ID           string    `json:"id"`
	Author       string    `json:"author"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Like is unique per (PostID, Liker).
type Like struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Liker     string    `json:"liker"`
	CreatedAt time.Time `json:"created_at"`
}
