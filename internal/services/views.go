package services

import (
	"time"
	"v4corner/internal/models"
)

// UserBrief 作者信息
type UserBrief struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

func briefOf(u models.User) UserBrief {
	return UserBrief{ID: u.ID, Username: u.Username, Nickname: u.Nickname, AvatarURL: u.AvatarURL}
}

// PostSummary is the post as shown in favorite listings.
type PostSummary struct {
	ID             uint      `json:"id"`
	Title          string    `json:"title"`
	Author         UserBrief `json:"author"`
	LikesCount     int       `json:"likes_count"`
	FavoritesCount int       `json:"favorites_count"`
	CreatedAt      time.Time `json:"created_at"`
}

func summaryOf(p models.Post) PostSummary {
	return PostSummary{
		ID:             p.ID,
		Title:          p.Title,
		Author:         briefOf(p.User),
		LikesCount:     p.LikeCount,
		FavoritesCount: p.FavoriteCount,
		CreatedAt:      p.CreatedAt,
	}
}

type FolderRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}
