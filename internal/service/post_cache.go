package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/internal/model"
)

// PostSnapshot is the minimal post view feed readers need next to a
// leaderboard entry.
type PostSnapshot struct {
	ID              string  `json:"id"`
	AuthorID        string  `json:"author_id"`
	VoteCount       int64   `json:"vote_count"`
	EngagementScore float64 `json:"engagement_score"`
	TrendingScore   float64 `json:"trending_score"`
	HotScore        float64 `json:"hot_score"`
}

// PostCache is a read-through snapshot cache in front of the post
// table for top-k feed hydration. Entries expire on a short TTL rather
// than being invalidated per write; feed staleness within the TTL is
// acceptable, ranking is eventually consistent anyway.
type PostCache struct {
	db    *gorm.DB
	cache *redis.Client
	ttl   time.Duration
}

func NewPostCache(db *gorm.DB, cache *redis.Client, ttl time.Duration) *PostCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PostCache{db: db, cache: cache, ttl: ttl}
}

// Snapshots resolves post ids to snapshots, preserving input order.
// Cache misses are bulk-loaded from the DB in one query and written
// back individually.
func (c *PostCache) Snapshots(ctx context.Context, ids []string) ([]PostSnapshot, error) {
	if len(ids) == 0 {
		return []PostSnapshot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = snapshotKey(id)
	}

	cached := make(map[string]PostSnapshot, len(ids))
	if vals, err := c.cache.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var snap PostSnapshot
			if uErr := json.Unmarshal([]byte(str), &snap); uErr == nil {
				cached[ids[i]] = snap
			}
		}
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		var posts []model.Post
		if err := c.db.WithContext(ctx).Where("id IN ?", missing).Find(&posts).Error; err != nil {
			return nil, err
		}
		for _, p := range posts {
			snap := PostSnapshot{
				ID:              p.ID,
				AuthorID:        p.AuthorID,
				VoteCount:       p.VoteCount,
				EngagementScore: p.EngagementScore,
				TrendingScore:   p.TrendingScore,
				HotScore:        p.HotScore,
			}
			cached[p.ID] = snap
			if payload, err := json.Marshal(snap); err == nil {
				_ = c.cache.Set(ctx, snapshotKey(p.ID), payload, c.ttl).Err()
			}
		}
	}

	result := make([]PostSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := cached[id]; ok {
			result = append(result, snap)
		}
	}
	return result, nil
}

func snapshotKey(postID string) string { return fmt.Sprintf("post:snap:%s", postID) }
