package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"v4corner/internal/apperr"
	"v4corner/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	reconcileQueueSize = 1000
	reconcileBatchSize = 50
	reconcileFlush     = 500 * time.Millisecond
	reconcileScanBatch = 500
)

// Recounter accepts posts whose counters may have drifted.
type Recounter interface {
	ScheduleReconcile(postID uint)
}

// ReconcileReport summarizes a full pass.
type ReconcileReport struct {
	Scanned   int64 `json:"scanned"`
	Corrected int64 `json:"corrected"`
}

// Reconciler 重新统计文章的点赞数与收藏用户数并修正计数器
type Reconciler struct {
	db      *gorm.DB
	hour    int
	queue   chan uint // 待校对的文章 ID
	pending map[uint]bool
	mu      sync.Mutex
}

func NewReconciler(conn *gorm.DB, hour int) *Reconciler {
	return &Reconciler{
		db:      conn,
		hour:    hour,
		queue:   make(chan uint, reconcileQueueSize),
		pending: make(map[uint]bool),
	}
}

// ReconcilePost recounts one post under its row lock and reports whether
// either counter was corrected.
func (r *Reconciler) ReconcilePost(ctx context.Context, postID uint) (changed bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := lockPost(tx, postID)
		if err != nil {
			return err
		}

		var likes int64
		if err := tx.Model(&models.Like{}).Where("post_id = ?", postID).Count(&likes).Error; err != nil {
			return apperr.FromStore(err, "")
		}
		var favoriters int64
		if err := tx.Model(&models.Favorite{}).Where("post_id = ?", postID).
			Distinct("user_id").Count(&favoriters).Error; err != nil {
			return apperr.FromStore(err, "")
		}

		updates := map[string]interface{}{}
		if int64(post.LikeCount) != likes {
			updates["like_count"] = likes
			reconcileCorrections.WithLabelValues("like_count").Inc()
		}
		if int64(post.FavoriteCount) != favoriters {
			updates["favorite_count"] = favoriters
			reconcileCorrections.WithLabelValues("favorite_count").Inc()
		}
		if len(updates) == 0 {
			return nil
		}
		changed = true
		log.Warn().Uint("post_id", postID).
			Int("like_count", post.LikeCount).Int64("likes", likes).
			Int("favorite_count", post.FavoriteCount).Int64("favoriters", favoriters).
			Msg("counter drift corrected")
		return apperr.FromStore(tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumns(updates).Error, "")
	})
	return changed, err
}

// ReconcileAll walks every post in id order, checking up to parallelism
// posts at once.
func (r *Reconciler) ReconcileAll(ctx context.Context, parallelism int) (ReconcileReport, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	var scanned, corrected atomic.Int64
	var lastID uint

	for {
		var ids []uint
		if err := r.db.WithContext(ctx).Model(&models.Post{}).
			Where("id > ?", lastID).Order("id").Limit(reconcileScanBatch).
			Pluck("id", &ids).Error; err != nil {
			return ReconcileReport{}, apperr.FromStore(err, "")
		}
		if len(ids) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)
		for _, id := range ids {
			g.Go(func() error {
				changed, err := r.ReconcilePost(gctx, id)
				if apperr.CodeOf(err) == apperr.CodeNotFound {
					// 扫描期间被删除
					return nil
				}
				if err != nil {
					return err
				}
				scanned.Add(1)
				if changed {
					corrected.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return ReconcileReport{Scanned: scanned.Load(), Corrected: corrected.Load()}, err
		}
		lastID = ids[len(ids)-1]
	}

	return ReconcileReport{Scanned: scanned.Load(), Corrected: corrected.Load()}, nil
}

// Start 启动后台 worker，ctx 结束时退出
func (r *Reconciler) Start(ctx context.Context) {
	go r.worker(ctx)
}

// ScheduleReconcile 将文章加入校对队列（异步），队列中已有的会被跳过
func (r *Reconciler) ScheduleReconcile(postID uint) {
	r.mu.Lock()
	if r.pending[postID] {
		r.mu.Unlock()
		return
	}
	r.pending[postID] = true
	r.mu.Unlock()

	select {
	case r.queue <- postID:
	default:
		r.mu.Lock()
		delete(r.pending, postID)
		r.mu.Unlock()
		log.Warn().Uint("post_id", postID).Msg("reconcile queue full, dropping post")
	}
}

func (r *Reconciler) worker(ctx context.Context) {
	batch := make([]uint, 0, reconcileBatchSize)
	ticker := time.NewTicker(reconcileFlush)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case postID := <-r.queue:
			batch = append(batch, postID)
			if len(batch) >= reconcileBatchSize {
				r.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.processBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Reconciler) processBatch(ctx context.Context, postIDs []uint) {
	for _, postID := range postIDs {
		if _, err := r.ReconcilePost(ctx, postID); err != nil && apperr.CodeOf(err) != apperr.CodeNotFound {
			log.Error().Err(err).Uint("post_id", postID).Msg("reconcile failed")
		}

		r.mu.Lock()
		delete(r.pending, postID)
		r.mu.Unlock()
	}
}

// Pending reports how many posts are queued or being processed.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// StartScheduled 每天在配置的整点（UTC）跑一次全量校对
func (r *Reconciler) StartScheduled(ctx context.Context, parallelism int) {
	go func() {
		for {
			wait := time.Until(nextRun(time.Now().UTC(), r.hour))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			log.Info().Msg("开始定时校对计数器...")
			report, err := r.ReconcileAll(ctx, parallelism)
			if err != nil {
				log.Error().Err(err).Msg("定时校对失败")
				continue
			}
			log.Info().Int64("scanned", report.Scanned).Int64("corrected", report.Corrected).Msg("定时校对完成")
		}
	}()
}

// nextRun returns the next time at hour:00 UTC strictly after now.
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
