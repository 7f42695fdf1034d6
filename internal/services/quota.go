package services

import (
	"fmt"
	"time"
	"v4corner/internal/apperr"
	"v4corner/internal/models"

	"gorm.io/gorm"
)

// getTodayRange 获取当天（UTC）的开始和结束时间
func getTodayRange(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return startOfDay, startOfDay.Add(24 * time.Hour)
}

// countTodayComments 统计用户今日发布的评论数（含已删除的）
func countTodayComments(tx *gorm.DB, userID uint, now time.Time) (int64, error) {
	startOfDay, endOfDay := getTodayRange(now)
	var count int64
	err := tx.Model(&models.Comment{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, startOfDay, endOfDay).
		Count(&count).Error
	return count, err
}

// checkDailyCommentQuota 超出每日评论上限时返回 QuotaExceeded
func checkDailyCommentQuota(tx *gorm.DB, userID uint, limit int, now time.Time) error {
	count, err := countTodayComments(tx, userID, now)
	if err != nil {
		return apperr.FromStore(err, "")
	}
	if count >= int64(limit) {
		return apperr.QuotaExceeded(fmt.Sprintf("今日评论次数已达上限（%d 条），请明天再来", limit))
	}
	return nil
}
