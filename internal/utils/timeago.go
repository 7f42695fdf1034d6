package utils

import (
	"fmt"
	"time"
)

// TimeAgo 将时间格式化为"5分钟前"、"昨天"这类相对描述
func TimeAgo(t, now time.Time) string {
	delta := now.Sub(t)
	switch {
	case delta < time.Minute:
		return "刚刚"
	case delta < time.Hour:
		return fmt.Sprintf("%d分钟前", int(delta.Minutes()))
	case delta < 24*time.Hour:
		return fmt.Sprintf("%d小时前", int(delta.Hours()))
	case delta < 48*time.Hour:
		return "昨天"
	case delta < 7*24*time.Hour:
		return fmt.Sprintf("%d天前", int(delta.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
