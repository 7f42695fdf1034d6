package utils

import (
	"strconv"
)

// StringToInt converts string to int, returns 0 if error
func StringToInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

// ParseID parses a positive numeric identifier.
func ParseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// Page clamps page/size query values: page >= 1, 1 <= size <= maxSize.
func Page(pageStr, sizeStr string, defaultSize, maxSize int) (page, size int) {
	page = StringToInt(pageStr)
	if page < 1 {
		page = 1
	}
	size = StringToInt(sizeStr)
	if size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}
