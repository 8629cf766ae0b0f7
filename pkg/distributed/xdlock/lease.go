package xdlock

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// encodeLease 生成 "<到期纳秒>:<令牌>"。
func encodeLease(expiresAt time.Time, token string) string {
	return strconv.FormatInt(expiresAt.UnixNano(), 10) + ":" + token
}

// parseLease 解析租约值。
// 不含令牌的值按浮点秒解析，兼容只存到期时间的旧格式。
// 无法解析的值视为已到期（零时间）。
func parseLease(value string) (expiresAt time.Time, token string) {
	if ns, tok, ok := strings.Cut(value, ":"); ok {
		n, err := strconv.ParseInt(ns, 10, 64)
		if err != nil {
			return time.Time{}, tok
		}
		return time.Unix(0, n), tok
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, ""
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)), ""
}
