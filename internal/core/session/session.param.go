package session

import "github.com/ixugo/goddd/pkg/web"

type FindSessionsInput struct {
	web.PagerFilter
	// Day 过滤某一天的会话，格式 YYYY-MM-DD
	Day string `form:"day"`
}
