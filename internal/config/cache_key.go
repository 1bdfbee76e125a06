package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ContestRoom returns the in-process room identifier for a contest.
func (r *CacheKeyStruct) ContestRoom(contestID string) string {
	return fmt.Sprintf("contest:%s", contestID)
}

// ContestLiveChannel returns the Redis PubSub channel carrying live updates for a contest.
func (r *CacheKeyStruct) ContestLiveChannel(contestID string) string {
	return fmt.Sprintf("contest:%s:live", contestID)
}

// ContestLivePattern matches every contest live channel.
func (r *CacheKeyStruct) ContestLivePattern() string {
	return "contest:*:live"
}

var CacheKey = NewCacheKeyStruct()
