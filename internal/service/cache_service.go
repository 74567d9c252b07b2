package service

import (
	"context"
	"encoding/json"

	"github.com/gomodule/redigo/redis"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"microlink-go/constant"
	"microlink-go/internal/model"
	"microlink-go/internal/repository"
	"microlink-go/pkg/logging"
)

func closeRedisConn(conn redis.Conn) {
	if err := conn.Close(); err != nil {
		logging.Logger.Error("Failed to close Redis connection",
			zap.Error(err),
			zap.String("connection_type", "redis"),
		)
	}
}

// cacheGetLink 读取短链缓存
// 返回值：命中的记录、是否命中、是否命中空值（短码确认不存在）
func cacheGetLink(conn redis.Conn, shortCode string) (*model.Link, bool, bool) {
	cacheKey := constant.GetLinkKey(shortCode)

	cachedValue, err := redis.Bytes(conn.Do("GET", cacheKey))
	if err != nil {
		if err != redis.ErrNil {
			logging.Logger.Warn("Error getting from Redis",
				zap.String("cache_key", cacheKey),
				zap.Error(err))
		}
		return nil, false, false
	}

	// 空字符串是防穿透的空值标记
	if len(cachedValue) == 0 {
		return nil, false, true
	}

	var link model.Link
	if err := json.Unmarshal(cachedValue, &link); err != nil {
		logging.Logger.Warn("Failed to unmarshal cached value",
			zap.String("cache_key", cacheKey),
			zap.Error(err))
		return nil, false, false
	}
	return &link, true, false
}

// cacheLink 缓存短链记录（1小时）
func cacheLink(conn redis.Conn, link *model.Link) {
	cacheKey := constant.GetLinkKey(link.ShortCode)

	cachedValue, err := json.Marshal(link)
	if err != nil {
		logging.Logger.Error("序列化短链失败",
			zap.String("cache_key", cacheKey),
			zap.Error(err))
		return
	}

	if _, err := conn.Do("SET", cacheKey, cachedValue, "EX", constant.LinkCacheTTL); err != nil {
		logging.Logger.Error("设置缓存失败",
			zap.String("cache_key", cacheKey),
			zap.Error(err))
	}
}

// cacheEmpty 缓存空值，防止缓存穿透
func cacheEmpty(conn redis.Conn, shortCode string) {
	cacheKey := constant.GetLinkKey(shortCode)
	if _, err := conn.Do("SET", cacheKey, "", "EX", constant.EmptyCacheTTL); err != nil {
		logging.Logger.Error("设置空值缓存失败",
			zap.String("cache_key", cacheKey),
			zap.Error(err))
	}
}

// DeleteLinkCache 删除短链缓存（更新/禁用后调用）
func DeleteLinkCache(shortCode string) {
	conn := repository.RedisPool.Get()
	defer closeRedisConn(conn)

	cacheKey := constant.GetLinkKey(shortCode)
	if _, err := conn.Do("DEL", cacheKey); err != nil {
		logging.Logger.Warn("Redis 删除缓存失败",
			zap.String("cache_key", cacheKey),
			zap.Error(err))
	}
}

// WarmHotLinks 缓存预热：把点击量最高的一批短链刷进 Redis
// 由定时任务每十分钟执行，热门短链不受缓存过期影响
func WarmHotLinks(ctx context.Context) error {
	count := viper.GetInt("cache.warm_count")
	if count <= 0 {
		count = 100
	}

	var links []model.Link
	if err := repository.DB.WithContext(ctx).
		Where("disabled = ?", false).
		Order("clicks DESC, id DESC").
		Limit(count).
		Find(&links).Error; err != nil {
		logging.Logger.Error("获取热门短链失败", zap.Error(err))
		return err
	}

	conn := repository.RedisPool.Get()
	defer closeRedisConn(conn)

	for i := range links {
		cacheLink(conn, &links[i])
	}

	logging.Logger.Info("WarmHotLinks finished", zap.Int("count", len(links)))
	return nil
}
