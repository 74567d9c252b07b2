package service

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"microlink-go/internal/model"
	"microlink-go/internal/repository"
	"microlink-go/pkg/logging"
)

var testDBSeq int64

// initTestEnv 为单个测试搭建隔离环境：
// 内存 sqlite 顶替 MySQL，miniredis 顶替 Redis
func initTestEnv(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	logging.InitTestLogger()

	mr := miniredis.RunT(t)
	viper.Set("redis.addr", mr.Addr())
	viper.Set("redis.password", "")
	repository.InitRedis()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// sqlite 单写者，串行化连接避免 database is locked
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.Link{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repository.DB = db
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return mr
}

func mustRegister(t *testing.T, shortCode, targetURL string) *model.Link {
	t.Helper()
	link, err := registerRaw(shortCode, targetURL)
	if err != nil {
		t.Fatalf("register %q: %v", shortCode, err)
	}
	return link
}
