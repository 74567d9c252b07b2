package repository

import (
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"microlink-go/internal/model"
	"microlink-go/pkg/logging"
)

var DB *gorm.DB

func InitDB(logger *zap.Logger, atomicLogLevel zap.AtomicLevel) {
	dsn := viper.GetString("db.dsn")
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logging.NewGormLogger(logger, logging.ToGormLogLevel(atomicLogLevel.Level())),
		// 唯一键冲突翻译成 gorm.ErrDuplicatedKey，创建短链依赖该行为
		TranslateError: true,
	})
	if err != nil {
		logging.Logger.Fatal("Failed to connect database", zap.Error(err))
	}

	// 连接池，避免单个慢请求占死共享连接
	sqlDB, err := db.DB()
	if err != nil {
		logging.Logger.Fatal("Failed to get sql.DB", zap.Error(err))
	}
	maxOpen := viper.GetInt("db.max_open_conns")
	if maxOpen <= 0 {
		maxOpen = 20
	}
	maxIdle := viper.GetInt("db.max_idle_conns")
	if maxIdle <= 0 {
		maxIdle = 5
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(&model.Link{})
	if err != nil {
		logging.Logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	DB = db
}
