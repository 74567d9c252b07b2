package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"microlink-go/internal/apperrors"
	"microlink-go/internal/dto"
	"microlink-go/internal/model"
	"microlink-go/internal/repository"
	"microlink-go/pkg/logging"
	"microlink-go/pkg/utils"
	"microlink-go/response"
)

// RegisterLink 创建短链
// 唯一性依赖 short_code 的唯一索引，由数据库保证原子性；
// 并发创建同一短码时只有一个请求成功，其余收到冲突错误
func RegisterLink(ctx context.Context, req dto.CreateLinkRequest) (*model.Link, error) {
	// 规范化必须先于校验和入库（缺协议时补 https://）
	req.Normalize()

	if err := req.Validate(); err != nil {
		return nil, apperrors.InvalidRequestError(err.Error())
	}

	link := &model.Link{
		ShortCode: req.ShortCode,
		TargetURL: req.TargetURL,
	}

	// 单条受约束的 INSERT，不做先查再插
	if err := repository.DB.WithContext(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logging.Logger.Info("短码已存在",
				zap.String("short_code", req.ShortCode))
			return nil, apperrors.ConflictError("error.shortcode_conflict")
		}
		logging.Logger.Error("数据库操作失败", zap.Error(err))
		return nil, apperrors.SystemErrorDefault()
	}

	// 注册前有人访问过该短码会留下空值缓存，必须清掉
	DeleteLinkCache(link.ShortCode)

	return link, nil
}

// ListLinks 分页查询短链列表，按点击量降序（管理后台用，高流量在前）
func ListLinks(ctx context.Context, page, size int, shortCode string) (*response.PageResponse[model.Link], error) {
	// 参数校验
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}

	// 构建查询条件
	db := repository.DB.WithContext(ctx).Model(&model.Link{})
	if shortCode != "" {
		db = db.Where("short_code LIKE ?", "%"+shortCode+"%")
	}

	// 查询总记录数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		logging.Logger.Error("统计短链记录数失败", zap.Error(err))
		return nil, apperrors.SystemErrorDefault()
	}

	if total == 0 {
		return &response.PageResponse[model.Link]{
			Page:      page,
			Size:      size,
			Total:     0,
			TotalPage: 0,
			List:      []model.Link{},
		}, nil
	}

	// 查询分页数据，id 作为次级排序保证结果稳定
	var links []model.Link
	if err := db.
		Limit(size).
		Offset((page - 1) * size).
		Order("clicks DESC, id DESC").
		Find(&links).Error; err != nil {
		logging.Logger.Error("数据库操作失败", zap.Error(err))
		return nil, apperrors.SystemErrorDefault()
	}

	totalPage := (int(total) + size - 1) / size

	return &response.PageResponse[model.Link]{
		Page:      page,
		Size:      size,
		Total:     int(total),
		TotalPage: totalPage,
		List:      links,
	}, nil
}

// GetLinkByCode 按短码查询单条记录（只读，不计点击）
func GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error) {
	var link model.Link
	if err := repository.DB.WithContext(ctx).
		Where("short_code = ?", shortCode).
		First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundError("error.link_not_found")
		}
		logging.Logger.Error("查询短链失败",
			zap.String("short_code", shortCode),
			zap.Error(err))
		return nil, apperrors.SystemErrorDefault()
	}
	return &link, nil
}

// UpdateLinkTarget 仅更新短链的 target_url 字段
func UpdateLinkTarget(ctx context.Context, id uint, targetURL string) error {
	var existing model.Link
	if err := repository.DB.WithContext(ctx).First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFoundError("error.link_not_found")
		}
		logging.Logger.Warn("查询短链失败",
			zap.Uint("id", id),
			zap.Error(err))
		return apperrors.SystemErrorDefault()
	}

	// 与创建时相同的规范化与校验
	targetURL = utils.NormalizeTargetURL(targetURL)
	if err := utils.ValidateTargetURL(targetURL); err != nil {
		return apperrors.InvalidRequestError(err.Error())
	}

	if existing.TargetURL == targetURL {
		return nil // 无需更新
	}

	existing.TargetURL = targetURL
	existing.UpdatedAt = time.Now()

	if err := repository.DB.WithContext(ctx).Save(&existing).Error; err != nil {
		logging.Logger.Warn("更新短链失败",
			zap.Uint("id", id),
			zap.String("target_url", targetURL),
			zap.Error(err))
		return apperrors.SystemErrorDefault()
	}

	// 目标变了，旧缓存必须失效
	DeleteLinkCache(existing.ShortCode)

	return nil
}

// SetLinkStatus 更新短链状态（启用/禁用）
func SetLinkStatus(ctx context.Context, id uint, disabled bool) error {
	var link model.Link
	if err := repository.DB.WithContext(ctx).First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFoundError("error.link_not_found")
		}
		logging.Logger.Error("查询短链失败",
			zap.Uint("id", id),
			zap.Bool("disabled", disabled),
			zap.Error(err))
		return apperrors.SystemErrorDefault()
	}

	link.Disabled = disabled
	if err := repository.DB.WithContext(ctx).Save(&link).Error; err != nil {
		return apperrors.SystemErrorDefault()
	}

	if disabled {
		// 禁用后重定向不能再命中缓存
		DeleteLinkCache(link.ShortCode)
	}

	return nil
}

// Resolve 将短码解析为重定向目标
// 先查 Redis 缓存，未命中回源数据库；确认不存在的短码缓存空值防穿透
func Resolve(ctx context.Context, shortCode string) (*model.Link, error) {
	if err := utils.ValidateShortCode(shortCode); err != nil {
		return nil, apperrors.NotFoundError("error.link_not_found")
	}

	conn := repository.RedisPool.Get()
	defer closeRedisConn(conn)

	if link, hit, negative := cacheGetLink(conn, shortCode); negative {
		return nil, apperrors.NotFoundError("error.link_not_found")
	} else if hit {
		return link, nil
	}

	// 缓存未命中，从数据库查询
	var link model.Link
	result := repository.DB.WithContext(ctx).
		Where("short_code = ? AND disabled = ?", shortCode, false).
		First(&link)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// 只有确认不存在才缓存空值；存储故障不能污染空值缓存
			cacheEmpty(conn, shortCode)
			return nil, apperrors.NotFoundError("error.link_not_found")
		}
		logging.Logger.Error("查询短链失败",
			zap.String("short_code", shortCode),
			zap.Error(result.Error))
		return nil, apperrors.SystemErrorDefault()
	}

	cacheLink(conn, &link)

	return &link, nil
}

// IncrementClicks 点击数 +1
// 单条 UPDATE clicks = clicks + 1，由数据库保证并发下不丢更新
func IncrementClicks(ctx context.Context, shortCode string) error {
	result := repository.DB.WithContext(ctx).
		Model(&model.Link{}).
		Where("short_code = ?", shortCode).
		Update("clicks", gorm.Expr("clicks + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TrackClick 异步记录一次点击
// 与响应生命周期解耦：用后台 context，失败只记日志，不影响已发出的重定向
func TrackClick(shortCode string) {
	go func() {
		if err := IncrementClicks(context.Background(), shortCode); err != nil {
			logging.Logger.Warn("记录点击失败",
				zap.String("short_code", shortCode),
				zap.Error(err))
		}
	}()
}
