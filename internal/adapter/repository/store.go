package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github-star-rank/internal/common"
	"github-star-rank/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 实现了 port.RepositoryStore 接口，每个 canonical_url 一行
type Store struct {
	db *gorm.DB

	once          sync.Once
	upsertColumns []string
	parseErr      error
}

// NewStore 使用已迁移的连接
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// detailFields 详情成功时刷新的元数据。AI 结果和 Period（首次入库的榜单）保持不变
var detailFields = []string{
	"HTMLURL", "GitHubID", "Description", "Language",
	"Stars", "Forks", "Watchers", "OpenIssues", "SizeKB", "Topics",
	"License", "IsFork", "Homepage", "DefaultBranch",
	"RepoCreatedAt", "RepoUpdatedAt", "PushedAt",
}

// refreshFields 详情拿不到时只碰 UpdatedAt，预览图为空（README 失败）时也不覆盖
func refreshFields(c *domain.Candidate) []string {
	fields := []string{"UpdatedAt"}
	if c.DetailLoaded {
		fields = append(fields, detailFields...)
	}
	if c.PreviewImage != "" {
		fields = append(fields, "PreviewImage")
	}
	return fields
}

// upsertExcluded 冲突更新时保留的列
var upsertExcluded = map[string]bool{
	"id":            true,
	"canonical_url": true,
	"collected_at":  true,
}

// FindByURL 找不到时返回 nil, nil
func (s *Store) FindByURL(ctx context.Context, url string) (*domain.RepositoryRecord, error) {
	var records []*domain.RepositoryRecord
	err := s.db.WithContext(ctx).
		Where("canonical_url = ?", url).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询仓库失败", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Upsert 以 canonical_url 为冲突键写入，重复写入同一仓库只会更新这一行
func (s *Store) Upsert(ctx context.Context, record *domain.RepositoryRecord) error {
	if record == nil || record.CanonicalURL == "" {
		return common.NewError(common.ErrCodeInvalidInput, "记录缺少 canonical_url")
	}
	if record.OverallScore == nil {
		return common.NewError(common.ErrCodeInvalidInput, "没有总分的记录不能入库")
	}

	columns, err := s.columns()
	if err != nil {
		return err
	}

	// 主键交给数据库，冲突只按 canonical_url 判断
	row := *record
	row.ID = 0
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "canonical_url"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("保存仓库 %s 失败", record.FullName), err)
	}
	record.ID = row.ID
	return nil
}

// RefreshMetadata 返回是否命中已有记录。详情失败的候选不会用零值覆盖库里的元数据
func (s *Store) RefreshMetadata(ctx context.Context, c *domain.Candidate) (bool, error) {
	if c == nil {
		return false, common.NewError(common.ErrCodeInvalidInput, "候选为空")
	}
	update := &domain.RepositoryRecord{}
	update.ApplyCandidate(c)

	result := s.db.WithContext(ctx).
		Model(&domain.RepositoryRecord{}).
		Where("canonical_url = ?", update.CanonicalURL).
		Select(refreshFields(c)).
		Updates(update)
	if result.Error != nil {
		return false, common.WrapError(common.ErrCodeDatabase, "刷新仓库元数据失败", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// columns 从 schema 里取出冲突时需要覆盖的列名
func (s *Store) columns() ([]string, error) {
	s.once.Do(func() {
		stmt := &gorm.Statement{DB: s.db}
		if err := stmt.Parse(&domain.RepositoryRecord{}); err != nil {
			s.parseErr = common.WrapError(common.ErrCodeInternal, "解析表结构失败", err)
			return
		}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" || upsertExcluded[field.DBName] {
				continue
			}
			s.upsertColumns = append(s.upsertColumns, field.DBName)
		}
		if len(s.upsertColumns) == 0 {
			s.parseErr = common.WrapError(common.ErrCodeInternal, "解析表结构失败", errors.New("没有可更新的列"))
		}
	})
	return s.upsertColumns, s.parseErr
}
