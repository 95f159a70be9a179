package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github-star-rank/internal/common"
	"github-star-rank/internal/domain"

	"gorm.io/gorm"
)

// TranslationCache 实现了 port.TranslationCache 接口，只追加不覆盖，读取最新一条
type TranslationCache struct {
	db     *gorm.DB
	source string
}

// NewTranslationCache source 记录翻译来自哪个 AI 后端
func NewTranslationCache(db *gorm.DB, source string) *TranslationCache {
	return &TranslationCache{db: db, source: source}
}

// TextHash 原文的 sha256，用来走索引
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get 哈希命中后再比对原文，避免碰撞
func (c *TranslationCache) Get(ctx context.Context, original string) (string, bool, error) {
	var entries []domain.TranslationCacheEntry
	err := c.db.WithContext(ctx).
		Where("text_hash = ? AND original_text = ?", TextHash(original), original).
		Order("id DESC").
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return "", false, common.WrapError(common.ErrCodeDatabase, "读取翻译缓存失败", err)
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].TranslatedText, true, nil
}

// Put 新增一条缓存记录
func (c *TranslationCache) Put(ctx context.Context, original, translated string) error {
	entry := &domain.TranslationCacheEntry{
		TextHash:       TextHash(original),
		OriginalText:   original,
		TranslatedText: translated,
		Source:         c.source,
	}
	if err := c.db.WithContext(ctx).Create(entry).Error; err != nil {
		return common.WrapError(common.ErrCodeDatabase, "写入翻译缓存失败", err)
	}
	return nil
}
