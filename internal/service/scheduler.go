package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github-star-rank/internal/common"
	"github-star-rank/internal/config"
	"github-star-rank/internal/domain"
	"github-star-rank/internal/port"
	"github-star-rank/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrRunInProgress 已有运行在进行中，新的触发直接拒绝而不是排队
var ErrRunInProgress = common.NewError(common.ErrCodeRunInProgress, "已有抓取任务在运行")

// Scheduler 定时触发抓取，保证同一时间只有一个运行
type Scheduler struct {
	crawler  *CrawlService
	notifier port.Notifier
	cfg      config.SchedulerConfig
	cron     *cron.Cron
	logger   logrus.FieldLogger

	running atomic.Bool
	sweeps  sync.WaitGroup

	mu         sync.Mutex
	lastResult *domain.CrawlResult
	lastRunAt  time.Time
	lastErr    error
	entries    map[domain.Period]cron.EntryID
}

// Status 调度器当前状态
type Status struct {
	Running    bool                        `json:"running"`
	SeenCount  int                         `json:"seen_count"`
	LastRunAt  *time.Time                  `json:"last_run_at,omitempty"`
	LastResult *domain.CrawlResult         `json:"last_result,omitempty"`
	LastError  string                      `json:"last_error,omitempty"`
	NextRuns   map[domain.Period]time.Time `json:"next_runs,omitempty"`
}

// NewScheduler notifier 可以为 nil
func NewScheduler(crawler *CrawlService, notifier port.Notifier, cfg config.SchedulerConfig, log logrus.FieldLogger) *Scheduler {
	l := logger.OrDefault(log)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		crawler:  crawler,
		notifier: notifier,
		cfg:      cfg,
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.PrintfLogger(l)))),
		logger:   l,
		entries:  make(map[domain.Period]cron.EntryID),
	}
}

// TriggerRun 立即运行一次，已有运行时返回 ErrRunInProgress
func (s *Scheduler) TriggerRun(ctx context.Context, period domain.Period, language string, limit int) (*domain.CrawlResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	result, err := s.crawler.Run(ctx, period, language, limit)
	s.record(result, err)

	if result != nil && len(result.Persisted) > 0 && s.notifier != nil {
		if nerr := s.notifier.NotifyRun(ctx, result); nerr != nil {
			s.logger.WithError(nerr).WithField("run_id", result.RunID).Warn("⚠️ 推送运行报告失败")
		}
	}
	return result, err
}

// TriggerAnalysis 单项目分析，与抓取互斥
func (s *Scheduler) TriggerAnalysis(ctx context.Context, owner, name string) (*domain.RepositoryRecord, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	return s.crawler.AnalyzeRepository(ctx, owner, name)
}

// Start 注册三个时间段的定时任务，按配置决定是否立即扫一遍
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := s.cfg.Jobs()
	for _, period := range domain.Periods() {
		job := jobs[string(period)]
		if job.Disabled {
			s.logger.WithField("period", period).Info("⏸️ 定时任务已禁用")
			continue
		}

		id, err := s.cron.AddFunc(job.Cron, func() { s.runScheduled(ctx, period, job) })
		if err != nil {
			return common.WrapError(common.ErrCodeInvalidInput, "注册定时任务失败: "+string(period), err)
		}
		s.mu.Lock()
		s.entries[period] = id
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{"period": period, "cron": job.Cron, "limit": job.Limit}).Info("⏰ 已注册定时任务")
	}

	s.cron.Start()

	if s.cfg.StartupSweep {
		s.sweeps.Add(1)
		go func() {
			defer s.sweeps.Done()
			s.sweep(ctx)
		}()
	}
	return nil
}

// Stop 停止调度并等待正在执行的任务和启动扫描结束，调用前应先取消传给 Start 的 ctx
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.sweeps.Wait()
	s.logger.Info("🛑 调度器已停止")
}

// ClearHistory 清空去重集合
func (s *Scheduler) ClearHistory() {
	s.crawler.Seen().Clear()
	s.logger.Info("🧹 已清空抓取历史")
}

// Status 当前状态快照
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    s.running.Load(),
		SeenCount:  s.crawler.Seen().Len(),
		LastResult: s.lastResult,
	}
	if !s.lastRunAt.IsZero() {
		at := s.lastRunAt
		st.LastRunAt = &at
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if len(s.entries) > 0 {
		st.NextRuns = make(map[domain.Period]time.Time, len(s.entries))
		for period, id := range s.entries {
			st.NextRuns[period] = s.cron.Entry(id).Next
		}
	}
	return st
}

// runScheduled 先跑主榜单，再依次跑各语言榜单，每个语言是一次独立的运行
func (s *Scheduler) runScheduled(ctx context.Context, period domain.Period, job config.JobConfig) {
	log := s.logger.WithField("period", period)
	if !s.runOne(ctx, log, period, job.Language, job.Limit) {
		return
	}

	for _, language := range job.Languages {
		if strings.EqualFold(language, job.Language) {
			continue
		}
		if !pause(ctx, s.cfg.LanguagePause) {
			return
		}
		s.runOne(ctx, log.WithField("language", language), period, language, job.LanguageLimit)
	}
}

// runOne 返回 false 表示有别的运行占着，本次触发整体跳过
func (s *Scheduler) runOne(ctx context.Context, log logrus.FieldLogger, period domain.Period, language string, limit int) bool {
	_, err := s.TriggerRun(ctx, period, language, limit)
	switch {
	case errors.Is(err, ErrRunInProgress):
		log.Warn("⏭️ 上一次任务仍在运行，跳过本次触发")
		return false
	case err != nil:
		log.WithError(err).Error("❌ 定时抓取失败")
	}
	return true
}

// sweep 启动后依次跑 daily → weekly → monthly，中间停顿一下
func (s *Scheduler) sweep(ctx context.Context) {
	jobs := s.cfg.Jobs()
	s.logger.Info("🧭 开始启动扫描")
	for i, period := range domain.Periods() {
		if i > 0 && !pause(ctx, s.cfg.SweepPause) {
			return
		}
		job := jobs[string(period)]
		if job.Disabled {
			continue
		}
		s.runScheduled(ctx, period, job)
	}
	s.logger.Info("🧭 启动扫描完成")
}

// pause ctx 被取消时返回 false
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) record(result *domain.CrawlResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = time.Now()
	s.lastErr = err
	if result != nil {
		s.lastResult = result
	}
}
