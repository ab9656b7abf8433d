package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions recorded by the social core.
const (
	ActionGroupDeleted   = "group_deleted"
	ActionMemberRemoved  = "member_removed"
	ActionRoleChanged    = "role_changed"
	ActionAdminTransfer  = "admin_transferred"
	ActionReportResolved = "report_resolved"
	ActionUserBanned     = "user_banned"
)

// Entry is one privileged action. TraceID defaults to the one carried by
// the context passed to Log.
type Entry struct {
	TraceID      string
	ActorID      int64
	Action       string
	TargetUserID *int64
	GroupID      *int64
	Detail       interface{}
	Error        string
}

// Option tunes a Service.
type Option func(*Service)

// WithBatch sets how many entries are written per insert and how long a
// partial batch may wait.
func WithBatch(size int, every time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
		if every > 0 {
			s.flushEvery = every
		}
	}
}

// WithQueue sets how many entries may wait for the writer before Log drops.
func WithQueue(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = n
		}
	}
}

// Service persists audit entries off the request path. Entries are queued
// and inserted in batches; Stop drains the queue.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger

	queue      int
	batchSize  int
	flushEvery time.Duration

	in       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64
}

// New starts an audit Service writing to db.
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Service {
	svc := &Service{
		db:         db,
		logger:     logger.Named("audit"),
		queue:      1024,
		batchSize:  100,
		flushEvery: 2 * time.Second,
		stopCh:     make(chan struct{}),
	}
	for _, o := range opts {
		o(svc)
	}
	svc.in = make(chan *model.AuditLog, svc.queue)
	svc.wg.Add(1)
	go svc.run()
	return svc
}

// Log queues entry. It never blocks: when the queue is full the entry is
// counted as dropped. A nil Service discards everything.
func (svc *Service) Log(ctx context.Context, entry Entry) {
	if svc == nil {
		return
	}
	if entry.TraceID == "" {
		entry.TraceID = TraceIDFrom(ctx)
	}
	record := &model.AuditLog{
		TraceID:      entry.TraceID,
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		TargetUserID: entry.TargetUserID,
		GroupID:      entry.GroupID,
		Error:        entry.Error,
	}
	if entry.Detail != nil {
		if raw, err := json.Marshal(entry.Detail); err == nil {
			record.Detail = datatypes.JSON(raw)
		} else {
			svc.logger.Warn("detail not serializable", zap.String("action", entry.Action), zap.Error(err))
		}
	}
	select {
	case svc.in <- record:
	default:
		svc.dropped.Add(1)
		svc.logger.Warn("queue full, entry dropped",
			zap.String("action", entry.Action), zap.String("trace_id", entry.TraceID))
	}
}

// Dropped reports how many entries Log discarded on a full queue.
func (svc *Service) Dropped() int64 {
	if svc == nil {
		return 0
	}
	return svc.dropped.Load()
}

// Stop flushes queued entries and waits for the writer. Safe to call twice.
func (svc *Service) Stop(_ context.Context) {
	if svc == nil {
		return
	}
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) run() {
	defer svc.wg.Done()
	tick := time.NewTicker(svc.flushEvery)
	defer tick.Stop()

	pending := make([]*model.AuditLog, 0, svc.batchSize)
	write := func() {
		if len(pending) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(pending, svc.batchSize).Error; err != nil {
			svc.logger.Error("batch write failed", zap.Int("entries", len(pending)), zap.Error(err))
		}
		pending = pending[:0]
	}

	for {
		select {
		case rec := <-svc.in:
			if pending = append(pending, rec); len(pending) >= svc.batchSize {
				write()
			}
		case <-tick.C:
			write()
		case <-svc.stopCh:
			for {
				select {
				case rec := <-svc.in:
					pending = append(pending, rec)
				default:
					write()
					return
				}
			}
		}
	}
}

// Filter narrows Recent. Zero fields match everything.
type Filter struct {
	ActorID      int64
	TargetUserID int64
	GroupID      int64
	Action       string
	TraceID      string
	Limit        int
}

// Recent returns the newest persisted entries matching f, newest first.
// Limit defaults to 50 and is capped at 500.
func (svc *Service) Recent(ctx context.Context, f Filter) ([]model.AuditLog, error) {
	q := svc.db.WithContext(ctx).Model(&model.AuditLog{})
	if f.ActorID > 0 {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.TargetUserID > 0 {
		q = q.Where("target_user_id = ?", f.TargetUserID)
	}
	if f.GroupID > 0 {
		q = q.Where("group_id = ?", f.GroupID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.TraceID != "" {
		q = q.Where("trace_id = ?", f.TraceID)
	}
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = 50
	case limit > 500:
		limit = 500
	}
	var out []model.AuditLog
	err := q.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
