package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/moderation"
)

// GormStore implements Interface on top of a GORM database. SQLiteStore and
// MySQLStore only differ in how they open the connection.
type GormStore struct {
	DB      *gorm.DB
	dialect string
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate() error {
	if err := s.DB.AutoMigrate(&JobRecord{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("dialect", s.dialect).
			Build()
	}
	return nil
}

func (s *GormStore) Create(ctx context.Context, job *moderation.Job) error {
	rec, err := toRecord(job)
	if err != nil {
		return dbError(err, "encode", job.ID)
	}
	result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		return dbError(result.Error, "create", job.ID)
	}
	if result.RowsAffected == 0 {
		return jobExists(job.ID)
	}
	return nil
}

func (s *GormStore) Save(ctx context.Context, job *moderation.Job) error {
	rec, err := toRecord(job)
	if err != nil {
		return dbError(err, "encode", job.ID)
	}
	result := s.DB.WithContext(ctx).Model(&JobRecord{}).
		Where("id = ?", job.ID).
		Select("*").Omit("id", "created_at").
		Updates(rec)
	if result.Error != nil {
		return dbError(result.Error, "save", job.ID)
	}
	if result.RowsAffected == 0 {
		// MySQL reports zero affected rows when nothing changed
		var n int64
		if err := s.DB.WithContext(ctx).Model(&JobRecord{}).Where("id = ?", job.ID).Count(&n).Error; err != nil {
			return dbError(err, "save", job.ID)
		}
		if n == 0 {
			return jobNotFound(job.ID)
		}
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*moderation.Job, error) {
	var rec JobRecord
	err := s.DB.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, jobNotFound(id)
	}
	if err != nil {
		return nil, dbError(err, "get", id)
	}
	job, err := fromRecord(&rec)
	if err != nil {
		return nil, dbError(err, "decode", id)
	}
	return job, nil
}

func (s *GormStore) List(ctx context.Context, filter Filter) ([]*moderation.Job, error) {
	filter = filter.Normalize()
	q := s.DB.WithContext(ctx).Model(&JobRecord{})
	if filter.State != "" {
		q = q.Where("state = ?", string(filter.State))
	}
	if filter.Verdict != "" {
		q = q.Where("verdict = ?", string(filter.Verdict))
	}
	var recs []JobRecord
	err := q.Order("created_at DESC").Order("id ASC").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&recs).Error
	if err != nil {
		return nil, dbError(err, "list", "")
	}
	return decodeAll(recs)
}

func (s *GormStore) Pending(ctx context.Context) ([]*moderation.Job, error) {
	var recs []JobRecord
	err := s.DB.WithContext(ctx).
		Where("state IN ?", []string{string(moderation.JobQueued), string(moderation.JobAnalyzing)}).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, dbError(err, "pending", "")
	}
	return decodeAll(recs)
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&JobRecord{})
	if result.Error != nil {
		return dbError(result.Error, "delete", id)
	}
	if result.RowsAffected == 0 {
		return jobNotFound(id)
	}
	return nil
}

// statsRow is one row of the per state and verdict aggregation.
type statsRow struct {
	State        string
	Verdict      string
	Triggered    string
	ProcessingMs int64
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var rows []statsRow
	err := s.DB.WithContext(ctx).Model(&JobRecord{}).
		Select("state", "verdict", "triggered", "processing_ms").
		Find(&rows).Error
	if err != nil {
		return Stats{}, dbError(err, "stats", "")
	}
	sum := newSummary()
	for _, r := range rows {
		sum.add(moderation.JobState(r.State), moderation.Verdict(r.Verdict),
			splitTriggered(r.Triggered), time.Duration(r.ProcessingMs)*time.Millisecond)
	}
	return sum.result(), nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	if s.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "")
	}
	GetLogger().Debug("database connection closed", logger.String("dialect", s.dialect))
	return nil
}

func decodeAll(recs []JobRecord) ([]*moderation.Job, error) {
	out := make([]*moderation.Job, 0, len(recs))
	for i := range recs {
		job, err := fromRecord(&recs[i])
		if err != nil {
			return nil, dbError(err, "decode", recs[i].ID)
		}
		out = append(out, job)
	}
	return out, nil
}
