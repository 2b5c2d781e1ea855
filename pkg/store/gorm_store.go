package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Sibusisongondo/Tdone/pkg/domain"
)

const migrateLockID int64 = 51907733

// ErrNotFound is returned by mutations that address a missing row.
var ErrNotFound = errors.New("record not found")

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type GormStoreOptions struct {
	Dialector gorm.Dialector
}

type GormStoreOption func(*GormStoreOptions)

// WithDialector replaces the Postgres dialector, e.g. with SQLite in tests.
func WithDialector(d gorm.Dialector) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Dialector = d
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	dialector := opts.Dialector
	if dialector == nil {
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("database URL required")
		}
		dialector = postgres.Open(dsn)
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
		// profiles are created lazily, so magazines may briefly reference a missing one
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ProfileModel{}, &MagazineModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return fn(db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveMagazine inserts a magazine row.
func (s *GormStore) SaveMagazine(ctx context.Context, m domain.Magazine) error {
	model := magazineToModel(m)
	return s.db.WithContext(ctx).Omit("Artist").Create(&model).Error
}

// GetMagazine retrieves a magazine with its artist name.
func (s *GormStore) GetMagazine(ctx context.Context, id string) (domain.Magazine, bool, error) {
	var model MagazineModel
	if err := s.db.WithContext(ctx).Preload("Artist").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Magazine{}, false, nil
		}
		return domain.Magazine{}, false, err
	}
	return magazineFromModel(model), true, nil
}

// ListMagazines returns magazines ordered by created_at, newest first.
func (s *GormStore) ListMagazines(ctx context.Context, filter MagazineFilter) ([]domain.Magazine, error) {
	tx := s.db.WithContext(ctx).Preload("Artist").Order("created_at DESC").Order("id ASC")
	if filter.UserID != "" {
		tx = tx.Where("user_id = ?", filter.UserID)
	}
	if filter.Category != "" {
		tx = tx.Where("category = ?", filter.Category)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		tx = tx.Where(`LOWER(title) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(q))+"%")
	}
	tx = tx.Limit(NormalizeLimit(filter.Limit))
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	var models []MagazineModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Magazine, 0, len(models))
	for _, m := range models {
		res = append(res, magazineFromModel(m))
	}
	return res, nil
}

// DeleteMagazine removes a magazine row inside a transaction.
func (s *GormStore) DeleteMagazine(ctx context.Context, id string, beforeCommit func() error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&MagazineModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if beforeCommit != nil {
			return beforeCommit()
		}
		return nil
	})
}

// CountMagazines returns number of matching magazines.
func (s *GormStore) CountMagazines(ctx context.Context, filter CountFilter) (int, error) {
	var count int64
	if err := s.countScope(ctx, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountCategories returns number of distinct categories in use.
func (s *GormStore) CountCategories(ctx context.Context, filter CountFilter) (int, error) {
	var count int64
	if err := s.countScope(ctx, filter).Distinct("category").Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *GormStore) countScope(ctx context.Context, filter CountFilter) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&MagazineModel{})
	if filter.UserID != "" {
		tx = tx.Where("user_id = ?", filter.UserID)
	}
	if !filter.CreatedSince.IsZero() {
		tx = tx.Where("created_at >= ?", filter.CreatedSince)
	}
	return tx
}

// EnsureProfile inserts p unless a profile with the same ID exists, and returns the stored profile.
func (s *GormStore) EnsureProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	model := profileToModel(p)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	model.UpdatedAt = model.CreatedAt
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
		return domain.Profile{}, err
	}
	var stored ProfileModel
	if err := db.First(&stored, "id = ?", p.ID).Error; err != nil {
		return domain.Profile{}, err
	}
	return profileFromModel(stored), nil
}

// GetProfile returns a profile by ID.
func (s *GormStore) GetProfile(ctx context.Context, id string) (domain.Profile, bool, error) {
	var model ProfileModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Profile{}, false, nil
		}
		return domain.Profile{}, false, err
	}
	return profileFromModel(model), true, nil
}

// CountProfiles returns number of registered users.
func (s *GormStore) CountProfiles(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ProfileModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func magazineToModel(m domain.Magazine) MagazineModel {
	return MagazineModel{
		ID:               m.ID,
		UserID:           m.UserID,
		Title:            m.Title,
		Description:      m.Description,
		Category:         m.Category,
		FileName:         m.FileName,
		FileSize:         m.FileSize,
		FileKey:          m.FileKey,
		CoverKey:         m.CoverKey,
		PageCount:        m.PageCount,
		IsDownloadable:   m.IsDownloadable,
		IsReadableOnline: m.IsReadableOnline,
		CreatedAt:        m.CreatedAt,
	}
}

func magazineFromModel(m MagazineModel) domain.Magazine {
	mag := domain.Magazine{
		ID:               m.ID,
		UserID:           m.UserID,
		Title:            m.Title,
		Description:      m.Description,
		Category:         m.Category,
		FileName:         m.FileName,
		FileSize:         m.FileSize,
		FileKey:          m.FileKey,
		CoverKey:         m.CoverKey,
		PageCount:        m.PageCount,
		IsDownloadable:   m.IsDownloadable,
		IsReadableOnline: m.IsReadableOnline,
		CreatedAt:        m.CreatedAt,
	}
	if m.Artist != nil {
		mag.ArtistName = m.Artist.ArtistName
	}
	return mag
}

func profileToModel(p domain.Profile) ProfileModel {
	var links datatypes.JSONMap
	if len(p.SocialLinks) > 0 {
		links = make(datatypes.JSONMap, len(p.SocialLinks))
		for k, v := range p.SocialLinks {
			links[k] = v
		}
	}
	return ProfileModel{
		ID:          p.ID,
		ArtistName:  p.ArtistName,
		FullName:    p.FullName,
		Bio:         p.Bio,
		Website:     p.Website,
		SocialLinks: links,
		CreatedAt:   p.CreatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.Profile {
	links := make(map[string]string, len(m.SocialLinks))
	for k, v := range m.SocialLinks {
		if s, ok := v.(string); ok {
			links[k] = s
		}
	}
	return domain.Profile{
		ID:          m.ID,
		ArtistName:  m.ArtistName,
		FullName:    m.FullName,
		Bio:         m.Bio,
		Website:     m.Website,
		SocialLinks: links,
		CreatedAt:   m.CreatedAt,
	}
}
