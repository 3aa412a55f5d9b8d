package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"zork-argento/server/internal/config"
	"zork-argento/server/internal/models"
)

// MySQLStore is the adventure document store. Documents live in two
// possible physical layouts: the preferred per-user table and a legacy
// flat table filtered by owner column. Reads prefer the per-user layout
// and fall back to the legacy one when it yields nothing.
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.AdventureRecord{}, &models.LegacyAdventureRecord{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create serializes the adventure into a new document row under the
// given user and returns the generated id.
func (s *MySQLStore) Create(ctx context.Context, userID string, adventure *models.Adventure) (string, error) {
	id := newDocumentID()
	now := time.Now().UTC()

	doc := *adventure
	doc.UserID = userID
	doc.UpdatedAt = now.Format(time.RFC3339)

	payload, err := json.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize adventure: %w", err)
	}

	record := models.AdventureRecord{
		ID:          id,
		UserID:      userID,
		Title:       doc.Title,
		Genre:       doc.Genre,
		JuegoGanado: doc.JuegoGanado,
		Document:    string(payload),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to create adventure document: %w", err)
	}
	return id, nil
}

// Update applies a partial field update to the stored document. The
// store stamps updatedAt on every write. Falls back to the legacy layout
// when the per-user table has no such row.
func (s *MySQLStore) Update(ctx context.Context, userID, adventureID string, fields map[string]interface{}) error {
	var record models.AdventureRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", adventureID, userID).
		First(&record).Error
	if err == nil {
		document, won, mergeErr := mergeDocument(record.Document, fields)
		if mergeErr != nil {
			return mergeErr
		}
		return s.db.WithContext(ctx).Model(&record).Updates(map[string]interface{}{
			"document":     document,
			"juego_ganado": won,
		}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to read adventure document: %w", err)
	}

	var legacy models.LegacyAdventureRecord
	err = s.db.WithContext(ctx).
		Where("id = ? AND owner = ?", adventureID, userID).
		First(&legacy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("adventure %s not found for update", adventureID)
		}
		return fmt.Errorf("failed to read adventure document: %w", err)
	}
	document, _, mergeErr := mergeDocument(legacy.Document, fields)
	if mergeErr != nil {
		return mergeErr
	}
	return s.db.WithContext(ctx).Model(&legacy).Update("document", document).Error
}

// Get is a point read by id. A missing document returns (nil, nil) so
// callers can distinguish not-found from a store failure.
func (s *MySQLStore) Get(ctx context.Context, userID, adventureID string) (*models.AdventureDocument, error) {
	var record models.AdventureRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", adventureID, userID).
		First(&record).Error
	if err == nil {
		return decodeDocument(record.ID, record.Document)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to read adventure document: %w", err)
	}

	var legacy models.LegacyAdventureRecord
	err = s.db.WithContext(ctx).
		Where("id = ? AND owner = ?", adventureID, userID).
		First(&legacy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read adventure document: %w", err)
	}
	return decodeDocument(legacy.ID, legacy.Document)
}

// ListByUser returns a user's adventures ordered by most recently
// updated first, preferring the per-user layout when it has rows.
func (s *MySQLStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AdventureDocument, error) {
	if limit <= 0 {
		limit = 10
	}

	var records []models.AdventureRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list adventures: %w", err)
	}
	if len(records) > 0 {
		docs := make([]*models.AdventureDocument, 0, len(records))
		for _, record := range records {
			doc, err := decodeDocument(record.ID, record.Document)
			if err != nil {
				continue
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	var legacy []models.LegacyAdventureRecord
	err = s.db.WithContext(ctx).
		Where("owner = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&legacy).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list adventures: %w", err)
	}
	docs := make([]*models.AdventureDocument, 0, len(legacy))
	for _, record := range legacy {
		doc, err := decodeDocument(record.ID, record.Document)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// mergeDocument applies a partial field update onto the serialized
// document and stamps updatedAt. Returns the new document plus the
// victory flag for the denormalized column.
func mergeDocument(document string, fields map[string]interface{}) (string, bool, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(document), &doc); err != nil {
		return "", false, fmt.Errorf("corrupt adventure document: %w", err)
	}
	for key, value := range fields {
		doc[key] = value
	}
	doc["updatedAt"] = time.Now().UTC().Format(time.RFC3339)

	won, _ := doc["juegoGanado"].(bool)

	merged, err := json.Marshal(doc)
	if err != nil {
		return "", false, fmt.Errorf("failed to serialize adventure: %w", err)
	}
	return string(merged), won, nil
}

func decodeDocument(id, document string) (*models.AdventureDocument, error) {
	var adventure models.Adventure
	if err := json.Unmarshal([]byte(document), &adventure); err != nil {
		return nil, fmt.Errorf("corrupt adventure document %s: %w", id, err)
	}
	return &models.AdventureDocument{Adventure: adventure, ID: id}, nil
}

// newDocumentID generates a random document id
func newDocumentID() string {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("adv_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
