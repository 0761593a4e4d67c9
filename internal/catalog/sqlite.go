package catalog

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type templateRow struct {
	ID      string `gorm:"primaryKey"`
	Name    string `gorm:"not null"`
	IconURL string `gorm:"column:icon_url;not null"`
	Rarity  string
}

func (templateRow) TableName() string { return "cats" }

// SQLiteSource reads templates from a SQLite database. An empty table is
// seeded on first load with Seed, or with the embedded catalog when Seed is
// nil.
type SQLiteSource struct {
	Path string
	Seed []Template
}

func (s SQLiteSource) Name() string { return "sqlite:" + s.Path }

// OpenSQLite opens the catalog database and migrates its schema.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&templateRow{}); err != nil {
		return nil, err
	}
	return db, nil
}

func (s SQLiteSource) Load(ctx context.Context) ([]Template, error) {
	db, err := OpenSQLite(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	db = db.WithContext(ctx)

	seed := s.Seed
	if seed == nil {
		if seed, err = Decode(defaultCatalogJSON); err != nil {
			return nil, fmt.Errorf("decode embedded seed: %w", err)
		}
	}
	if err := seedTemplates(db, seed); err != nil {
		return nil, fmt.Errorf("seed %s: %w", s.Path, err)
	}

	var rows []templateRow
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", s.Path, err)
	}
	templates := make([]Template, 0, len(rows))
	for _, row := range rows {
		templates = append(templates, Template{ID: row.ID, Name: row.Name, IconURL: row.IconURL, Rarity: row.Rarity})
	}
	return templates, nil
}

func seedTemplates(db *gorm.DB, seed []Template) error {
	if len(seed) == 0 {
		return nil
	}
	var count int64
	if err := db.Model(&templateRow{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	rows := make([]templateRow, 0, len(seed))
	for _, tmpl := range seed {
		id := tmpl.ID
		if id == "" {
			id = Slug(tmpl.Name)
		}
		rows = append(rows, templateRow{ID: id, Name: tmpl.Name, IconURL: tmpl.IconURL, Rarity: tmpl.Rarity})
	}
	return db.Create(&rows).Error
}
