// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"errors"
	"os"
	"time"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var _ Store = &SQLite{}

// Record is a row of the activations table.
type Record struct {
	SentenceID int `gorm:"primaryKey;autoIncrement:false"`

	CreatedAt time.Time `gorm:"not null"`

	Payload []byte `gorm:"not null"`
}

// TableName returns the name of the activations table.
func (Record) TableName() string {
	return "activation_records"
}

// SQLite keeps activations in a SQLite database file.
type SQLite struct {
	filename string
	db       *gorm.DB
}

// NewSQLite opens (or creates) the database file and migrates the schema.
func NewSQLite(filename string) (*SQLite, error) {
	if filename == "" {
		return nil, activations.Errorf("no activations database file given")
	}
	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{
		Logger: newSQLLogger(log.Logger, filename).LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, storageErr("open", -1, err)
	}
	if err = db.AutoMigrate(&Record{}); err != nil {
		return nil, storageErr("open", -1, err)
	}
	return &SQLite{filename: filename, db: db}, nil
}

// Write inserts the gob encoding of d.
func (s *SQLite) Write(sentenceID int, d *activations.Dict) error {
	var count int64
	if err := s.db.Model(&Record{}).Where("sentence_id = ?", sentenceID).Count(&count).Error; err != nil {
		return storageErr("write", sentenceID, err)
	}
	if count > 0 {
		return storageErr("write", sentenceID, ErrExists)
	}
	data, err := activations.MarshalDict(d)
	if err != nil {
		return storageErr("write", sentenceID, err)
	}
	return storageErr("write", sentenceID, s.db.Create(&Record{SentenceID: sentenceID, Payload: data}).Error)
}

// Read decodes the activations of a sentence.
func (s *SQLite) Read(sentenceID int) (*activations.Dict, error) {
	var r Record
	err := s.db.First(&r, "sentence_id = ?", sentenceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storageErr("read", sentenceID, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("read", sentenceID, err)
	}
	d, err := activations.UnmarshalDict(r.Payload)
	return d, storageErr("read", sentenceID, err)
}

// IDs returns the sorted ids of the stored sentences.
func (s *SQLite) IDs() ([]int, error) {
	var ids []int
	err := s.db.Model(&Record{}).Order("sentence_id").Pluck("sentence_id", &ids).Error
	return ids, storageErr("list", -1, err)
}

// DeleteAll closes the database and removes its file.
func (s *SQLite) DeleteAll() error {
	if err := s.Close(); err != nil {
		return err
	}
	err := os.Remove(s.filename)
	if os.IsNotExist(err) {
		err = nil
	}
	return storageErr("delete", -1, err)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("close", -1, err)
	}
	return storageErr("close", -1, sqlDB.Close())
}
