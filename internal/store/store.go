// Package store keeps a history of finished rounds in Postgres.
//
// It is an audit log only. Rooms never read their state back from it.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/oldmex-backend/internal/engine"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type Round struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Room       string `gorm:"index;not null" json:"room"`
	Loser      string `json:"loser"`
	LowestRoll int    `json:"lowestRoll"`
	MaxRolls   int    `json:"maxRolls"`
	// Players is the comma-joined turn order at the end of the round.
	Players    string    `json:"players"`
	FinishedAt time.Time `gorm:"index" json:"finishedAt"`
}

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Round{}); err != nil {
		return nil, fmt.Errorf("migrate rounds: %w", err)
	}
	return &Store{db: db}, nil
}

func FromResult(res engine.RoundResult) Round {
	return Round{
		Room:       res.Room,
		Loser:      res.Loser,
		LowestRoll: res.LowestRoll,
		MaxRolls:   res.MaxRolls,
		Players:    strings.Join(res.Players, ","),
		FinishedAt: res.FinishedAt.UTC(),
	}
}

func (s *Store) RecordRound(ctx context.Context, res engine.RoundResult) error {
	round := FromResult(res)
	if err := s.db.WithContext(ctx).Create(&round).Error; err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// RecentRounds returns up to limit rounds for room, newest first.
func (s *Store) RecentRounds(ctx context.Context, room string, limit int) ([]Round, error) {
	limit = ClampLimit(limit)

	var rounds []Round
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("finished_at DESC, id DESC").
		Limit(limit).
		Find(&rounds).Error
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	return rounds, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
