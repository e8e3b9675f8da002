package ranking

import (
	"context"
	"sort"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
)

const (
	XPPerDonation  = 100
	XPForAvailable = 20
	MaxLevel       = 10
)

// thresholds[i] is the XP needed to reach level i+1.
var thresholds = []int{0, 100, 250, 400, 600, 800, 1000, 1200, 1500, 2000}

var levelNames = []string{
	"Novice", "Apprentice", "Helper", "Guardian", "Protector",
	"Savior", "Champion", "Hero", "Legend", "Mythic",
}

// Entry is one donor's standing. Progress runs from 0 to 100 towards the
// next level.
type Entry struct {
	Rank               int             `json:"rank"`
	UserID             string          `json:"user_id"`
	FullName           string          `json:"full_name"`
	BloodType          model.BloodType `json:"blood_type"`
	City               string          `json:"city"`
	Available          bool            `json:"available"`
	CompletedDonations int             `json:"completed_donations"`
	XP                 int             `json:"xp"`
	Level              int             `json:"level"`
	LevelName          string          `json:"level_name"`
	Progress           float64         `json:"progress"`
}

type Leaderboard struct {
	Entries []Entry `json:"entries"`
	Me      *Entry  `json:"me,omitempty"`
	Total   int     `json:"total"`
}

// Level maps an XP total onto 1..MaxLevel.
func Level(xp int) int {
	level := 1
	for i, t := range thresholds {
		if xp >= t {
			level = i + 1
		}
	}
	return level
}

func LevelName(level int) string {
	if level < 1 || level > len(levelNames) {
		return levelNames[0]
	}
	return levelNames[level-1]
}

// Progress is the share of the way from the current level's threshold to
// the next one.
func Progress(xp, level int) float64 {
	if level >= MaxLevel {
		return 100
	}
	lo, hi := thresholds[level-1], thresholds[level]
	return float64(xp-lo) / float64(hi-lo) * 100
}

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Board ranks every donor by XP, highest first. Ties keep roster order.
func (s *Service) Board(ctx context.Context, callerID string) Leaderboard {
	completed := make(map[string]int)
	for _, d := range s.store.Donations() {
		if d.Status == model.DonationStatusCompleted {
			completed[d.DonorID]++
		}
	}

	entries := make([]Entry, 0)
	for _, u := range s.store.Users() {
		if !u.IsDonor() {
			continue
		}
		xp := completed[u.ID] * XPPerDonation
		if u.Available {
			xp += XPForAvailable
		}
		level := Level(xp)
		entries = append(entries, Entry{
			UserID:             u.ID,
			FullName:           u.FullName,
			BloodType:          u.BloodType,
			City:               u.City,
			Available:          u.Available,
			CompletedDonations: completed[u.ID],
			XP:                 xp,
			Level:              level,
			LevelName:          LevelName(level),
			Progress:           Progress(xp, level),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].XP > entries[j].XP })

	board := Leaderboard{Entries: entries, Total: len(entries)}
	for i := range entries {
		entries[i].Rank = i + 1
		if entries[i].UserID == callerID {
			me := entries[i]
			board.Me = &me
		}
	}
	return board
}
