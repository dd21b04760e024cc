package retro

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// Achievement is a normalized record from the achievements-earned-between endpoint
type Achievement struct {
	ID          Optional[int64]
	Date        Optional[time.Time]
	Hardcore    Optional[bool]
	Title       Optional[string]
	Description Optional[string]
	GameTitle   Optional[string]
	Points      Optional[int64]
	GameID      Optional[int64]
}

type achievementKey struct {
	id       Optional[int64]
	hardcore Optional[bool]
}

func (a Achievement) key() achievementKey {
	return achievementKey{id: a.ID, hardcore: a.Hardcore}
}

func parseAchievement(r record) (Achievement, error) {
	var a Achievement
	var err error

	if a.ID, err = r.integer("AchievementID"); err != nil {
		return a, err
	}
	if a.Date, err = r.date("Date"); err != nil {
		return a, err
	}
	if a.Points, err = r.integer("Points"); err != nil {
		return a, err
	}
	if a.GameID, err = r.integer("GameID"); err != nil {
		return a, err
	}
	a.Hardcore = r.boolean("HardcoreMode")
	a.Title = r.str("Title")
	a.Description = r.str("Description")
	a.GameTitle = r.str("GameTitle")
	return a, nil
}

// compareAchievements orders by game title, then achievement id, softcore before hardcore
func compareAchievements(a, b Achievement) int {
	if c := cmp.Compare(a.GameTitle.Or(""), b.GameTitle.Or("")); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ID.Or(-1), b.ID.Or(-1)); c != 0 {
		return c
	}
	return cmp.Compare(boolRank(a.Hardcore), boolRank(b.Hardcore))
}

func boolRank(b Optional[bool]) int {
	v, ok := b.Get()
	switch {
	case !ok:
		return -1
	case v:
		return 1
	}
	return 0
}

// AchievementSet accumulates chunked responses into one collection.
// Records are unique by (achievement id, hardcore) and keep first-seen order.
type AchievementSet struct {
	achievements []Achievement
	seen         map[achievementKey]struct{}
}

// NewAchievementSet creates an empty set
func NewAchievementSet() *AchievementSet {
	return &AchievementSet{seen: make(map[achievementKey]struct{})}
}

// Add parses raw records and appends the ones not already present
func (s *AchievementSet) Add(raw []map[string]any) error {
	for i, r := range raw {
		a, err := parseAchievement(record(r))
		if err != nil {
			return fmt.Errorf("parsing achievement %d: %w", i, err)
		}
		s.Append(a)
	}
	return nil
}

// Append adds already parsed achievements, skipping duplicates
func (s *AchievementSet) Append(achievements ...Achievement) {
	if s.seen == nil {
		s.seen = make(map[achievementKey]struct{})
	}
	for _, a := range achievements {
		k := a.key()
		if _, ok := s.seen[k]; ok {
			continue
		}
		s.seen[k] = struct{}{}
		s.achievements = append(s.achievements, a)
	}
}

// Len returns the number of distinct achievements
func (s *AchievementSet) Len() int {
	return len(s.achievements)
}

// Achievements returns the records in first-seen order
func (s *AchievementSet) Achievements() []Achievement {
	return slices.Clone(s.achievements)
}

// Sorted returns the records ordered by game title, id and hardcore flag
func (s *AchievementSet) Sorted() []Achievement {
	out := slices.Clone(s.achievements)
	slices.SortStableFunc(out, compareAchievements)
	return out
}

// ProgressTotal sums points of the records for one game and hardcore flag
func (s *AchievementSet) ProgressTotal(gameID int64, hardcore bool) int64 {
	var total int64
	for _, a := range s.achievements {
		gid, ok := a.GameID.Get()
		if !ok || gid != gameID {
			continue
		}
		hc, ok := a.Hardcore.Get()
		if !ok || hc != hardcore {
			continue
		}
		total += a.Points.Or(0)
	}
	return total
}
