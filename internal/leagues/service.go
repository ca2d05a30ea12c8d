package leagues

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

const (
	statsWindowYears = 5
	minStatsMatches  = 50
)

// Service recomputes per-league draw rates and home advantage from
// recent ingested results.
type Service struct {
	db     *database.DB
	logger *logrus.Entry
}

func NewService(db *database.DB, logger *logrus.Logger) *Service {
	return &Service{db: db, logger: logger.WithField("component", "leagues")}
}

// Stats is the recomputed figure pair for one league.
type Stats struct {
	LeagueCode    string  `json:"league_code"`
	Matches       int     `json:"matches"`
	AvgDrawRate   float64 `json:"avg_draw_rate"`
	HomeAdvantage float64 `json:"home_advantage"`
	Updated       bool    `json:"updated"`
}

// UpdateStatistics refreshes avg_draw_rate and home_advantage for
// every active league from the last five seasons of results. The
// international league keeps its fixed prior; leagues with too few
// matches keep their current values.
func (s *Service) UpdateStatistics(ctx context.Context) ([]Stats, error) {
	var leagues []models.League
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&leagues).Error; err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(-statsWindowYears, 0, 0)
	out := make([]Stats, 0, len(leagues))
	for i := range leagues {
		league := &leagues[i]
		if league.Code == models.InternationalLeagueCode {
			out = append(out, Stats{LeagueCode: league.Code, AvgDrawRate: league.AvgDrawRate, HomeAdvantage: league.HomeAdvantage})
			continue
		}

		stats, err := s.computeLeague(ctx, league, cutoff)
		if err != nil {
			s.logger.WithError(err).WithField("league", league.Code).Warn("League statistics update failed")
			continue
		}
		out = append(out, *stats)
	}
	return out, nil
}

func (s *Service) computeLeague(ctx context.Context, league *models.League, cutoff time.Time) (*Stats, error) {
	type agg struct {
		Total     int
		Draws     int
		HomeGoals float64
		AwayGoals float64
	}
	var a agg
	err := s.db.WithContext(ctx).
		Model(&models.Match{}).
		Select("count(*) as total, "+
			"count(*) filter (where home_goals = away_goals) as draws, "+
			"coalesce(avg(home_goals), 0) as home_goals, "+
			"coalesce(avg(away_goals), 0) as away_goals").
		Where("league_id = ? AND match_date >= ? AND home_goals IS NOT NULL AND away_goals IS NOT NULL", league.ID, cutoff).
		Scan(&a).Error
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		LeagueCode:    league.Code,
		Matches:       a.Total,
		AvgDrawRate:   league.AvgDrawRate,
		HomeAdvantage: league.HomeAdvantage,
	}
	if a.Total < minStatsMatches {
		return stats, nil
	}

	stats.AvgDrawRate = float64(a.Draws) / float64(a.Total)
	// Home advantage as the log goal ratio, matching the additive term
	// on the home lambda.
	if a.AwayGoals > 0 {
		stats.HomeAdvantage = clamp(a.HomeGoals/a.AwayGoals-1, 0.0, 0.8)
	}

	err = s.db.WithContext(ctx).Model(&models.League{}).
		Where("id = ?", league.ID).
		Updates(map[string]interface{}{
			"avg_draw_rate":  stats.AvgDrawRate,
			"home_advantage": stats.HomeAdvantage,
		}).Error
	if err != nil {
		return nil, err
	}
	stats.Updated = true

	s.logger.WithFields(logrus.Fields{
		"league":         league.Code,
		"matches":        a.Total,
		"avg_draw_rate":  stats.AvgDrawRate,
		"home_advantage": stats.HomeAdvantage,
	}).Info("League statistics updated")
	return stats, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
