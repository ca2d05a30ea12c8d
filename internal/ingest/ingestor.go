package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/resolver"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// Report summarizes one ingest call.
type Report struct {
	Processed int      `json:"processed"`
	Inserted  int      `json:"inserted"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Ingestor downloads league-season files and upserts their matches.
// Idempotent at the (home_team, away_team, match_date) key; commits
// per league-season file, never per row.
type Ingestor struct {
	db           *database.DB
	resolver     *resolver.Resolver
	source       *SourceClient
	leagueBudget time.Duration
	logger       *logrus.Entry
}

func NewIngestor(db *database.DB, res *resolver.Resolver, source *SourceClient, leagueBudget time.Duration, logger *logrus.Logger) *Ingestor {
	return &Ingestor{
		db:           db,
		resolver:     res,
		source:       source,
		leagueBudget: leagueBudget,
		logger:       logger.WithField("component", "ingestor"),
	}
}

// Ingest pulls the given seasons of one league. Team creation is only
// permitted when the automated pipeline explicitly asks for it via
// allowCreateTeams.
func (ing *Ingestor) Ingest(ctx context.Context, leagueCode string, seasons []string, allowCreateTeams bool) (*Report, error) {
	var league models.League
	err := ing.db.WithContext(ctx).Where("code = ?", leagueCode).First(&league).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeInputValidation, "unknown league code %q", leagueCode)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "loading league %q", leagueCode)
	}

	ctx, cancel := context.WithTimeout(ctx, ing.leagueBudget)
	defer cancel()

	report := &Report{}
	for _, season := range seasons {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, "league budget exhausted")
			break
		}
		if err := ing.ingestSeason(ctx, &league, season, allowCreateTeams, report); err != nil {
			ing.logger.WithFields(logrus.Fields{
				"league": leagueCode,
				"season": season,
			}).WithError(err).Warn("Season ingest failed")
			report.Errors = append(report.Errors, err.Error())
		}
	}
	return report, nil
}

func (ing *Ingestor) ingestSeason(ctx context.Context, league *models.League, season string, allowCreateTeams bool, report *Report) error {
	file, err := ing.source.FetchSeason(ctx, league.Code, season)
	if err != nil {
		return err
	}

	rows, parseReport, err := ParseFile(file.Encoding, file.Body, time.Now())
	if err != nil {
		return err
	}
	report.Skipped += parseReport.Skipped
	for _, sample := range parseReport.SkipSamples {
		ing.logger.WithFields(logrus.Fields{
			"league": league.Code,
			"season": season,
			"reason": sample,
		}).Debug("Row skipped")
	}

	batchID := uuid.New()
	inserted, updated, skipped := 0, 0, 0

	// One transaction per league-season file.
	err = ing.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			home, err := ing.resolveTeam(ctx, row.HomeTeam, league, allowCreateTeams)
			if err != nil {
				skipped++
				continue
			}
			away, err := ing.resolveTeam(ctx, row.AwayTeam, league, allowCreateTeams)
			if err != nil {
				skipped++
				continue
			}

			var existing int64
			if err := tx.Model(&models.Match{}).
				Where("home_team_id = ? AND away_team_id = ? AND match_date = ?",
					home.ID, away.ID, row.Date).
				Count(&existing).Error; err != nil {
				return err
			}

			hg, ag := row.HomeGoals, row.AwayGoals
			match := models.Match{
				LeagueID:         league.ID,
				HomeTeamID:       home.ID,
				AwayTeamID:       away.ID,
				MatchDate:        row.Date,
				HomeGoals:        &hg,
				AwayGoals:        &ag,
				HTHomeGoals:      row.HTHomeGoals,
				HTAwayGoals:      row.HTAwayGoals,
				Result:           models.DeriveResult(&hg, &ag),
				OddsHome:         row.OddsHome,
				OddsDraw:         row.OddsDraw,
				OddsAway:         row.OddsAway,
				SourceFile:       &file.URL,
				IngestionBatchID: &batchID,
			}

			// On conflict refresh scores and closing odds; keep the
			// original source_file / batch_id unless they were null.
			res := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "home_team_id"}, {Name: "away_team_id"}, {Name: "match_date"},
				},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"home_goals":         match.HomeGoals,
					"away_goals":         match.AwayGoals,
					"ht_home_goals":      match.HTHomeGoals,
					"ht_away_goals":      match.HTAwayGoals,
					"result":             match.Result,
					"odds_home":          match.OddsHome,
					"odds_draw":          match.OddsDraw,
					"odds_away":          match.OddsAway,
					"source_file":        gorm.Expr("COALESCE(matches.source_file, EXCLUDED.source_file)"),
					"ingestion_batch_id": gorm.Expr("COALESCE(matches.ingestion_batch_id, EXCLUDED.ingestion_batch_id)"),
					"updated_at":         time.Now().UTC(),
				}),
			}).Create(&match)
			if res.Error != nil {
				return res.Error
			}
			if existing > 0 {
				updated++
			} else {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "committing season %s/%s", league.Code, season)
	}

	report.Processed += len(rows)
	report.Inserted += inserted
	report.Updated += updated
	report.Skipped += skipped

	ing.logger.WithFields(logrus.Fields{
		"league":   league.Code,
		"season":   season,
		"rows":     len(rows),
		"inserted": inserted,
		"updated":  updated,
		"skipped":  skipped + parseReport.Skipped,
	}).Info("Season ingested")
	return nil
}

func (ing *Ingestor) resolveTeam(ctx context.Context, name string, league *models.League, allowCreate bool) (*models.Team, error) {
	team, err := ing.resolver.Resolve(ctx, name, &league.ID)
	if err == nil {
		return team, nil
	}
	if apperrors.HasCode(err, apperrors.CodeResolutionMissing) && allowCreate {
		return ing.resolver.CreateIfNotExists(ctx, name, league.ID)
	}
	return nil, err
}
