package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Outcome is the closed set of full-time results.
type Outcome string

const (
	OutcomeHome Outcome = "H"
	OutcomeDraw Outcome = "D"
	OutcomeAway Outcome = "A"
)

// League represents a competition within one country tier.
type League struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Code          string    `gorm:"uniqueIndex;not null" json:"code"`
	Name          string    `gorm:"not null" json:"name"`
	Country       string    `json:"country"`
	Tier          int       `gorm:"default:1" json:"tier"`
	AvgDrawRate   float64   `gorm:"default:0.26" json:"avg_draw_rate"`
	HomeAdvantage float64   `gorm:"default:0.35" json:"home_advantage"`
	IsActive      bool      `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (League) TableName() string {
	return "leagues"
}

// InternationalLeagueCode is the synthetic league for national-team
// fixtures. Its draw prior is fixed, never recomputed from matches.
const InternationalLeagueCode = "INT"

// Team belongs to exactly one league; the same club name in another
// league is a different row.
type Team struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	LeagueID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_teams_canonical_league" json:"league_id"`
	League           *League        `gorm:"foreignKey:LeagueID" json:"league,omitempty"`
	Name             string         `gorm:"not null" json:"name"`
	CanonicalName    string         `gorm:"not null;uniqueIndex:idx_teams_canonical_league" json:"canonical_name"`
	AlternativeNames pq.StringArray `gorm:"type:text[]" json:"alternative_names"`
	AttackRating     float64        `gorm:"default:1.0" json:"attack_rating"`
	DefenseRating    float64        `gorm:"default:1.0" json:"defense_rating"`
	HomeBias         float64        `gorm:"default:0.0" json:"home_bias"`
	LastTrainedAt    *time.Time     `json:"last_trained_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (Team) TableName() string {
	return "teams"
}

// Match is one historical result ingested from an upstream CSV source.
type Match struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	LeagueID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"league_id"`
	HomeTeamID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_matches_teams_date" json:"home_team_id"`
	AwayTeamID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_matches_teams_date" json:"away_team_id"`
	MatchDate        time.Time  `gorm:"not null;uniqueIndex:idx_matches_teams_date" json:"match_date"`
	HomeGoals        *int       `json:"home_goals,omitempty"`
	AwayGoals        *int       `json:"away_goals,omitempty"`
	HTHomeGoals      *int       `json:"ht_home_goals,omitempty"`
	HTAwayGoals      *int       `json:"ht_away_goals,omitempty"`
	Result           *Outcome   `gorm:"type:varchar(1)" json:"result,omitempty"`
	OddsHome         *float64   `json:"odds_home,omitempty"`
	OddsDraw         *float64   `json:"odds_draw,omitempty"`
	OddsAway         *float64   `json:"odds_away,omitempty"`
	SourceFile       *string    `json:"source_file,omitempty"`
	IngestionBatchID *uuid.UUID `gorm:"type:uuid" json:"ingestion_batch_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Match) TableName() string {
	return "matches"
}

// DeriveResult computes the full-time outcome from goals, nil when the
// match has no score yet.
func DeriveResult(homeGoals, awayGoals *int) *Outcome {
	if homeGoals == nil || awayGoals == nil {
		return nil
	}
	var r Outcome
	switch {
	case *homeGoals > *awayGoals:
		r = OutcomeHome
	case *homeGoals < *awayGoals:
		r = OutcomeAway
	default:
		r = OutcomeDraw
	}
	return &r
}

// Model types and lifecycle states.
const (
	ModelTypePoisson         = "poisson"
	ModelTypeBlending        = "blending"
	ModelTypeCalibration     = "calibration"
	ModelTypeDrawCalibration = "draw_calibration"

	ModelStatusTraining = "training"
	ModelStatusActive   = "active"
	ModelStatusArchived = "archived"
)

// TeamStrength is one team's entry in the Poisson weight table.
type TeamStrength struct {
	Attack   float64 `json:"attack"`
	Defense  float64 `json:"defense"`
	HomeBias float64 `json:"home_bias"`
}

// PoissonWeights carries the trained team-strength table plus the
// global Dixon-Coles parameters.
type PoissonWeights struct {
	HomeAdvantage float64                 `json:"home_advantage"`
	Rho           float64                 `json:"rho"`
	Xi            float64                 `json:"xi"`
	Teams         map[string]TeamStrength `json:"teams"`
}

// BlendingWeights holds the model-vs-market mixing coefficient.
type BlendingWeights struct {
	Alpha float64 `json:"alpha"`
}

// CalibrationCurve is a monotone piecewise-constant map fit by
// isotonic regression. X is sorted ascending; Y[i] applies to inputs
// in [X[i], X[i+1]).
type CalibrationCurve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// CalibrationWeights holds one curve per outcome; DrawOnly is set on
// draw_calibration models.
type CalibrationWeights struct {
	Home     *CalibrationCurve `json:"home,omitempty"`
	Draw     *CalibrationCurve `json:"draw,omitempty"`
	Away     *CalibrationCurve `json:"away,omitempty"`
	DrawOnly *CalibrationCurve `json:"draw_only,omitempty"`
}

// ModelWeights is the jsonb payload of a models row; exactly one
// section is populated depending on the model type.
type ModelWeights struct {
	Poisson     *PoissonWeights     `json:"poisson,omitempty"`
	Blending    *BlendingWeights    `json:"blending,omitempty"`
	Calibration *CalibrationWeights `json:"calibration,omitempty"`
}

func (w ModelWeights) Value() (driver.Value, error) {
	return json.Marshal(w)
}

func (w *ModelWeights) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, w)
	case string:
		return json.Unmarshal([]byte(v), w)
	case nil:
		*w = ModelWeights{}
		return nil
	default:
		return fmt.Errorf("unsupported type for ModelWeights: %T", value)
	}
}

// Model is one trained artifact; at most one row per type is active.
type Model struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Type                string         `gorm:"not null;index:idx_models_type_status" json:"type"`
	Version             string         `gorm:"not null" json:"version"`
	Status              string         `gorm:"not null;index:idx_models_type_status" json:"status"`
	Weights             ModelWeights   `gorm:"type:jsonb" json:"weights"`
	Temperature         float64        `gorm:"default:1.0" json:"temperature"`
	TrainingLeagues     pq.StringArray `gorm:"type:text[]" json:"training_leagues"`
	TrainingWindowYears int            `json:"training_window_years"`
	TrainingMatches     int            `json:"training_matches"`
	CreatedAt           time.Time      `json:"created_at"`
}

func (Model) TableName() string {
	return "models"
}

// JSONMap is a free-form jsonb column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(JSONMap{})
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = JSONMap{}
		return nil
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
}

// Jackpot is an ordered multi-fixture contest.
type Jackpot struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	KickoffDate      time.Time        `json:"kickoff_date"`
	PipelineMetadata JSONMap          `gorm:"type:jsonb" json:"pipeline_metadata"`
	Fixtures         []JackpotFixture `gorm:"foreignKey:JackpotID" json:"fixtures,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Jackpot) TableName() string {
	return "jackpots"
}

// JackpotFixture is one leg of a jackpot, ordered by MatchOrder.
type JackpotFixture struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	JackpotID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_fixture_order" json:"jackpot_id"`
	MatchOrder   int        `gorm:"not null;uniqueIndex:idx_fixture_order" json:"match_order"`
	HomeTeamName string     `gorm:"not null" json:"home_team_name"`
	AwayTeamName string     `gorm:"not null" json:"away_team_name"`
	HomeTeamID   *uuid.UUID `gorm:"type:uuid" json:"home_team_id,omitempty"`
	AwayTeamID   *uuid.UUID `gorm:"type:uuid" json:"away_team_id,omitempty"`
	LeagueID     *uuid.UUID `gorm:"type:uuid" json:"league_id,omitempty"`
	OddsHome     float64    `json:"odds_home"`
	OddsDraw     float64    `json:"odds_draw"`
	OddsAway     float64    `json:"odds_away"`
	OpenHome     *float64   `json:"open_home,omitempty"`
	OpenDraw     *float64   `json:"open_draw,omitempty"`
	OpenAway     *float64   `json:"open_away,omitempty"`
	KickoffTS    *time.Time `json:"kickoff_ts,omitempty"`
	ActualResult *Outcome   `gorm:"type:varchar(1)" json:"actual_result,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (JackpotFixture) TableName() string {
	return "jackpot_fixtures"
}

// Prediction is one probability set emitted for one fixture.
type Prediction struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FixtureID      uuid.UUID `gorm:"type:uuid;not null;index" json:"fixture_id"`
	ModelID        uuid.UUID `gorm:"type:uuid;not null" json:"model_id"`
	SetKey         string    `gorm:"not null" json:"set_key"`
	ProbHome       float64   `json:"prob_home"`
	ProbDraw       float64   `json:"prob_draw"`
	ProbAway       float64   `json:"prob_away"`
	LambdaHome     float64   `json:"lambda_home"`
	LambdaAway     float64   `json:"lambda_away"`
	DrawStructural JSONMap   `gorm:"type:jsonb" json:"draw_structural_components"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Prediction) TableName() string {
	return "predictions"
}

// ValidationResult is a prediction-vs-actual pair feeding
// draw-calibration retraining.
type ValidationResult struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FixtureID          uuid.UUID `gorm:"type:uuid;not null;index" json:"fixture_id"`
	SetKey             string    `gorm:"not null" json:"set_key"`
	ProbHome           float64   `json:"prob_home"`
	ProbDraw           float64   `json:"prob_draw"`
	ProbAway           float64   `json:"prob_away"`
	ActualResult       Outcome   `gorm:"type:varchar(1);not null" json:"actual_result"`
	BrierScore         float64   `json:"brier_score"`
	LogLoss            float64   `json:"log_loss"`
	ExportedToTraining bool      `gorm:"default:false;index" json:"exported_to_training"`
	CreatedAt          time.Time `json:"created_at"`
}

func (ValidationResult) TableName() string {
	return "validation_results"
}

// OddsMovement records opening-vs-closing odds for late-shock
// detection.
type OddsMovement struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FixtureID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"fixture_id"`
	OpenHome  float64   `json:"open_home"`
	OpenDraw  float64   `json:"open_draw"`
	OpenAway  float64   `json:"open_away"`
	CloseHome float64   `json:"close_home"`
	CloseDraw float64   `json:"close_draw"`
	CloseAway float64   `json:"close_away"`
	DeltaDraw float64   `json:"delta_draw"`
	CreatedAt time.Time `json:"created_at"`
}

func (OddsMovement) TableName() string {
	return "odds_movement"
}

// AllModels lists every gorm entity for migration.
func AllModels() []interface{} {
	return []interface{}{
		&League{}, &Team{}, &Match{}, &Model{},
		&Jackpot{}, &JackpotFixture{}, &Prediction{},
		&ValidationResult{}, &OddsMovement{},
	}
}
