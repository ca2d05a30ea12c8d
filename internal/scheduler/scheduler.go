package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/leagues"
)

// Scheduler owns the background cron jobs: nightly league statistics
// refresh, with room for more.
type Scheduler struct {
	cron    *cron.Cron
	leagues *leagues.Service
	logger  *logrus.Entry
}

func New(leagueSvc *leagues.Service, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		leagues: leagueSvc,
		logger:  logger.WithField("component", "scheduler"),
	}
}

// Start registers the jobs and launches the cron loop.
func (s *Scheduler) Start() error {
	// 03:15 UTC, after the upstream publishes the previous matchday.
	_, err := s.cron.AddFunc("15 3 * * *", s.refreshLeagueStats)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) refreshLeagueStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stats, err := s.leagues.UpdateStatistics(ctx)
	if err != nil {
		s.logger.WithError(err).Error("League statistics refresh failed")
		return
	}
	updated := 0
	for _, st := range stats {
		if st.Updated {
			updated++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"leagues": len(stats),
		"updated": updated,
	}).Info("League statistics refreshed")
}
