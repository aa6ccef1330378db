// Package devshare implements the dev-fee rotation scheduler (spec.md
// section 4.H): a 300-minute cycle alternating between the user's pool
// manager and the developer's, stopping one before starting the other
// so they never mine concurrently. Grounded on
// original_source/src/Miner/main.cpp's start() function.
package devshare

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const cycleLength = 300 * time.Minute

// MinerManager is the subset of manager.Manager the scheduler drives.
type MinerManager interface {
	Start()
	Stop()
}

// Scheduler alternates mining time between a user manager and a dev
// manager. DevFeePercent of 0 disables rotation entirely: the user
// manager simply runs forever.
type Scheduler struct {
	user   MinerManager
	dev    MinerManager
	devFee float64
	logger *zap.Logger

	// sleep and randIntn are seams over time.After and a seeded
	// math/rand source; overridable so tests can drive a full rotation
	// with a virtual clock instead of sleeping in real time.
	sleep    func(d time.Duration) <-chan time.Time
	randIntn func(n int) int

	stop chan struct{}
	done chan struct{}
}

// New builds a scheduler over the given user/dev managers. devFeePercent
// is expected in [0,100); the portion of each 300-minute cycle spent
// mining for the dev pool is 180*devFeePercent seconds.
func New(user, dev MinerManager, devFeePercent float64, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		user:     user,
		dev:      dev,
		devFee:   devFeePercent,
		logger:   logger,
		sleep:    time.After,
		randIntn: rand.New(rand.NewSource(time.Now().UnixNano())).Intn,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the user manager and, if a dev fee is configured, the
// rotation loop. Blocks until Stop is called.
func (s *Scheduler) Run() {
	s.user.Start()

	if s.devFee == 0 {
		<-s.stop
		close(s.done)
		return
	}

	go s.rotate()
	<-s.stop
	close(s.done)
}

// Stop ends the rotation loop and waits for it to quiesce.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) rotate() {
	devMiningTime := time.Duration(180 * s.devFee * float64(time.Second))
	userMiningTime := cycleLength - devMiningTime

	for {
		// Mine for the user for 10 to 60 minutes before swapping to the
		// dev pool, so the switch point isn't predictable.
		userFirstHalf := time.Duration(10+s.randIntn(51)) * time.Minute

		if s.sleepOrStop(userFirstHalf) {
			return
		}

		s.user.Stop()

		if s.logger != nil {
			s.logger.Info("started mining to the development pool",
				zap.Duration("for", devMiningTime))
		}

		s.dev.Start()

		if s.sleepOrStop(devMiningTime) {
			s.dev.Stop()
			return
		}

		s.dev.Stop()

		if s.logger != nil {
			s.logger.Info("regular mining resumed")
		}

		s.user.Start()

		remaining := userMiningTime - userFirstHalf
		if remaining < 0 {
			remaining = 0
		}

		if s.sleepOrStop(remaining) {
			return
		}
	}
}

// sleepOrStop sleeps for d, returning true early if Stop is called
// during the wait.
func (s *Scheduler) sleepOrStop(d time.Duration) bool {
	select {
	case <-s.sleep(d):
		return false
	case <-s.stop:
		return true
	}
}
