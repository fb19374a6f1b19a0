package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "gatherbot/internal/log"
)

// Specs are standard five-field cron specs, evaluated in UTC.
type Specs struct {
	CatchUp      string
	Announce     string
	CloseThreads string
	Sweep        string
}

// tickTimeout bounds one tick so that a stuck platform call cannot pile up
// skipped runs forever.
const tickTimeout = 2 * time.Minute

// Scheduler fires the Runner's ticks on their cron specs. A tick still
// running when its next slot comes up is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
}

// cronLogger routes cron's own messages into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

func NewScheduler(r *Runner, specs Specs) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s := &Scheduler{cron: c, runner: r}

	jobs := []struct {
		name string
		spec string
		tick func(context.Context) (Report, error)
	}{
		{"catch_up", specs.CatchUp, r.CatchUp},
		{"announce", specs.Announce, r.Announce},
		{"close_threads", specs.CloseThreads, r.CloseStale},
		{"sweep", specs.Sweep, r.Sweep},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		name, tick := j.name, j.tick
		if _, err := c.AddFunc(j.spec, func() { s.run(name, tick) }); err != nil {
			return nil, fmt.Errorf("maintenance %s %q: %w", name, j.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) run(name string, tick func(context.Context) (Report, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	started := time.Now()
	rep, err := tick(ctx)
	if err != nil {
		appLog.Error("maintenance tick aborted", err, "tick", name)
		return
	}
	appLog.Debug("maintenance tick done",
		"tick", name,
		"took", time.Since(started).Round(time.Millisecond),
		"scanned", rep.Scanned,
		"skipped", rep.Skipped,
	)
}

// Jobs is the number of scheduled ticks.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler until ctx is done, then waits for running ticks.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	appLog.Info("maintenance scheduler started", "jobs", s.Jobs())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("maintenance scheduler stopped")
}
