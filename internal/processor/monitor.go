package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DIY-6/web3-script/internal/models"
	"github.com/DIY-6/web3-script/internal/reader"
	"github.com/DIY-6/web3-script/internal/writer/feishu"
	"github.com/DIY-6/web3-script/logger"
)

// DefaultFloor is the shortest pause between two rounds.
const DefaultFloor = 5 * time.Second

// Result is the outcome of scanning one instrument. Block is only consulted
// when it carries fragments. Skipped names why an instrument was passed over
// without fetching metrics.
type Result struct {
	Block   *models.AlertBlock
	Updates []Update
	Skipped string
}

// Scanner fetches, derives and evaluates the metrics of one monitor kind.
type Scanner interface {
	Name() string
	Instruments() []models.Instrument
	// Prepare runs once at the start of each round, before any Scan.
	Prepare(ctx context.Context, now time.Time) error
	// Scan may run concurrently for different instruments; it must only
	// read state and scanner data written by Prepare.
	Scan(ctx context.Context, inst models.Instrument, state State, now time.Time) (Result, error)
	RoundHeader(now time.Time) string
	Announcement(now time.Time) string
}

// Dispatcher delivers a round's batch text.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) feishu.Report
}

// Recorder receives round statistics.
type Recorder interface {
	RoundCompleted(monitor string, elapsed time.Duration, blocks int)
	FetchFailed(monitor, kind string)
	Dispatched(monitor string, sent int, failed bool)
}

type nopRecorder struct{}

func (nopRecorder) RoundCompleted(string, time.Duration, int) {}
func (nopRecorder) FetchFailed(string, string)                {}
func (nopRecorder) Dispatched(string, int, bool)              {}

// Options tune a Monitor.
type Options struct {
	Interval    time.Duration
	Floor       time.Duration
	Concurrency int
	Recorder    Recorder
	Clock       func() time.Time
}

// RoundReport describes one completed round.
type RoundReport struct {
	ID       string
	Started  time.Time
	Elapsed  time.Duration
	Scanned  int
	Skipped  int
	Failed   int
	Blocks   []models.AlertBlock
	Errors   map[string]error
	Text     string
	Dispatch feishu.Report
}

// Monitor runs the polling loop of one scanner.
type Monitor struct {
	scanner     Scanner
	dispatcher  Dispatcher
	recorder    Recorder
	interval    time.Duration
	floor       time.Duration
	concurrency int
	clock       func() time.Time
	log         *logger.Entry
}

type outcome struct {
	res Result
	err error
}

// NewMonitor creates a Monitor for scanner.
func NewMonitor(scanner Scanner, dispatcher Dispatcher, opts Options) *Monitor {
	if opts.Floor <= 0 {
		opts.Floor = DefaultFloor
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Monitor{
		scanner:     scanner,
		dispatcher:  dispatcher,
		recorder:    opts.Recorder,
		interval:    opts.Interval,
		floor:       opts.Floor,
		concurrency: opts.Concurrency,
		clock:       opts.Clock,
		log:         logger.GetLogger().WithComponent("monitor").WithFields(logger.Fields{"monitor": scanner.Name()}),
	}
}

// SleepDuration is the pause before the next round: what is left of the
// interval after elapsed, never less than floor.
func SleepDuration(interval, elapsed, floor time.Duration) time.Duration {
	if d := interval - elapsed; d > floor {
		return d
	}
	return floor
}

// Run loops until ctx is cancelled. Cancellation interrupts the pause
// between rounds.
func (m *Monitor) Run(ctx context.Context) {
	state := NewState()
	m.log.WithFields(logger.Fields{
		"instruments": len(m.scanner.Instruments()),
		"interval":    m.interval.String(),
		"concurrency": m.concurrency,
	}).Info("monitor started")

	for {
		var rep RoundReport
		state, rep = m.RunRound(ctx, state)
		if ctx.Err() != nil {
			break
		}

		wait := SleepDuration(m.interval, rep.Elapsed, m.floor)
		m.log.WithFields(logger.Fields{"round_id": rep.ID, "sleep": wait.String()}).Debug("waiting for next round")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}
	m.log.Info("monitor stopped")
}

// RunRound scans every instrument once, dispatches the alert batch and
// returns the next state. A failing instrument is logged and contributes
// nothing; its previous state is kept.
func (m *Monitor) RunRound(ctx context.Context, state State) (State, RoundReport) {
	started := m.clock()
	rep := RoundReport{ID: uuid.NewString(), Started: started, Errors: map[string]error{}}
	name := m.scanner.Name()
	log := m.log.WithFields(logger.Fields{"round_id": rep.ID})

	if err := m.scanner.Prepare(ctx, started); err != nil {
		m.recorder.FetchFailed(name, "prepare")
		log.WithError(err).Warn("round preparation incomplete")
	}

	instruments := m.scanner.Instruments()
	outcomes := make([]outcome, len(instruments))
	m.scanAll(ctx, instruments, state, started, outcomes)

	var updates []Update
	for i, o := range outcomes {
		sym := instruments[i].Symbol
		switch {
		case o.err != nil:
			rep.Failed++
			rep.Errors[sym] = o.err
			m.recorder.FetchFailed(name, reader.Kind(o.err))
			log.WithError(o.err).WithFields(logger.Fields{"symbol": sym}).Warn("instrument scan failed")
			continue
		case o.res.Skipped != "":
			rep.Skipped++
			log.WithFields(logger.Fields{"symbol": sym, "reason": o.res.Skipped}).Debug("instrument skipped")
		default:
			rep.Scanned++
		}
		if b := o.res.Block; b != nil && len(b.Fragments) > 0 {
			rep.Blocks = append(rep.Blocks, *b)
		}
		updates = append(updates, o.res.Updates...)
	}
	next := state.Apply(updates)

	rep.Text = models.JoinBlocks(m.scanner.RoundHeader(started), rep.Blocks)
	if rep.Text != "" {
		logger.LogDataFlowEntry(log, name, "feishu", len(rep.Blocks), "alert_block")
		rep.Dispatch = m.dispatcher.Dispatch(ctx, rep.Text)
		m.recorder.Dispatched(name, rep.Dispatch.Sent, rep.Dispatch.Err != nil)
	} else {
		log.Info("no alert this round")
	}

	rep.Elapsed = m.clock().Sub(started)
	m.recorder.RoundCompleted(name, rep.Elapsed, len(rep.Blocks))
	log.LogMetric("monitor", "round_duration_ms", rep.Elapsed.Milliseconds(), "gauge", logger.Fields{"monitor": name})
	log.LogMetric("monitor", "alert_blocks", len(rep.Blocks), "counter", logger.Fields{"monitor": name})
	logger.LogPerformanceEntry(log, "monitor", "round", rep.Elapsed, logger.Fields{
		"round_id": rep.ID,
		"scanned":  rep.Scanned,
		"skipped":  rep.Skipped,
		"failed":   rep.Failed,
		"alerts":   len(rep.Blocks),
	})
	return next, rep
}

func (m *Monitor) scanAll(ctx context.Context, instruments []models.Instrument, state State, now time.Time, out []outcome) {
	if m.concurrency <= 1 {
		for i, inst := range instruments {
			if err := ctx.Err(); err != nil {
				out[i] = outcome{err: err}
				continue
			}
			out[i] = m.scanOne(ctx, inst, state, now)
		}
		return
	}

	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup
	for i, inst := range instruments {
		if err := ctx.Err(); err != nil {
			out[i] = outcome{err: err}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, inst models.Instrument) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = m.scanOne(ctx, inst, state, now)
		}(i, inst)
	}
	wg.Wait()
}

func (m *Monitor) scanOne(ctx context.Context, inst models.Instrument, state State, now time.Time) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: fmt.Errorf("scan %s panicked: %v", inst.Symbol, r)}
		}
	}()
	res, err := m.scanner.Scan(ctx, inst, state, now)
	return outcome{res: res, err: err}
}

// Announce sends the scanner's startup message.
func (m *Monitor) Announce(ctx context.Context) {
	text := m.scanner.Announcement(m.clock())
	if text == "" {
		return
	}
	rep := m.dispatcher.Dispatch(ctx, text)
	m.recorder.Dispatched(m.scanner.Name(), rep.Sent, rep.Err != nil)
}
