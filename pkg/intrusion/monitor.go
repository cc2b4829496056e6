package intrusion

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Detection thresholds.
const (
	// KeyGuessThreshold is the per-counter limit above which a key is
	// reported as compromised.
	KeyGuessThreshold = 5

	// MaxRejectionRate is the rejections-per-millisecond rate above
	// which flooding is flagged (0.01 ≈ 10 rejections per second).
	MaxRejectionRate = 0.01

	// MinRejectionRate is the rate below which the window resets.
	MinRejectionRate = 0.005

	// minRejectionsForDoS gates the flooding flag so that a short burst
	// right after the window opens is not misread as an attack.
	minRejectionsForDoS = 10
)

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// Journal persists the per-peer records. If nil, an in-memory
	// journal is used.
	Journal Journal

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// nowMillis overrides the clock in tests.
	nowMillis func() int64
}

// Monitor maintains the per-peer intrusion records. Its read-modify-write
// cycles are serialized, so the rate computation and flag updates are
// atomic with respect to concurrent rejections for the same peer.
type Monitor struct {
	journal Journal
	log     logging.LeveledLogger
	now     func() int64

	mu sync.Mutex
}

// NewMonitor creates a Monitor.
func NewMonitor(config MonitorConfig) *Monitor {
	journal := config.Journal
	if journal == nil {
		journal = NewMemoryJournal()
	}
	now := config.nowMillis
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}

	m := &Monitor{
		journal: journal,
		now:     now,
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("intrusion")
	}
	return m
}

// ManageIntrusion records one rejected verification for the peer,
// classified by the split verdict (schnorrOK, macOK). It must be called
// for every rejection and only for rejections.
func (m *Monitor) ManageIntrusion(peerID uint32, schnorrOK, macOK bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	asym, sym := counterDeltas(schnorrOK, macOK)

	rec, err := m.journal.Load(peerID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{
			AsymCounter: asym,
			SymCounter:  sym,
			WindowStart: now,
			Rejections:  1,
		}
		return m.journal.Save(peerID, rec)
	}

	// Rate in rejections per millisecond over the current window. A
	// zero-width window yields +Inf, which correctly trips the flood
	// check once enough rejections piled up.
	rate := float64(rec.Rejections) / float64(now-rec.WindowStart)
	if rate > MaxRejectionRate && rec.Rejections > minRejectionsForDoS {
		rec.DoS = true
		if m.log != nil {
			m.log.Warnf("peer %d: rejection rate %.4f/ms, flagging flood", peerID, rate)
		}
	} else if rate < MinRejectionRate {
		rec.Rejections = 0
		rec.DoS = false
		rec.WindowStart = now
	}

	rec.AsymCounter += asym
	rec.SymCounter += sym
	rec.Rejections++

	return m.journal.Save(peerID, rec)
}

// CheckIntrusion reports the peer's intrusion status: whether the
// asymmetric key pair or the shared symmetric secret look compromised,
// and whether a flood is in progress.
func (m *Monitor) CheckIntrusion(peerID uint32) (asymCompromised, symCompromised, dos bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.journal.Load(peerID)
	if err != nil {
		return false, false, false, err
	}
	if rec == nil {
		return false, false, false, nil
	}
	return rec.AsymCounter > KeyGuessThreshold,
		rec.SymCounter > KeyGuessThreshold,
		rec.DoS,
		nil
}

// Init resets the peer's record, opening a fresh window at the current
// time. Missing records are left absent.
func (m *Monitor) Init(peerID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.journal.Load(peerID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	*rec = Record{WindowStart: m.now()}
	if err := m.journal.Save(peerID, rec); err != nil {
		return fmt.Errorf("intrusion: reset record: %w", err)
	}
	return nil
}
