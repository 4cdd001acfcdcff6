package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one engine counter.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricAccountLockout
	MetricMFAChallenge
	MetricMFAFailure
	MetricBackupCodeUsed
	MetricBackupCodesRegenerated
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuse
	MetricRefreshRateLimited
	MetricLogout
	MetricLogoutAll
	MetricSessionRevoked
	MetricSessionEvicted

	metricCount
)

// paddedCounter keeps each counter on its own cache line so hot
// counters incremented from many goroutines do not false-share.
type paddedCounter struct {
	v atomic.Uint64
	_ [56]byte
}

var verifyBucketBoundsMicros = [...]uint64{50, 100, 250, 500, 1000, 2500, 5000, 10000}

// latencyHistogram tracks access token verification latency, the one
// engine path that sits on every authenticated request.
type latencyHistogram struct {
	count   atomic.Uint64
	sum     atomic.Uint64
	buckets [len(verifyBucketBoundsMicros) + 1]atomic.Uint64
}

func (h *latencyHistogram) observe(d time.Duration) {
	us := uint64(d.Microseconds())
	h.count.Add(1)
	h.sum.Add(us)
	for i, bound := range verifyBucketBoundsMicros {
		if us <= bound {
			h.buckets[i].Add(1)
			return
		}
	}
	h.buckets[len(verifyBucketBoundsMicros)].Add(1)
}

type metrics struct {
	counters [metricCount]paddedCounter
	verify   latencyHistogram
}

func newMetrics() *metrics {
	return &metrics{}
}

func (m *metrics) inc(id MetricID) {
	if id < 0 || id >= metricCount {
		return
	}
	m.counters[id].v.Add(1)
}

func (m *metrics) get(id MetricID) uint64 {
	return m.counters[id].v.Load()
}

// MetricsSnapshot is a point-in-time copy of every engine counter.
// Values are monotonic since engine start; deltas are the consumer's
// job.
type MetricsSnapshot struct {
	LoginSuccess           uint64
	LoginFailure           uint64
	LoginRateLimited       uint64
	AccountLockouts        uint64
	MFAChallenges          uint64
	MFAFailures            uint64
	BackupCodesUsed        uint64
	BackupCodesRegenerated uint64
	RefreshSuccess         uint64
	RefreshFailure         uint64
	RefreshReuseDetected   uint64
	RefreshRateLimited     uint64
	Logouts                uint64
	LogoutAllCalls         uint64
	SessionsRevoked        uint64
	SessionsEvicted        uint64

	VerifyCount              uint64
	VerifySumMicros          uint64
	VerifyBuckets            []uint64
	VerifyBucketBoundsMicros []uint64

	AuditDropped uint64
}

func (m *metrics) snapshot(auditDropped uint64) MetricsSnapshot {
	snap := MetricsSnapshot{
		LoginSuccess:           m.get(MetricLoginSuccess),
		LoginFailure:           m.get(MetricLoginFailure),
		LoginRateLimited:       m.get(MetricLoginRateLimited),
		AccountLockouts:        m.get(MetricAccountLockout),
		MFAChallenges:          m.get(MetricMFAChallenge),
		MFAFailures:            m.get(MetricMFAFailure),
		BackupCodesUsed:        m.get(MetricBackupCodeUsed),
		BackupCodesRegenerated: m.get(MetricBackupCodesRegenerated),
		RefreshSuccess:         m.get(MetricRefreshSuccess),
		RefreshFailure:         m.get(MetricRefreshFailure),
		RefreshReuseDetected:   m.get(MetricRefreshReuse),
		RefreshRateLimited:     m.get(MetricRefreshRateLimited),
		Logouts:                m.get(MetricLogout),
		LogoutAllCalls:         m.get(MetricLogoutAll),
		SessionsRevoked:        m.get(MetricSessionRevoked),
		SessionsEvicted:        m.get(MetricSessionEvicted),
		VerifyCount:            m.verify.count.Load(),
		VerifySumMicros:        m.verify.sum.Load(),
		AuditDropped:           auditDropped,
	}
	snap.VerifyBuckets = make([]uint64, len(m.verify.buckets))
	for i := range m.verify.buckets {
		snap.VerifyBuckets[i] = m.verify.buckets[i].Load()
	}
	snap.VerifyBucketBoundsMicros = append([]uint64(nil), verifyBucketBoundsMicros[:]...)
	return snap
}
