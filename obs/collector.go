package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/horizonsync/authcore"
)

// EngineCollector exposes engine counters to Prometheus. The engine
// keeps its own lock-free counters; the collector reads one snapshot
// per scrape and emits const metrics, so scraping never contends with
// the login and refresh paths.
type EngineCollector struct {
	metrics func() authcore.MetricsSnapshot

	logins        *prometheus.Desc
	loginLimited  *prometheus.Desc
	lockouts      *prometheus.Desc
	mfaChallenges *prometheus.Desc
	mfaFailures   *prometheus.Desc
	codesUsed     *prometheus.Desc
	codesReissued *prometheus.Desc
	refreshes     *prometheus.Desc
	reuseDetected *prometheus.Desc
	refreshLimit  *prometheus.Desc
	logouts       *prometheus.Desc
	logoutAll     *prometheus.Desc
	revoked       *prometheus.Desc
	evicted       *prometheus.Desc
	auditDropped  *prometheus.Desc
	verify        *prometheus.Desc
}

// NewEngineCollector builds a collector over a live engine.
func NewEngineCollector(e *authcore.Engine) *EngineCollector {
	return NewSnapshotCollector(e.Metrics)
}

// NewSnapshotCollector builds a collector over any snapshot source.
func NewSnapshotCollector(metrics func() authcore.MetricsSnapshot) *EngineCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("authcore", "", name), help, labels, nil)
	}
	return &EngineCollector{
		metrics:       metrics,
		logins:        desc("logins_total", "Login attempts by result.", "result"),
		loginLimited:  desc("login_rate_limited_total", "Logins rejected by the rate limiter."),
		lockouts:      desc("account_lockouts_total", "Accounts locked after repeated failures."),
		mfaChallenges: desc("mfa_challenges_total", "Logins answered with a second-factor challenge."),
		mfaFailures:   desc("mfa_failures_total", "Second factors rejected at login."),
		codesUsed:     desc("backup_codes_used_total", "Backup codes redeemed."),
		codesReissued: desc("backup_codes_regenerated_total", "Backup code set regenerations."),
		refreshes:     desc("refresh_total", "Refresh attempts by result.", "result"),
		reuseDetected: desc("refresh_reuse_detected_total", "Refresh token replays that revoked a family."),
		refreshLimit:  desc("refresh_rate_limited_total", "Refreshes rejected by the rate limiter."),
		logouts:       desc("logouts_total", "Single-session logouts."),
		logoutAll:     desc("logout_all_total", "Account-wide logout calls."),
		revoked:       desc("sessions_revoked_total", "Sessions revoked through the session list."),
		evicted:       desc("sessions_evicted_total", "Sessions evicted by the per-account cap."),
		auditDropped:  desc("audit_events_dropped_total", "Audit events dropped by the dispatcher."),
		verify:        desc("token_verify_duration_seconds", "Access token verification latency."),
	}
}

func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d
	}
}

func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.logins, s.LoginSuccess, "success")
	counter(c.logins, s.LoginFailure, "failure")
	counter(c.loginLimited, s.LoginRateLimited)
	counter(c.lockouts, s.AccountLockouts)
	counter(c.mfaChallenges, s.MFAChallenges)
	counter(c.mfaFailures, s.MFAFailures)
	counter(c.codesUsed, s.BackupCodesUsed)
	counter(c.codesReissued, s.BackupCodesRegenerated)
	counter(c.refreshes, s.RefreshSuccess, "success")
	counter(c.refreshes, s.RefreshFailure, "failure")
	counter(c.reuseDetected, s.RefreshReuseDetected)
	counter(c.refreshLimit, s.RefreshRateLimited)
	counter(c.logouts, s.Logouts)
	counter(c.logoutAll, s.LogoutAllCalls)
	counter(c.revoked, s.SessionsRevoked)
	counter(c.evicted, s.SessionsEvicted)
	counter(c.auditDropped, s.AuditDropped)

	// The engine buckets are per-interval microsecond counts; const
	// histograms want cumulative counts keyed by seconds.
	buckets := make(map[float64]uint64, len(s.VerifyBucketBoundsMicros))
	var cum uint64
	for i, bound := range s.VerifyBucketBoundsMicros {
		if i < len(s.VerifyBuckets) {
			cum += s.VerifyBuckets[i]
		}
		buckets[float64(bound)/1e6] = cum
	}
	ch <- prometheus.MustNewConstHistogram(c.verify, s.VerifyCount,
		float64(s.VerifySumMicros)/1e6, buckets)
}

func (c *EngineCollector) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		c.logins, c.loginLimited, c.lockouts, c.mfaChallenges, c.mfaFailures,
		c.codesUsed, c.codesReissued, c.refreshes, c.reuseDetected, c.refreshLimit,
		c.logouts, c.logoutAll, c.revoked, c.evicted, c.auditDropped, c.verify,
	}
}
