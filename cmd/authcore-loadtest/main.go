// Command authcore-loadtest measures the engine's two hot paths, access
// token verification and refresh rotation, against the in-memory store.
// Accounts are seeded with one live session each; two timed phases then
// hammer VerifyAccess and Refresh from concurrent workers and report
// throughput with latency percentiles.
//
// Usage:
//
//	go run ./cmd/authcore-loadtest -accounts 1000 -concurrency 64 -ops 50000
package main

import (
	"context"
	"crypto/ed25519"
	crand "crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/horizonsync/authcore"
	"github.com/horizonsync/authcore/memstore"
	"github.com/horizonsync/authcore/password"
)

// accountState carries one account's live token pair. The mutex
// serializes rotation per account; the engine is what's under test,
// not client-side races.
type accountState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		accounts    = flag.Int("accounts", 1000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (verify + refresh)")
		cost        = flag.Int("bcrypt-cost", 4, "bcrypt cost for seeded accounts")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		fatalf("generate keys: %v", err)
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Cost = *cost

	store := memstore.New()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(store).
		WithRoleResolver(memstore.NewRoles()).
		Build()
	if err != nil {
		fatalf("build engine: %v", err)
	}
	defer engine.Close()

	hasher, err := password.NewBcrypt(password.Config{Cost: *cost})
	if err != nil {
		fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash("loadtest-password")
	if err != nil {
		fatalf("hash: %v", err)
	}

	fmt.Printf("seeding %d accounts with one session each...\n", *accounts)
	startSeed := time.Now()
	states := make([]accountState, *accounts)
	for i := range states {
		email := fmt.Sprintf("user%d@loadtest.local", i)
		store.AddAccount(&authcore.Account{
			ID:           fmt.Sprintf("acct-%d", i),
			Email:        email,
			PasswordHash: hash,
			Status:       authcore.StatusActive,
			CreatedAt:    time.Now(),
		})
		res, err := engine.Login(ctx, authcore.LoginInput{Email: email, Password: "loadtest-password"})
		if err != nil {
			fatalf("seed login: %v", err)
		}
		states[i].access = res.Tokens.AccessToken
		states[i].refresh = res.Tokens.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) (time.Duration, error) {
		st := &states[r.Intn(len(states))]
		t0 := time.Now()
		_, err := engine.VerifyAccess(ctx, st.access)
		return time.Since(t0), err
	})

	refreshStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) (time.Duration, error) {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		t0 := time.Now()
		pair, err := engine.Refresh(ctx, st.refresh)
		d := time.Since(t0)
		if err != nil {
			return d, err
		}
		st.access = pair.AccessToken
		st.refresh = pair.RefreshToken
		return d, nil
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
}

// runPhase fans ops operations out over concurrency workers. The op
// callback does its own timing so lock waits in the callback do not
// count against the engine.
func runPhase(ops, concurrency int, op func(r *mrand.Rand) (time.Duration, error)) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				d, err := op(r)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
