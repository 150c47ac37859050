// Package distcomp coordinates distributed wordlist hash cracking.
//
// A job asks for the password behind a hash. The coordinator splits the
// wordlist into fixed-size line ranges (subtasks); workers claim subtasks one
// at a time, prove they are still alive with renewable nonce leases, and
// submit either the password or an empty answer meaning "not in my range".
// All state lives in a shared key-value store with compare-and-swap, so any
// number of coordinator processes can serve the same jobs.
//
// # Quick Start
//
//	cfg := distcomp.DefaultConfig()
//	jobs, leases, err := distcomp.OpenNATSStores(ctx, js, cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	coord, err := distcomp.NewCoordinator(&cfg, jobs, leases)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := coord.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer coord.Stop()
//
//	job, err := coord.CreateJob(ctx, distcomp.JobSpec{
//	    Name:         "demo",
//	    Algorithm:    distcomp.AlgorithmMD5,
//	    Wordlist:     "rockyou.txt",
//	    PasswordHash: "5f4dcc3b5aa765d61d8327deb882cf99",
//	    SubtaskLen:   1000,
//	})
//
// # Subtask lifecycle
//
// Every subtask is in exactly one state:
//
//	pending ──claim──▶ claimed ──answer──▶ terminal (job solved, records purged)
//	   ▲                  │
//	   └──revoke/sweep────┘      empty answer: claimed ──▶ searched
//
// A claim pops the head of the job's queue record and records the owner in
// the same compare-and-swap write. A lease with a single-use nonce is issued
// next. Each heartbeat must present the last nonce; a stale or missing nonce
// loses the subtask, which goes back to the tail of the queue. The sweeper
// started by Start requeues subtasks whose lease expired and repairs claims
// without leases and leases without claims.
//
// See the worker package for the client side and cmd/ for the binaries.
package distcomp
