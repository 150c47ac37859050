package keyspace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const jobID = "0b6f1a52-5d7c-4d0e-9a51-8b1f0c2a3e44"

func TestKeys(t *testing.T) {
	require.Equal(t, "job."+jobID, Job(jobID))
	require.Equal(t, "queue."+jobID, Queue(jobID))
	require.Equal(t, "subtask."+jobID+".7", SubTask(jobID, 7))
	require.Equal(t, "fingerprint.abc", Fingerprint("abc"))
	require.Equal(t, "worker.w", Worker("w"))
	require.Equal(t, jobID+".12", Lease(jobID, 12))
}

func TestParseLease(t *testing.T) {
	gotJob, gotIdx, err := ParseLease(Lease(jobID, 12))
	require.NoError(t, err)
	require.Equal(t, jobID, gotJob)
	require.Equal(t, 12, gotIdx)

	for _, bad := range []string{"", "nodot", ".3", "job.", "job.x", "job.-1"} {
		_, _, err := ParseLease(bad)
		require.Error(t, err, bad)
	}
}
