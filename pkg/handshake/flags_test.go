package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/relaylink/pkg/events"
)

func TestFlags_ReadyFiresOnce(t *testing.T) {
	var f Flags

	assert.True(t, f.MarkSessionCreated())
	assert.True(t, f.ArmReady())
	assert.False(t, f.ArmReady(), "already pending")
	assert.True(t, f.ConsumeReady())

	// Duplicate connect events after the signal went out.
	assert.False(t, f.MarkSessionCreated())
	assert.False(t, f.ArmReady())
	assert.False(t, f.ConsumeReady())
	assert.True(t, f.ReadySignalSent)
}

func TestFlags_ResumedSuppressesReady(t *testing.T) {
	var f Flags

	f.MarkSessionCreated()
	assert.True(t, f.ArmReady())
	assert.True(t, f.MarkResumed(), "pending ready must be reported as suppressed")

	assert.False(t, f.ReadySignalPending)
	assert.False(t, f.ConsumeReady())
	assert.False(t, f.ArmReady())
	assert.False(t, f.ReadySignalSent)
}

func TestFlags_ResumedBeforeConsumeEvenIfPending(t *testing.T) {
	f := Flags{ReadySignalPending: true, ResumedSession: true}
	assert.False(t, f.ConsumeReady())
	assert.False(t, f.ReadySignalSent)
}

func TestFlags_ReconnectionBlocksRearm(t *testing.T) {
	f := Flags{Reconnection: true}
	f.MarkSessionCreated()
	assert.False(t, f.ArmReady())
}

func TestFlags_ContextSyncOnce(t *testing.T) {
	var f Flags

	assert.Equal(t, events.SyncReasonInitial, f.ContextSyncReason())
	assert.True(t, f.ClaimContextSync())
	assert.False(t, f.ClaimContextSync())

	f.ReleaseContextSync()
	assert.True(t, f.ClaimContextSync())

	f.MarkResumed()
	assert.Equal(t, events.SyncReasonResume, f.ContextSyncReason())
}

func TestFlags_ResetRearms(t *testing.T) {
	var f Flags
	f.MarkSessionCreated()
	f.ArmReady()
	f.ConsumeReady()
	f.ClaimContextSync()
	f.Reconnection = true
	f.MarkResumed()
	assert.False(t, f.IsZero())

	f.Reset()
	assert.True(t, f.IsZero())
	assert.True(t, f.ArmReady())
	assert.True(t, f.ClaimContextSync())
}

// Any interleaving of duplicated handshake operations yields at most one
// ready signal and one context sync per session.
func TestFlags_AtMostOnceUnderInterleavings(t *testing.T) {
	ops := []func(*Flags) (ready, sync bool){
		func(f *Flags) (bool, bool) { f.MarkSessionCreated(); f.ArmReady(); return false, false },
		func(f *Flags) (bool, bool) { return f.ConsumeReady(), false },
		func(f *Flags) (bool, bool) { return false, f.ClaimContextSync() },
		func(f *Flags) (bool, bool) { f.CancelReady(); return false, false },
		func(f *Flags) (bool, bool) { f.Reconnection = true; return false, false },
	}

	// Enumerate every sequence of length 6 over the operations.
	const depth = 6
	total := 1
	for i := 0; i < depth; i++ {
		total *= len(ops)
	}
	for seq := 0; seq < total; seq++ {
		var f Flags
		readies, syncs := 0, 0
		n := seq
		for i := 0; i < depth; i++ {
			r, s := ops[n%len(ops)](&f)
			n /= len(ops)
			if r {
				readies++
			}
			if s {
				syncs++
			}
		}
		assert.LessOrEqual(t, readies, 1, "sequence %d", seq)
		assert.LessOrEqual(t, syncs, 1, "sequence %d", seq)
	}
}
