package sequencer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-sub029/internal/session"
	"github.com/eclipse-openj9/openj9-sub029/internal/stream"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

func TestSequencer_AdmitPassesNonCriticalImmediately(t *testing.T) {
	sq := New(time.Hour)
	sess := session.New(1, 0, session.VMInfo{})
	req := &wire.CompilationRequest{SeqNo: 1, CriticalSeqNo: 0}

	err := sq.Admit(context.Background(), sess, req)
	assert.NoError(t, err)
}

func TestSequencer_AdmitBlocksUntilCriticalPredecessorMarkedDone(t *testing.T) {
	sq := New(time.Hour)
	sess := session.New(1, 0, session.VMInfo{})
	req := &wire.CompilationRequest{SeqNo: 5, CriticalSeqNo: 3, Unloads: []wire.ClassHandle{10}}

	done := make(chan error, 1)
	go func() { done <- sq.Admit(context.Background(), sess, req) }()

	select {
	case <-done:
		t.Fatal("admit returned before its critical predecessor was marked done")
	case <-time.After(30 * time.Millisecond):
	}

	sq.MarkCriticalDone(sess, 3)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("admit did not unblock after MarkCriticalDone")
	}
}

func TestSequencer_AdmitReturnsErrOutOfOrderForStaleCritical(t *testing.T) {
	sq := New(time.Hour)
	sess := session.New(1, 0, session.VMInfo{})
	sess.LastProcessedCriticalSeqNo = 10

	req := &wire.CompilationRequest{SeqNo: 1, CriticalSeqNo: 5, Unloads: []wire.ClassHandle{1}}
	err := sq.Admit(context.Background(), sess, req)
	assert.ErrorIs(t, err, stream.ErrOutOfOrder)
}

func TestSequencer_TimeoutTriggersCacheClearRecovery(t *testing.T) {
	sq := New(10 * time.Millisecond)
	sess := session.New(1, 0, session.VMInfo{})
	sess.Cache.PutRomClass(wire.ClassHandle(1), &session.ClassInfo{Signature: "A"})

	req := &wire.CompilationRequest{SeqNo: 1, CriticalSeqNo: 5, Unloads: []wire.ClassHandle{1}}
	err := sq.Admit(context.Background(), sess, req)
	require.NoError(t, err)

	assert.Nil(t, sess.Cache.GetRomClass(1))
	assert.Equal(t, wire.SeqNo(5), sess.LastProcessedCriticalSeqNo)
}

func TestSequencer_TimeoutDoesNotRecoverWhileThreadsActive(t *testing.T) {
	sq := New(10 * time.Millisecond)
	sess := session.New(1, 0, session.VMInfo{})
	sess.SeqMu.Lock()
	sess.NumActiveThreads = 1
	sess.SeqMu.Unlock()

	req := &wire.CompilationRequest{SeqNo: 1, CriticalSeqNo: 5, Unloads: []wire.ClassHandle{1}}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := sq.Admit(ctx, sess, req)
	assert.ErrorIs(t, err, stream.ErrInterrupted)
}

func TestSequencer_AdmitAbortsOnContextCancelAndAdvancesCritical(t *testing.T) {
	sq := New(time.Hour)
	sess := session.New(1, 0, session.VMInfo{})
	ctx, cancel := context.WithCancel(context.Background())

	req := &wire.CompilationRequest{SeqNo: 1, CriticalSeqNo: 5, Unloads: []wire.ClassHandle{1}}
	done := make(chan error, 1)
	go func() { done <- sq.Admit(ctx, sess, req) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, stream.ErrInterrupted)
	case <-time.After(time.Second):
		t.Fatal("admit did not abort on context cancellation")
	}
	assert.Equal(t, wire.SeqNo(1), sess.LastProcessedCriticalSeqNo) // the aborted request's own seqNo
}
