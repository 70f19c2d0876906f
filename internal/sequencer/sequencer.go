// Package sequencer implements the per-session request-ordering
// protocol of spec.md §4.D: critical requests are applied to the
// session cache in client-assigned order, non-critical requests may
// overtake each other as long as the critical request they depend on
// has already been applied.
package sequencer

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eclipse-openj9/openj9-sub029/errors"
	"github.com/eclipse-openj9/openj9-sub029/internal/session"
	"github.com/eclipse-openj9/openj9-sub029/internal/stream"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
	"github.com/eclipse-openj9/openj9-sub029/logger"
)

// DefaultParkTimeout is the ≈1s park wait from spec.md §4.D.
const DefaultParkTimeout = time.Second

// parked is one request waiting in a session's park list.
type parked struct {
	seqNo         wire.SeqNo
	criticalSeqNo wire.SeqNo
	critical      bool
	wake          chan struct{}
	woken         bool
}

// seqState is the per-session sequencing state. All fields are guarded
// by the owning ClientSession's SeqMu (spec.md's "sequencingMonitor").
type seqState struct {
	parkList         []*parked
	deferToNeighbour bool
}

// Sequencer orders requests across all sessions; each session's
// ordering state is independent.
type Sequencer struct {
	parkTimeout time.Duration
	log         *zap.SugaredLogger

	mu     sync.Mutex // guards the states map only, not sequencing semantics
	states map[wire.ClientID]*seqState
}

// New constructs a Sequencer. parkTimeout <= 0 selects DefaultParkTimeout.
func New(parkTimeout time.Duration) *Sequencer {
	if parkTimeout <= 0 {
		parkTimeout = DefaultParkTimeout
	}
	return &Sequencer{
		parkTimeout: parkTimeout,
		log:         logger.Named("sequencer"),
		states:      make(map[wire.ClientID]*seqState),
	}
}

func (sq *Sequencer) stateFor(clientID wire.ClientID) *seqState {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	st, ok := sq.states[clientID]
	if !ok {
		st = &seqState{}
		sq.states[clientID] = st
	}
	return st
}

// Forget drops a session's sequencing state. Registry teardown does not
// call it, so a destroyed session's state stays in the map until Forget
// is called for its client id.
func (sq *Sequencer) Forget(clientID wire.ClientID) {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	delete(sq.states, clientID)
}

// Admit runs the full ordering protocol for one request (spec.md §4.D
// steps 1-3): it blocks (parking and possibly triggering cache-clear
// recovery) until the request's criticalSeqNo precondition holds, then
// returns nil so the caller can proceed to cache reconcile. It returns
// stream.ErrOutOfOrder if the request's critical predecessor was lost
// to a cache reset, or a context/transport error if parking was
// interrupted.
func (sq *Sequencer) Admit(ctx context.Context, sess *session.ClientSession, req *wire.CompilationRequest) error {
	st := sq.stateFor(sess.ClientID)
	critical := req.IsCritical()

	sess.UpdateLastAccess()

	sess.SeqMu.Lock()
	if req.SeqNo > sess.MaxReceivedSeqNo {
		sess.MaxReceivedSeqNo = req.SeqNo
	}

	for {
		if req.CriticalSeqNo > sess.LastProcessedCriticalSeqNo {
			pr := &parked{
				seqNo:         req.SeqNo,
				criticalSeqNo: req.CriticalSeqNo,
				critical:      critical,
				wake:          make(chan struct{}),
			}
			insertSorted(st, pr)
			sess.SeqMu.Unlock()

			woken, cancelled := sq.park(ctx, sess, st, pr)
			if cancelled {
				return sq.abortParked(sess, st, pr, req, ctx.Err())
			}
			_ = woken

			sess.SeqMu.Lock()
			continue
		}

		if req.CriticalSeqNo < sess.LastProcessedCriticalSeqNo && critical {
			sess.SeqMu.Unlock()
			return stream.ErrOutOfOrder
		}

		break
	}
	sess.SeqMu.Unlock()
	return nil
}

// MarkCriticalDone advances lastProcessedCriticalSeqNo after a critical
// request's cache effects have been successfully applied, and wakes
// eligible parked successors (spec.md §4.D step 5).
func (sq *Sequencer) MarkCriticalDone(sess *session.ClientSession, seqNo wire.SeqNo) {
	st := sq.stateFor(sess.ClientID)

	sess.SeqMu.Lock()
	if seqNo > sess.LastProcessedCriticalSeqNo {
		sess.LastProcessedCriticalSeqNo = seqNo
	}
	sq.wakeEligibleLocked(sess, st)
	sess.SeqMu.Unlock()
}

// park waits for pr to be woken, the timeout to elapse, or ctx to be
// cancelled. On timeout it drives the recovery protocol and loops until
// either woken or cancelled.
func (sq *Sequencer) park(ctx context.Context, sess *session.ClientSession, st *seqState, pr *parked) (woken bool, cancelled bool) {
	for {
		select {
		case <-pr.wake:
			return true, false
		case <-ctx.Done():
			return false, true
		case <-time.After(sq.parkTimeout):
			if sq.onTimeout(sess, st, pr) {
				// pr itself was woken as part of recovery.
				select {
				case <-pr.wake:
					return true, false
				default:
				}
			}
			// loop: re-wait, possibly with a fresh timeout.
		}
	}
}

// onTimeout implements spec.md §4.D's timeout-recovery rule. It returns
// true if pr may now be satisfied (recovery ran and could have woken
// it).
func (sq *Sequencer) onTimeout(sess *session.ClientSession, st *seqState, pr *parked) bool {
	sess.SeqMu.Lock()
	isHead := len(st.parkList) > 0 && st.parkList[0] == pr
	deferFlag := st.deferToNeighbour
	activeThreads := sess.NumActiveThreads
	sess.SeqMu.Unlock()

	if !isHead {
		return false // non-head timed-out waiters simply re-park.
	}

	if deferFlag {
		// This cohort already had one recovery; don't thrash. Consume
		// the flag once and re-park like a non-head waiter.
		sess.SeqMu.Lock()
		st.deferToNeighbour = false
		sess.SeqMu.Unlock()
		return false
	}

	if activeThreads != 0 {
		// Can't safely clear caches while a worker is mid-compile.
		return false
	}

	sq.recover(sess, st, pr)
	return true
}

// recover performs the cache-clear recovery: acquire the writer gate,
// clear every per-session cache, pretend the missing critical was
// trivially satisfied by advancing lastProcessedCriticalSeqNo to pr's
// criticalSeqNo, wake pr and every eligible successor, then mark the new head as
// deferring so a cohort of siblings doesn't all try to recover
// (spec.md §4.D).
func (sq *Sequencer) recover(sess *session.ClientSession, st *seqState, pr *parked) {
	sess.Gate.WriteLock()
	sess.ClearCaches()

	sess.SeqMu.Lock()
	if pr.criticalSeqNo > sess.LastProcessedCriticalSeqNo {
		sess.LastProcessedCriticalSeqNo = pr.criticalSeqNo
	}
	sq.wakeEligibleLocked(sess, st)
	if len(st.parkList) > 0 {
		st.deferToNeighbour = true
	}
	sess.SeqMu.Unlock()

	sess.Gate.WriteUnlock()

	sq.log.Warnw("sequencer timeout triggered cache-clear recovery",
		"client_id", sess.ClientID, "advanced_critical_seq_no", pr.criticalSeqNo)
}

// wakeEligibleLocked wakes and removes every parked request whose
// criticalSeqNo precondition is now satisfied. Caller holds sess.SeqMu.
func (sq *Sequencer) wakeEligibleLocked(sess *session.ClientSession, st *seqState) {
	remaining := st.parkList[:0:0]
	for _, p := range st.parkList {
		if p.criticalSeqNo <= sess.LastProcessedCriticalSeqNo && !p.woken {
			p.woken = true
			close(p.wake)
			continue
		}
		remaining = append(remaining, p)
	}
	st.parkList = remaining
}

// abortParked removes pr from the park list after the transport
// cancelled the wait. If the request was critical, lastProcessedCriticalSeqNo
// must still advance to seqNo before aborting, or dependent requests
// would deadlock forever (spec.md §4.D "Cancellation").
func (sq *Sequencer) abortParked(sess *session.ClientSession, st *seqState, pr *parked, req *wire.CompilationRequest, cause error) error {
	sess.SeqMu.Lock()
	removeFromList(st, pr)
	if req.IsCritical() && req.SeqNo > sess.LastProcessedCriticalSeqNo {
		sess.LastProcessedCriticalSeqNo = req.SeqNo
	}
	sq.wakeEligibleLocked(sess, st)
	sess.SeqMu.Unlock()

	return errors.Wrap(stream.ErrInterrupted, cause.Error())
}

func insertSorted(st *seqState, pr *parked) {
	i := sort.Search(len(st.parkList), func(i int) bool {
		return st.parkList[i].seqNo >= pr.seqNo
	})
	st.parkList = append(st.parkList, nil)
	copy(st.parkList[i+1:], st.parkList[i:])
	st.parkList[i] = pr
}

func removeFromList(st *seqState, pr *parked) {
	for i, p := range st.parkList {
		if p == pr {
			st.parkList = append(st.parkList[:i], st.parkList[i+1:]...)
			return
		}
	}
}
