package syncclient

import (
	"fmt"
	"sync"
)

// resetTransitions mirrors the Applier.Apply staged pipeline (preflight
// -> validate -> confirm -> execute), generalized from a one-shot
// migration run to the repeatable reset cycle of §7.2.
var resetTransitions = map[ClientResetState][]ClientResetState{
	ResetHealthy:          {ResetDiverged},
	ResetDiverged:         {ResetDownloadingFresh},
	ResetDownloadingFresh: {ResetMerging},
	ResetMerging:          {ResetUploading, ResetHealthy}, // DiscardLocal skips straight to Healthy
	ResetUploading:        {ResetHealthy},
}

// LocalWrite is one write the client made since its last successful
// upload, replayed during RecoverLocal/RecoverOrDiscard merging.
type LocalWrite struct {
	Table string
	Obj   uint64
	Apply func() error
}

// Fetcher downloads the server's authoritative fresh copy of the
// realm; Uploader pushes the merged state back up. Both are injected
// so ResetController stays independent of any concrete transport.
type Fetcher func() error
type Uploader func() error

// ResetController drives one client-reset cycle through the states of
// §7.2, rejecting out-of-order calls the same way Session rejects
// illegal connectivity transitions.
type ResetController struct {
	mu    sync.Mutex
	state ClientResetState
	mode  ResetMode
}

func NewResetController() *ResetController {
	return &ResetController{state: ResetHealthy}
}

func (c *ResetController) State() ClientResetState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ResetController) transition(to ClientResetState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, next := range resetTransitions[c.state] {
		if next == to {
			c.state = to
			return nil
		}
	}
	return &ErrInvalidTransition{From: c.state, To: to}
}

// BeginDivergence moves Healthy -> Diverged: the client has detected
// that its local history no longer shares a common ancestor with the
// server (a truncated sync history, a rolled-back backend, or a
// schema-incompatible upgrade).
func (c *ResetController) BeginDivergence(mode ResetMode) error {
	if err := c.transition(ResetDiverged); err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	log.WithField("mode", mode).Info("client reset: diverged")
	return nil
}

// DownloadFresh runs fetch to pull the server's current realm and
// advances Diverged -> DownloadingFresh.
func (c *ResetController) DownloadFresh(fetch Fetcher) error {
	if err := c.transition(ResetDownloadingFresh); err != nil {
		return err
	}
	if err := fetch(); err != nil {
		return fmt.Errorf("client reset: download fresh copy: %w", err)
	}
	return nil
}

// Merge applies mode's recovery policy against local and advances
// DownloadingFresh -> Merging. DiscardLocal drops every local write;
// RecoverLocal replays them all, failing the whole reset if any single
// write cannot be applied; RecoverOrDiscard replays what it can and
// silently drops the rest.
func (c *ResetController) Merge(local []LocalWrite) (recovered, discarded int, err error) {
	if err := c.transition(ResetMerging); err != nil {
		return 0, 0, err
	}
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	switch mode {
	case DiscardLocal:
		discarded = len(local)
	case RecoverLocal:
		for _, w := range local {
			if applyErr := w.Apply(); applyErr != nil {
				return recovered, discarded, fmt.Errorf("client reset: recover local write on %s/%d: %w", w.Table, w.Obj, applyErr)
			}
			recovered++
		}
	case RecoverOrDiscard:
		for _, w := range local {
			if applyErr := w.Apply(); applyErr != nil {
				log.WithField("table", w.Table).WithField("obj", w.Obj).WithError(applyErr).Warn("client reset: dropping unrecoverable local write")
				discarded++
				continue
			}
			recovered++
		}
	default:
		return 0, 0, fmt.Errorf("client reset: unknown reset mode %v", mode)
	}

	if mode == DiscardLocal {
		// Nothing to upload: discarding local state means the merged
		// realm is already identical to the server's, so the cycle can
		// close immediately without an upload round trip.
		if err := c.transition(ResetHealthy); err != nil {
			return recovered, discarded, err
		}
	}
	return recovered, discarded, nil
}

// Upload pushes recovered local writes back to the server and closes
// the cycle, Merging -> Uploading -> Healthy. It is a no-op call for a
// cycle that discarded everything in Merge (already Healthy).
func (c *ResetController) Upload(upload Uploader) error {
	if c.State() == ResetHealthy {
		return nil
	}
	if err := c.transition(ResetUploading); err != nil {
		return err
	}
	if err := upload(); err != nil {
		return fmt.Errorf("client reset: upload merged state: %w", err)
	}
	return c.transition(ResetHealthy)
}
