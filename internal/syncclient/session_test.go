package syncclient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionHappyPath(t *testing.T) {
	s := NewSession()
	require.Equal(t, SessionDisconnected, s.State())
	require.NoError(t, s.Connect())
	require.NoError(t, s.Bind())
	require.NoError(t, s.Activate())
	require.Equal(t, SessionActive, s.State())
	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume())
	require.NoError(t, s.Disconnect())
}

func TestSessionRejectsIllegalTransition(t *testing.T) {
	s := NewSession()
	err := s.Activate()
	require.Error(t, err)
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
}

func TestSessionFiresListener(t *testing.T) {
	s := NewSession()
	var gotFrom, gotTo SessionState
	s.OnTransition(func(from, to SessionState) {
		gotFrom, gotTo = from, to
	})
	require.NoError(t, s.Connect())
	require.Equal(t, SessionDisconnected, gotFrom)
	require.Equal(t, SessionConnecting, gotTo)
}

func TestResetControllerDiscardLocalSkipsUpload(t *testing.T) {
	c := NewResetController()
	require.NoError(t, c.BeginDivergence(DiscardLocal))
	require.NoError(t, c.DownloadFresh(func() error { return nil }))

	recovered, discarded, err := c.Merge([]LocalWrite{
		{Table: "Book", Obj: 1, Apply: func() error { return nil }},
	})
	require.NoError(t, err)
	require.Equal(t, 0, recovered)
	require.Equal(t, 1, discarded)
	require.Equal(t, ResetHealthy, c.State())

	require.NoError(t, c.Upload(func() error {
		t.Fatal("upload should not be called when local state was discarded")
		return nil
	}))
}

func TestResetControllerRecoverLocalUploadsMerged(t *testing.T) {
	c := NewResetController()
	require.NoError(t, c.BeginDivergence(RecoverLocal))
	require.NoError(t, c.DownloadFresh(func() error { return nil }))

	applied := false
	recovered, discarded, err := c.Merge([]LocalWrite{
		{Table: "Book", Obj: 1, Apply: func() error { applied = true; return nil }},
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 1, recovered)
	require.Equal(t, 0, discarded)
	require.Equal(t, ResetMerging, c.State())

	uploaded := false
	require.NoError(t, c.Upload(func() error { uploaded = true; return nil }))
	require.True(t, uploaded)
	require.Equal(t, ResetHealthy, c.State())
}

func TestResetControllerRecoverOrDiscardDropsFailures(t *testing.T) {
	c := NewResetController()
	require.NoError(t, c.BeginDivergence(RecoverOrDiscard))
	require.NoError(t, c.DownloadFresh(func() error { return nil }))

	recovered, discarded, err := c.Merge([]LocalWrite{
		{Table: "Book", Obj: 1, Apply: func() error { return nil }},
		{Table: "Book", Obj: 2, Apply: func() error { return fmt.Errorf("conflict") }},
	})
	require.NoError(t, err)
	require.Equal(t, 1, recovered)
	require.Equal(t, 1, discarded)
}
