package gevabroker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagError_ExtractCourtierAndKind(t *testing.T) {
	cid := CourtierID{SubmissionID: 3, Position: 1}
	err := tagError("backpressure", cid, ErrorKindBackpressure)

	gotCID, ok := ExtractCourtierID(err)
	require.True(t, ok)
	require.Equal(t, cid, gotCID)

	gotKind, ok := ExtractErrorKind(err)
	require.True(t, ok)
	require.Equal(t, ErrorKindBackpressure, gotKind)
}

func TestExtractCourtierID_PlainErrorHasNone(t *testing.T) {
	_, ok := ExtractCourtierID(errStringForTest{})
	require.False(t, ok)
}

type errStringForTest struct{}

func (errStringForTest) Error() string { return "plain" }

func TestMarkFlagged_SetsStatusAndErrorText(t *testing.T) {
	item := newFakeItem(1)
	item.SetCourtierID(CourtierID{SubmissionID: 9, Position: 0})

	err := markFlagged(item, StatusExceptFlagged, "exploded", ErrorKindException)
	require.Error(t, err)
	require.Equal(t, StatusExceptFlagged, item.Status())
	require.Contains(t, item.ErrorText(), "exploded")

	kind, ok := ExtractErrorKind(err)
	require.True(t, ok)
	require.Equal(t, ErrorKindException, kind)
}
