package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	loc, err := Load(Stockholm)
	require.NoError(t, err)

	summer := time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC).In(loc)
	require.Equal(t, 14, summer.Hour())
	winter := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC).In(loc)
	require.Equal(t, 13, winter.Hour())

	loc, err = Load("")
	require.NoError(t, err)
	require.Equal(t, time.Local, loc)

	_, err = Load("Mars/Olympus_Mons")
	require.Error(t, err)
}
