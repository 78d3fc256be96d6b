package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetWarehouseDB(t *testing.T) {
	wh := GetWarehouseDB(t)
	require.NoError(t, wh.DB.Pool.Ping(context.Background()))

	// Migrations have run: the star schema exists and the calendar is loaded.
	var dateRows int64
	err := wh.DB.Pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM dim_dates").Scan(&dateRows)
	require.NoError(t, err)
	require.Greater(t, dateRows, int64(5000))
}
