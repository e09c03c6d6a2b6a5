package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"go-blur/pkg/common"
)

func newTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.EnsureGroups(context.Background()))
	return client, srv
}

func testJob(tileID int) *common.JobMessage {
	return &common.JobMessage{
		Type: common.JobTypeTile,
		ImageTile: &common.ImageTile{
			ImageID: 1, TileID: tileID,
			X: 16, Y: 0, Width: 16, Height: 16,
			PadX: 10, PadY: 0, PadWidth: 28, PadHeight: 22,
			Sigma:  1.8,
			Pixels: []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00},
		},
	}
}

func TestEnsureGroupsIsIdempotent(t *testing.T) {
	client, _ := newTestClient(t)
	require.NoError(t, client.EnsureGroups(context.Background()))
}

func TestJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	sent := testJob(3)
	id, err := client.AddJob(ctx, sent)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	gotID, got, err := client.ReadJob(ctx, "worker-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, id, gotID)
	require.Equal(t, sent, got)
	require.NoError(t, client.AckJob(ctx, gotID))

	gotID, got, err = client.ReadJob(ctx, "worker-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, gotID)
	require.Nil(t, got)
}

func TestResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	sent := &common.ResultMessage{
		ProcessedTile: &common.ProcessedImageTile{ImageID: 2, TileID: 7, X: 0, Y: 32, Width: 16, Height: 5, Pixels: []byte{1, 2, 3}},
		WorkerID:      "worker-2",
		ProcessTime:   0.25,
	}
	_, err := client.AddResult(ctx, sent)
	require.NoError(t, err)

	id, got, err := client.ReadResult(ctx, "assembler", 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, sent, got)
	require.NoError(t, client.AckResult(ctx, id))
}

func TestImageInfoAndStatus(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)

	info := &common.ImageInfo{
		ID: 4, InputPath: "in/a.png", OutputPath: "out/a_blurred.png",
		Width: 640, Height: 480, Sigma: 10, ExpectedTiles: 6,
		StartTime: time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC),
	}
	require.NoError(t, client.StoreImageInfo(ctx, info))
	require.Equal(t, imageInfoTTL, srv.TTL(imageInfoKey(4)))

	got, err := client.GetImageInfo(ctx, 4)
	require.NoError(t, err)
	require.True(t, info.StartTime.Equal(got.StartTime))
	got.StartTime = info.StartTime
	require.Equal(t, info, got)

	_, err = client.GetImageInfo(ctx, 5)
	require.Error(t, err)

	done, err := client.IsImageCompleted(ctx, 4)
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, client.MarkImageCompleted(ctx, 4))
	done, err = client.IsImageCompleted(ctx, 4)
	require.NoError(t, err)
	require.True(t, done)
}

func TestClaimStaleJobsReturnsJobs(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	for tileID := 0; tileID < 2; tileID++ {
		_, err := client.AddJob(ctx, testJob(tileID))
		require.NoError(t, err)
	}

	// worker-1 takes both jobs and never acknowledges them
	for i := 0; i < 2; i++ {
		id, _, err := client.ReadJob(ctx, "worker-1", 10*time.Millisecond)
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}

	claimed, err := client.ClaimStaleJobs(ctx, "worker-2", 0, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for i, c := range claimed {
		require.Equal(t, testJob(i), c.Job)
		require.NoError(t, client.AckJob(ctx, c.ID))
	}

	claimed, err = client.ClaimStaleJobs(ctx, "worker-2", 0, 10)
	require.NoError(t, err)
	require.Empty(t, claimed)
}
