package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go-blur/pkg/codec"
	"go-blur/pkg/common"
)

const (
	jobsStream    = "blur:jobs"
	resultsStream = "blur:results"

	workersGroup    = "workers"
	assemblersGroup = "assemblers"

	imageInfoTTL = 24 * time.Hour
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, addr string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{client: client}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func imageInfoKey(imageID int) string {
	return fmt.Sprintf("blur:image:%d:info", imageID)
}

func imageStatusKey(imageID int) string {
	return fmt.Sprintf("blur:image:%d:status", imageID)
}

// EnsureGroups creates both streams and their consumer groups. Groups
// that already exist are left alone.
func (r *RedisClient) EnsureGroups(ctx context.Context) error {
	for stream, group := range map[string]string{jobsStream: workersGroup, resultsStream: assemblersGroup} {
		err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("failed to create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (r *RedisClient) AddJob(ctx context.Context, job *common.JobMessage) (string, error) {
	return r.add(ctx, jobsStream, job)
}

func (r *RedisClient) AddResult(ctx context.Context, res *common.ResultMessage) (string, error) {
	return r.add(ctx, resultsStream, res)
}

func (r *RedisClient) add(ctx context.Context, stream string, v any) (string, error) {
	b, err := codec.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode message for %s: %w", stream, err)
	}

	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": b},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", stream, err)
	}
	return id, nil
}

// ReadJob waits up to block for the next undelivered job. It returns an
// empty id and a nil job when nothing arrived in time.
func (r *RedisClient) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	var job common.JobMessage
	id, err := r.read(ctx, jobsStream, workersGroup, consumer, block, &job)
	if err != nil || id == "" {
		return "", nil, err
	}
	return id, &job, nil
}

// ReadResult is ReadJob for the results stream.
func (r *RedisClient) ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error) {
	var res common.ResultMessage
	id, err := r.read(ctx, resultsStream, assemblersGroup, consumer, block, &res)
	if err != nil || id == "" {
		return "", nil, err
	}
	return id, &res, nil
}

func (r *RedisClient) read(ctx context.Context, stream, group, consumer string, block time.Duration, v any) (string, error) {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read from %s: %w", stream, err)
	}
	if len(result) == 0 || len(result[0].Messages) == 0 {
		return "", nil
	}

	msg := result[0].Messages[0]
	if err := decodeMessage(msg, v); err != nil {
		return "", fmt.Errorf("failed to decode %s entry %s: %w", stream, msg.ID, err)
	}
	return msg.ID, nil
}

func decodeMessage(msg redis.XMessage, v any) error {
	switch data := msg.Values["data"].(type) {
	case string:
		return codec.Unmarshal([]byte(data), v)
	case []byte:
		return codec.Unmarshal(data, v)
	default:
		return fmt.Errorf("unexpected data field of type %T", data)
	}
}

func (r *RedisClient) AckJob(ctx context.Context, id string) error {
	return r.client.XAck(ctx, jobsStream, workersGroup, id).Err()
}

func (r *RedisClient) AckResult(ctx context.Context, id string) error {
	return r.client.XAck(ctx, resultsStream, assemblersGroup, id).Err()
}

func (r *RedisClient) StoreImageInfo(ctx context.Context, info *common.ImageInfo) error {
	b, err := codec.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode image info: %w", err)
	}
	return r.client.Set(ctx, imageInfoKey(info.ID), b, imageInfoTTL).Err()
}

func (r *RedisClient) GetImageInfo(ctx context.Context, imageID int) (*common.ImageInfo, error) {
	data, err := r.client.Get(ctx, imageInfoKey(imageID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to get info for image %d: %w", imageID, err)
	}

	var info common.ImageInfo
	if err := codec.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode info for image %d: %w", imageID, err)
	}
	return &info, nil
}

func (r *RedisClient) MarkImageCompleted(ctx context.Context, imageID int) error {
	return r.client.Set(ctx, imageStatusKey(imageID), "completed", imageInfoTTL).Err()
}

func (r *RedisClient) IsImageCompleted(ctx context.Context, imageID int) (bool, error) {
	result, err := r.client.Get(ctx, imageStatusKey(imageID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result == "completed", nil
}

// ClaimedJob is a pending job taken over from another consumer.
type ClaimedJob struct {
	ID  string
	Job *common.JobMessage
}

// ClaimStaleJobs moves up to count jobs that have been pending for at
// least minIdle to consumer and returns them for processing. Entries
// that fail to decode are acknowledged and dropped.
func (r *RedisClient) ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]ClaimedJob, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: jobsStream,
		Group:  workersGroup,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  int64(count),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   jobsStream,
		Group:    workersGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	jobs := make([]ClaimedJob, 0, len(claimed))
	for _, msg := range claimed {
		var job common.JobMessage
		if err := decodeMessage(msg, &job); err != nil {
			_ = r.AckJob(ctx, msg.ID)
			continue
		}
		jobs = append(jobs, ClaimedJob{ID: msg.ID, Job: &job})
	}
	return jobs, nil
}
