package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/api/internal/model"
)

// VideoStore persists the user-facing video rows. Video status is a coarse
// projection of the most recent job; reprocessing is allowed, so videos carry
// no terminal guard.
type VideoStore interface {
	Create(ctx context.Context, video *model.Video) error
	Get(ctx context.Context, id string) (*model.Video, error)
	SetStatus(ctx context.Context, id string, status model.VideoStatus) error
	SetProcessed(ctx context.Context, id, processedURL, processedKey string) error
	SetFailed(ctx context.Context, id string) error
}

// ProjectStore resolves the ownership linkage for authorization checks.
type ProjectStore interface {
	Create(ctx context.Context, project *model.Project) error
	Get(ctx context.Context, id string) (*model.Project, error)
}

type RedisVideoStore struct {
	redis *redis.Client
}

func NewRedisVideoStore(redisClient *redis.Client) *RedisVideoStore {
	return &RedisVideoStore{redis: redisClient}
}

func videoKey(id string) string {
	return "video:" + id
}

func (s *RedisVideoStore) Create(ctx context.Context, video *model.Video) error {
	data, err := json.Marshal(video)
	if err != nil {
		return fmt.Errorf("marshal video: %w", err)
	}
	if err := s.redis.Set(ctx, videoKey(video.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save video: %w", err)
	}
	return nil
}

func (s *RedisVideoStore) Get(ctx context.Context, id string) (*model.Video, error) {
	data, err := s.redis.Get(ctx, videoKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("fetch video: %w", err)
	}

	var video model.Video
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, fmt.Errorf("unmarshal video: %w", err)
	}
	return &video, nil
}

func (s *RedisVideoStore) SetStatus(ctx context.Context, id string, status model.VideoStatus) error {
	return s.update(ctx, id, func(video *model.Video) {
		video.Status = status
	})
}

func (s *RedisVideoStore) SetProcessed(ctx context.Context, id, processedURL, processedKey string) error {
	return s.update(ctx, id, func(video *model.Video) {
		video.Status = model.VideoStatusCompleted
		video.ProcessedURL = processedURL
		if video.Metadata == nil {
			video.Metadata = make(map[string]string)
		}
		video.Metadata["processed_key"] = processedKey
	})
}

func (s *RedisVideoStore) SetFailed(ctx context.Context, id string) error {
	return s.update(ctx, id, func(video *model.Video) {
		video.Status = model.VideoStatusFailed
	})
}

func (s *RedisVideoStore) update(ctx context.Context, id string, mutate func(*model.Video)) error {
	key := videoKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrVideoNotFound
			}
			return fmt.Errorf("fetch video: %w", err)
		}

		var video model.Video
		if err := json.Unmarshal(data, &video); err != nil {
			return fmt.Errorf("unmarshal video: %w", err)
		}

		mutate(&video)
		video.UpdatedAt = time.Now().UTC()

		buf, err := json.Marshal(&video)
		if err != nil {
			return fmt.Errorf("marshal video: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, redis.KeepTTL)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxCASRetries; i++ {
		err = s.redis.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	return err
}

type RedisProjectStore struct {
	redis *redis.Client
}

func NewRedisProjectStore(redisClient *redis.Client) *RedisProjectStore {
	return &RedisProjectStore{redis: redisClient}
}

func projectKey(id string) string {
	return "project:" + id
}

func (s *RedisProjectStore) Create(ctx context.Context, project *model.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	if err := s.redis.Set(ctx, projectKey(project.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *RedisProjectStore) Get(ctx context.Context, id string) (*model.Project, error) {
	data, err := s.redis.Get(ctx, projectKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("fetch project: %w", err)
	}

	var project model.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("unmarshal project: %w", err)
	}
	return &project, nil
}
