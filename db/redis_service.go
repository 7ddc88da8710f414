package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gradebook-risk-server-go/analysis"
	"gradebook-risk-server-go/models"
)

const (
	periodsKey     = "periods" // Set: every period with a stored analysis
	periodPrefix   = "period:" // Hash prefix: period:{id} -> period info
	classesSuffix  = ":classes"
	classKeyPrefix = ":class:"
)

// RedisService stores the latest analysis of every period in Redis
type RedisService struct {
	Client *redis.Client
	log    zerolog.Logger
}

// NewRedisService creates a new RedisService instance
func NewRedisService(client *redis.Client, log zerolog.Logger) *RedisService {
	return &RedisService{
		Client: client,
		log:    log,
	}
}

// Helper to generate period info key
func getPeriodKey(period models.Period) string {
	return periodPrefix + string(period)
}

// Helper to generate the set key of a period's classes
func getPeriodClassesKey(period models.Period) string {
	return getPeriodKey(period) + classesSuffix
}

// Helper to generate a class result key
func getClassResultKey(period models.Period, classKey string) string {
	return getPeriodKey(period) + classKeyPrefix + classKey
}

// SaveAnalysis replaces the stored analysis of a.Info.Period.
func (s *RedisService) SaveAnalysis(ctx context.Context, a *models.Analysis) error {
	if a == nil || a.Info.Period == "" {
		return errors.New("analysis period cannot be empty")
	}
	period := a.Info.Period

	oldClasses, err := s.Client.SMembers(ctx, getPeriodClassesKey(period)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read stored classes of %s: %w", period, err)
	}

	warnings, err := json.Marshal(a.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	pipe := s.Client.TxPipeline()
	for _, key := range oldClasses {
		pipe.Del(ctx, getClassResultKey(period, key))
	}
	pipe.Del(ctx, getPeriodClassesKey(period))

	pipe.SAdd(ctx, periodsKey, string(period))
	pipe.HSet(ctx, getPeriodKey(period), map[string]interface{}{
		"period":        string(period),
		"description":   a.Info.Description,
		"sheetsFound":   a.Info.SheetsFound,
		"sheetsTotal":   a.Info.SheetsTotal,
		"loadedClasses": a.Info.LoadedClasses,
		"warnings":      string(warnings),
		"analyzedAt":    a.AnalyzedAt.UTC().Format(time.RFC3339),
	})

	for _, class := range a.Classes {
		payload, err := json.Marshal(class)
		if err != nil {
			return fmt.Errorf("failed to encode class %s: %w", class.Class, err)
		}
		pipe.SAdd(ctx, getPeriodClassesKey(period), class.Class)
		pipe.Set(ctx, getClassResultKey(period, class.Class), payload, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("period", string(period)).Msg("Error saving analysis")
		return fmt.Errorf("failed to save analysis to Redis: %w", err)
	}
	s.log.Info().
		Str("period", string(period)).
		Int("classes", len(a.Classes)).
		Msg("Saved analysis")
	return nil
}

// PeriodExists checks if a period has a stored analysis
func (s *RedisService) PeriodExists(ctx context.Context, period models.Period) (bool, error) {
	exists, err := s.Client.SIsMember(ctx, periodsKey, string(period)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check period existence: %w", err)
	}
	return exists, nil
}

// GetPeriodInfo retrieves the stored info of a period; nil when absent.
func (s *RedisService) GetPeriodInfo(ctx context.Context, period models.Period) (*models.PeriodInfo, []string, time.Time, error) {
	data, err := s.Client.HGetAll(ctx, getPeriodKey(period)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, time.Time{}, fmt.Errorf("failed to get period from Redis: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, time.Time{}, nil // Not found
	}

	info := &models.PeriodInfo{
		Period:        models.Period(data["period"]),
		Description:   data["description"],
		SheetsFound:   atoi(data["sheetsFound"]),
		SheetsTotal:   atoi(data["sheetsTotal"]),
		LoadedClasses: atoi(data["loadedClasses"]),
	}
	var warnings []string
	if raw := data["warnings"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &warnings); err != nil {
			s.log.Warn().Err(err).Str("period", string(period)).Msg("Corrupt warnings field")
		}
	}
	analyzedAt, _ := time.Parse(time.RFC3339, data["analyzedAt"])
	return info, warnings, analyzedAt, nil
}

// GetPeriods lists the info of every stored period, ordered by period.
func (s *RedisService) GetPeriods(ctx context.Context) ([]models.PeriodInfo, error) {
	ids, err := s.Client.SMembers(ctx, periodsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get period IDs from Redis: %w", err)
	}
	sort.Strings(ids)

	periods := make([]models.PeriodInfo, 0, len(ids))
	for _, id := range ids {
		info, _, _, err := s.GetPeriodInfo(ctx, models.Period(id))
		if err != nil {
			// Log the error but continue trying to fetch others
			s.log.Error().Err(err).Str("period", id).Msg("Error fetching period details")
			continue
		}
		if info != nil {
			periods = append(periods, *info)
		}
	}
	return periods, nil
}

// GetClassKeys lists the classes stored for a period, sorted.
func (s *RedisService) GetClassKeys(ctx context.Context, period models.Period) ([]string, error) {
	keys, err := s.Client.SMembers(ctx, getPeriodClassesKey(period)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get classes of %s from Redis: %w", period, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetClassResult retrieves one class of a period; nil when absent.
func (s *RedisService) GetClassResult(ctx context.Context, period models.Period, classKey string) (*models.ClassResult, error) {
	payload, err := s.Client.Get(ctx, getClassResultKey(period, classKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get class %s from Redis: %w", classKey, err)
	}

	var result models.ClassResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode class %s: %w", classKey, err)
	}
	return &result, nil
}

// GetAnalysis reassembles the stored analysis of a period; nil when absent.
func (s *RedisService) GetAnalysis(ctx context.Context, period models.Period) (*models.Analysis, error) {
	info, warnings, analyzedAt, err := s.GetPeriodInfo(ctx, period)
	if err != nil || info == nil {
		return nil, err
	}

	keys, err := s.GetClassKeys(ctx, period)
	if err != nil {
		return nil, err
	}

	classes := make([]models.ClassResult, 0, len(keys))
	for _, key := range keys {
		class, err := s.GetClassResult(ctx, period, key)
		if err != nil {
			return nil, err
		}
		if class != nil {
			classes = append(classes, *class)
		}
	}

	return &models.Analysis{
		Info:       *info,
		Classes:    classes,
		Cohort:     analysis.Cohort(classes),
		Warnings:   warnings,
		AnalyzedAt: analyzedAt,
	}, nil
}

// Ping checks the Redis connection.
func (s *RedisService) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

// InitializeRedisClient creates and tests a Redis client connection
func InitializeRedisClient(ctx context.Context, url string, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis connected")
	return rdb, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
