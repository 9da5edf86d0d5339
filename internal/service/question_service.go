package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/response"
)

// CatalogTTL bounds how long technology and category listings are cached.
const CatalogTTL = 10 * time.Minute

// ErrEmptyUpload rejects a bulk upload whose rows are all blank.
var ErrEmptyUpload = errors.New("bulk upload has no questions")

// QuestionService proxies the question bank of the REST API.
type QuestionService struct {
	api  *backend.Client
	rdb  *redis.Client
	keys *config.StoreKeyStruct
	log  zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(api *backend.Client, rdb *redis.Client, keys *config.StoreKeyStruct, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		api:  api,
		rdb:  rdb,
		keys: keys,
		log:  log.With().Str("component", "question_bank").Logger(),
	}
}

// ListQuestions retrieves bank questions with pagination.
func (s *QuestionService) ListQuestions(ctx context.Context, params model.ListParams) ([]model.BankQuestion, *response.Pagination, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 10
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	items, page, err := s.api.ListQuestions(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	pagination := &response.Pagination{
		Page:       params.Page,
		PerPage:    params.PageSize,
		TotalItems: page.Total,
		TotalPages: page.PageCount,
	}
	if page.Page > 0 {
		pagination.Page = page.Page
	}
	if page.PageSize > 0 {
		pagination.PerPage = page.PageSize
	}
	if pagination.TotalPages == 0 && page.Total > 0 {
		pagination.TotalPages = (page.Total + pagination.PerPage - 1) / pagination.PerPage
	}

	return items, pagination, nil
}

// Technologies lists technologies, served from cache when warm.
func (s *QuestionService) Technologies(ctx context.Context) ([]model.Technology, error) {
	return cachedCatalog(s, ctx, "technologies", s.api.Technologies)
}

// Categories lists categories, served from cache when warm.
func (s *QuestionService) Categories(ctx context.Context) ([]model.Category, error) {
	return cachedCatalog(s, ctx, "categories", s.api.Categories)
}

// BulkUpload trims rows, drops blank ones and uploads the rest. The catalog
// cache is invalidated since uploads may add technologies.
func (s *QuestionService) BulkUpload(ctx context.Context, req model.BulkUploadRequest) (*model.BulkUploadResult, error) {
	rows := make([]model.BulkQuestion, 0, len(req.Questions))
	for _, q := range req.Questions {
		q.Question = strings.TrimSpace(q.Question)
		q.Answer = strings.TrimSpace(q.Answer)
		q.Technology = strings.TrimSpace(q.Technology)
		q.Category = strings.TrimSpace(q.Category)
		if q.Question == "" {
			continue
		}
		rows = append(rows, q)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyUpload
	}

	result, err := s.api.BulkUpload(ctx, model.BulkUploadRequest{Questions: rows})
	if err != nil {
		return nil, err
	}

	if err := s.rdb.Del(ctx, s.keys.CatalogKey("technologies"), s.keys.CatalogKey("categories")).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate catalog cache")
	}

	s.log.Info().
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("Bulk upload finished")
	return result, nil
}

func cachedCatalog[T any](s *QuestionService, ctx context.Context, name string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	key := s.keys.CatalogKey(name)

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var items []T
		if jerr := json.Unmarshal(data, &items); jerr == nil {
			return items, nil
		}
		s.log.Warn().Str("catalog", name).Msg("Discarding unreadable catalog cache")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("catalog", name).Msg("Catalog cache unavailable")
	}

	items, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := s.rdb.Set(ctx, key, payload, CatalogTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("catalog", name).Msg("Failed to cache catalog")
	}
	return items, nil
}
