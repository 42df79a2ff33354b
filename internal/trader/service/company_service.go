package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/pkg/logger"

	"github.com/patrickmn/go-cache"
)

// CompanyService resolves symbols to tracked companies and maintains the company list.
type CompanyService interface {
	Resolve(ctx context.Context, symbol string) (*entity.TrackedCompany, error)
	Import(ctx context.Context, r io.Reader, deactivateMissing bool) (ImportResult, error)
}

type ImportResult struct {
	Upserted    int   `json:"upserted"`
	Skipped     int   `json:"skipped"`
	Deactivated int64 `json:"deactivated"`
}

type companyService struct {
	repo  repository.TrackedCompanyRepository
	cache *cache.Cache
	log   *logger.Logger
}

// missingCompany marks a cached negative lookup.
type missingCompany struct{}

func NewCompanyService(repo repository.TrackedCompanyRepository, ttl time.Duration, log *logger.Logger) CompanyService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &companyService{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
		log:   log,
	}
}

// Resolve returns nil without error when no company holds symbol.
func (s *companyService) Resolve(ctx context.Context, symbol string) (*entity.TrackedCompany, error) {
	key := entity.NormalizeSymbol(symbol)
	if cached, ok := s.cache.Get(key); ok {
		switch v := cached.(type) {
		case entity.TrackedCompany:
			return &v, nil
		case missingCompany:
			return nil, nil
		}
	}

	company, err := s.repo.FindBySymbol(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrTrackedCompanyNotFound) {
			s.cache.Set(key, missingCompany{}, time.Minute)
			return nil, nil
		}
		return nil, err
	}
	s.cache.SetDefault(key, *company)
	return company, nil
}

// Import upserts companies from CSV (symbol,name,industry,sector,market; only symbol is
// required) and optionally deactivates every company missing from the file.
func (s *companyService) Import(ctx context.Context, r io.Reader, deactivateMissing bool) (ImportResult, error) {
	var result ImportResult

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return result, fmt.Errorf("read csv header: %w", err)
	}
	columns := map[string]int{}
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := columns["symbol"]; !ok {
		return result, ErrInvalidCSVHeader
	}
	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var seen []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read csv: %w", err)
		}

		symbol := entity.NormalizeSymbol(field(record, "symbol"))
		if symbol == "" {
			result.Skipped++
			continue
		}
		company := &entity.TrackedCompany{
			Symbol:   symbol,
			Name:     field(record, "name"),
			Industry: field(record, "industry"),
			Sector:   field(record, "sector"),
			Market:   field(record, "market"),
			IsActive: true,
		}
		if err := s.repo.Upsert(ctx, company); err != nil {
			return result, fmt.Errorf("upsert %s: %w", symbol, err)
		}
		s.cache.Delete(symbol)
		seen = append(seen, symbol)
		result.Upserted++
	}

	if deactivateMissing && len(seen) > 0 {
		n, err := s.repo.DeactivateMissing(ctx, seen)
		if err != nil {
			return result, fmt.Errorf("deactivate missing companies: %w", err)
		}
		result.Deactivated = n
		s.cache.Flush()
	}

	s.log.InfoContext(ctx, "Tracked companies imported",
		logger.IntField("upserted", result.Upserted),
		logger.IntField("skipped", result.Skipped),
		logger.IntField("deactivated", int(result.Deactivated)),
	)
	return result, nil
}
