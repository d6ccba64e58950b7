package dataset

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dennisdiepolder/monti/agentkpi/internal/cache"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/rs/zerolog"
)

// Service serves tables from a Loader through a signature-keyed cache.
// Any change to a source file's size or modification time, or to the
// listing of a directory a load depends on, produces a new key.
type Service struct {
	loader *Loader
	tables *cache.Cache[types.Table]
	logger zerolog.Logger
}

// NewService wraps loader with an in-memory table cache
func NewService(loader *Loader, logger zerolog.Logger) *Service {
	return &Service{
		loader: loader,
		tables: cache.New[types.Table](0),
		logger: logger.With().Str("component", "dataset").Logger(),
	}
}

// Loader returns the underlying uncached loader
func (s *Service) Loader() *Loader {
	return s.loader
}

// Months lists the months with a monthly export
func (s *Service) Months() []types.MonthRef {
	return s.loader.Months()
}

// Monthly returns the monthly table for month
func (s *Service) Monthly(month string) types.Table {
	return s.get(types.KindMonthly, month, month, func() types.Table {
		return s.loader.Monthly(month)
	})
}

// History returns every monthly export tagged by month
func (s *Service) History() types.Table {
	return s.get(types.KindHistory, "", "", s.loader.History)
}

// Daily returns the per-day table of a month
func (s *Service) Daily(q DailyQuery) types.Table {
	selector := fmt.Sprintf("%s|%d|%s", strings.ToLower(q.Month), q.Year, q.Agent)
	return s.get(types.KindDaily, selector, q.Month, func() types.Table {
		return s.loader.Daily(q)
	})
}

// Evaluations returns the per-evaluation rows of one agent
func (s *Service) Evaluations(month, agent string) types.Table {
	selector := strings.ToLower(month) + "|" + agent
	return s.get(types.KindEvaluation, selector, month, func() types.Table {
		return s.loader.Evaluations(month, agent)
	})
}

// Ranking returns a weekly ranking snapshot
func (s *Service) Ranking(snapshot string) types.Table {
	name := SnapshotName(snapshot)
	return s.get(types.KindRanking, name, name, func() types.Table {
		return s.loader.Ranking(name)
	})
}

// Invalidate drops every cached table
func (s *Service) Invalidate() {
	s.tables.Purge()
	s.logger.Info().Msg("table cache purged")
}

func (s *Service) get(kind types.Kind, selector, source string, load func() types.Table) types.Table {
	key := cache.Key{
		Kind:      string(kind),
		Selector:  selector,
		Signature: Signature(s.loader.Sources(kind, source)),
	}
	t, _ := s.tables.Get(key, func() (types.Table, error) {
		return load(), nil
	})
	return t
}

// Signature fingerprints paths by size and modification time. Absent paths
// are part of the fingerprint so their later creation is noticed.
func Signature(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		info, err := os.Stat(p)
		if err != nil {
			b.WriteString(":absent;")
			continue
		}
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(info.Size(), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(info.ModTime().UnixNano(), 10))
		b.WriteByte(';')
	}
	return b.String()
}
