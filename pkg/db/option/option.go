package option

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/scailup/creditledger/pkg/db/pagination"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination applies cursor pagination. One extra row is fetched so
// callers can detect whether more pages remain.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.PageSize
		if size <= 0 {
			size = 10
		}

		if token := strings.TrimSpace(p.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor.CreatedAt != "" {
				if at, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt); err == nil {
					db = db.Where("created_at < ?", at)
				}
			}
		}

		return db.Limit(size + 1)
	})
}

type QuerySortBy struct {
	Allow   map[string]bool
	Column  string
	Descend bool
}

// WithSortBy orders results by an allow-listed column, newest first by
// default.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(sort.Column)
		if column == "" || (sort.Allow != nil && !sort.Allow[column]) {
			column = "created_at"
		}
		direction := "ASC"
		if sort.Descend || sort.Column == "" {
			direction = "DESC"
		}
		return db.Order(column + " " + direction)
	})
}

// WithQuerySortBy builds a QuerySortBy from raw request inputs.
func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{
		Allow:   allow,
		Column:  strings.TrimSpace(sortBy),
		Descend: strings.EqualFold(strings.TrimSpace(orderBy), "desc"),
	}
}

// WithLimit caps the number of returned rows.
func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}
