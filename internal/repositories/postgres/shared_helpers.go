package postgres

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/learnio/learnio/internal/repositories"
)

// handleDBError maps gorm errors onto the repository sentinels
func handleDBError(err error, operation string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", operation, repositories.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", operation, repositories.ErrDuplicate)
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}

// checkAffected turns a conditional update that matched nothing into ErrStaleUpdate
func checkAffected(result *gorm.DB, operation string) error {
	if result.Error != nil {
		return handleDBError(result.Error, operation)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", operation, repositories.ErrStaleUpdate)
	}
	return nil
}

// applyPaginationAndSort applies pagination and sorting with SQL injection protection
func applyPaginationAndSort(query *gorm.DB, allowed map[string]bool, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	if sortBy == "" || !allowed[sortBy] {
		sortBy = "created_at"
	}

	if strings.EqualFold(sortOrder, "asc") {
		sortOrder = "ASC"
	} else {
		sortOrder = "DESC"
	}

	// id breaks ties so pages are stable
	query = query.Order(sortBy + " " + sortOrder).Order("id " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(q)) + "%"
}
