package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// isUniqueViolation はエラーが指定制約の一意制約違反かを判定する。
// constraintが空の場合は制約名を問わない。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
