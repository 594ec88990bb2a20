package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/fintrack/fintrack/internal/domain"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqStringTooLong       = "22001"
	pqNumericOutOfRange   = "22003"
)

// uniqueFields maps unique constraint names to the field they protect
var uniqueFields = map[string]string{
	"users_username_key":     "username",
	"users_email_key":        "email",
	"access_tiers_name_key":  "name",
	"clients_user_id_key":    "user_id",
	"clients_phone_key":      "phone",
	"clients_email_key":      "email",
	"profiles_user_id_key":   "user_id",
	"profiles_client_id_key": "client_id",
}

// translateError maps driver errors onto domain errors. It returns nil when err
// is not a violation the domain knows about.
func translateError(entity string, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch string(pqErr.Code) {
	case pqUniqueViolation:
		field, ok := uniqueFields[pqErr.Constraint]
		if !ok {
			field = strings.TrimSuffix(strings.TrimPrefix(pqErr.Constraint, entity+"s_"), "_key")
		}
		return &domain.ConflictError{Entity: entity, Field: field}
	case pqForeignKeyViolation:
		if pqErr.Table == "clients" && strings.Contains(pqErr.Constraint, "access_tier_id") {
			if entity == "access tier" {
				return domain.ErrTierInUse
			}
			return &domain.NotFoundError{Entity: "access tier"}
		}
		return &domain.NotFoundError{Entity: entity}
	case pqStringTooLong, pqNumericOutOfRange:
		return fmt.Errorf("%w: %s value does not fit its column", domain.ErrInvalidInput, entity)
	}
	return nil
}
