package repository

import (
	"database/sql"
	"strings"

	"github.com/garyjia/hr-requests/internal/domain/scope"
)

const defaultPageSize = 20

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// pageBounds normalises page and limit and returns the offset
func pageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	return page, limit, (page - 1) * limit
}

// scopePredicate turns a resolved scope into a WHERE fragment over the
// request columns prefixed with alias. Unrestricted yields an empty
// fragment; Denied yields a predicate that matches nothing.
func scopePredicate(sc scope.Scope, alias string) (string, []interface{}) {
	switch {
	case sc.IsUnrestricted():
		return "", nil
	case sc.IsDenied():
		return "1 = 0", nil
	}

	var parts []string
	var args []interface{}
	if ids := sc.CompanyIDs(); len(ids) > 0 {
		parts = append(parts, alias+"company_id IN ("+placeholders(len(ids))+")")
		args = append(args, stringArgs(ids)...)
	}
	if ids := sc.ContractIDs(); len(ids) > 0 {
		parts = append(parts, alias+"contract_id IN ("+placeholders(len(ids))+")")
		args = append(args, stringArgs(ids)...)
	}
	if sc.IncludeOwn() {
		parts = append(parts, alias+"solicitant_id = ?")
		args = append(args, sc.UserID())
	}
	if len(parts) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
