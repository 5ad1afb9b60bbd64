package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Diagnostics flattens an error chain into log fields. Postgres details are
// filled from whichever driver error sits in the chain.
type Diagnostics struct {
	Message string
	Code    Code
	Chain   []string
	PG      map[string]string
}

func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.code
	}
	for link := err; link != nil; link = stdErrors.Unwrap(link) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", link, link))
	}
	d.PG = postgresFields(err)
	return d
}

// Fields renders the diagnostics for logger.WithFields; empty Postgres
// attributes are left out.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	for k, v := range d.PG {
		if v != "" {
			fields["pg_"+k] = v
		}
	}
	return fields
}

func postgresFields(err error) map[string]string {
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		return map[string]string{
			"code":       pgErr.Code,
			"constraint": pgErr.ConstraintName,
			"table":      pgErr.TableName,
			"column":     pgErr.ColumnName,
			"detail":     pgErr.Detail,
			"message":    pgErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return map[string]string{
			"code":       string(pqErr.Code),
			"constraint": pqErr.Constraint,
			"table":      pqErr.Table,
			"column":     pqErr.Column,
			"detail":     pqErr.Detail,
			"message":    pqErr.Message,
		}
	}
	return nil
}
