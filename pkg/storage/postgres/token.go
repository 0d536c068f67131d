package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/nsyszr/eventbroker/pkg/storage"
	"github.com/pkg/errors"
)

func newTokenStore(db *sqlx.DB) *tokenStore {
	return &tokenStore{
		db: db,
	}
}

type tokenStore struct {
	db *sqlx.DB
}

type sqlDataToken struct {
	ID        int32       `db:"id"`
	Origin    string      `db:"origin"`
	ServiceID string      `db:"service_id"`
	Token     string      `db:"token"`
	ExpiresAt pq.NullTime `db:"expires_at"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

var sqlParamsToken = []string{
	"id",
	"origin",
	"service_id",
	"token",
	"expires_at",
	"created_at",
	"updated_at",
}

func (d *sqlDataToken) Scan(m *model.AccessToken) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.Origin = m.Origin
	d.ServiceID = m.ServiceID
	d.Token = m.Token
	d.ExpiresAt = pq.NullTime{Time: m.ExpiresAt, Valid: !m.ExpiresAt.IsZero()}
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataToken) Model() (*model.AccessToken, error) {
	m := &model.AccessToken{
		ID:        d.ID,
		Origin:    d.Origin,
		ServiceID: d.ServiceID,
		Token:     d.Token,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.ExpiresAt.Valid {
		m.ExpiresAt = d.ExpiresAt.Time
	}

	return m, nil
}

func (s *tokenStore) FindByOriginAndServiceID(origin, serviceID string) (*model.AccessToken, error) {
	m, err := findTokenByOriginAndServiceID(s.db, origin, serviceID)
	if err != nil {
		return nil, err
	}
	if m.Expired(time.Now()) {
		return nil, storage.ErrNotFound
	}
	return m, nil
}

func (s *tokenStore) Create(m *model.AccessToken) error {
	return createToken(s.db, m)
}

func (s *tokenStore) DeleteByOrigin(origin string) (int, error) {
	return deleteTokensByOrigin(s.db, origin)
}

func findTokenByOriginAndServiceID(db *sqlx.DB, origin, serviceID string) (*model.AccessToken, error) {
	d := sqlDataToken{}
	query := "SELECT * FROM access_tokens WHERE origin=$1 AND service_id=$2"
	if err := db.Get(&d, query, origin, serviceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find access token")
	}

	return d.Model()
}

func createToken(db *sqlx.DB, m *model.AccessToken) error {
	d := sqlDataToken{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert access token model to SQL data")
	}

	// Remove the id column because it's of SQL type serial
	sqlParamsWithoutID := make([]string, 0)
	for _, s := range sqlParamsToken {
		if s != "id" {
			sqlParamsWithoutID = append(sqlParamsWithoutID, s)
		}
	}

	// A new token for the same origin and service replaces the old one
	query := fmt.Sprintf(
		"INSERT INTO access_tokens (%s) VALUES (%s) "+
			"ON CONFLICT (origin, service_id) DO UPDATE SET token=EXCLUDED.token, "+
			"expires_at=EXCLUDED.expires_at, updated_at=EXCLUDED.updated_at RETURNING id",
		strings.Join(sqlParamsWithoutID, ", "),
		":"+strings.Join(sqlParamsWithoutID, ", :"),
	)
	rows, err := db.NamedQuery(query, d)
	if err != nil {
		return errors.Wrap(err, "failed to create access token")
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&m.ID); err != nil {
			return errors.Wrap(err, "failed to read access token id")
		}
	}

	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt

	return nil
}

func deleteTokensByOrigin(db *sqlx.DB, origin string) (int, error) {
	query := "DELETE FROM access_tokens WHERE origin=$1"
	res, err := db.Exec(query, origin)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete access tokens")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted access tokens")
	}
	return int(n), nil
}
