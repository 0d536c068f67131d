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

func newPluginStore(db *sqlx.DB) *pluginStore {
	return &pluginStore{
		db: db,
	}
}

type pluginStore struct {
	db *sqlx.DB
}

type sqlDataPlugin struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	ComponentAddress string    `db:"component_address"`
	SDKVersion       string    `db:"sdk_version"`
	ConnectionType   string    `db:"connection_type"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

var sqlParamsPlugin = []string{
	"id",
	"name",
	"component_address",
	"sdk_version",
	"connection_type",
	"created_at",
	"updated_at",
}

func (d *sqlDataPlugin) Scan(m *model.Plugin) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.Name = m.Name
	d.ComponentAddress = m.ComponentAddress
	d.SDKVersion = m.SDKVersion
	d.ConnectionType = string(m.ConnectionType)
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataPlugin) Model() (*model.Plugin, error) {
	m := &model.Plugin{
		ID:               d.ID,
		Name:             d.Name,
		ComponentAddress: d.ComponentAddress,
		SDKVersion:       d.SDKVersion,
		ConnectionType:   model.ConnectionType(d.ConnectionType),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}

	return m, nil
}

func (s *pluginStore) FetchAll() (map[string]model.Plugin, error) {
	return fetchAllPlugins(s.db)
}

func (s *pluginStore) FindByID(id string) (*model.Plugin, error) {
	return findPluginByID(s.db, id)
}

func (s *pluginStore) Create(m *model.Plugin) error {
	return createPlugin(s.db, m)
}

func (s *pluginStore) Delete(id string) error {
	return deletePlugin(s.db, id)
}

func fetchAllPlugins(db *sqlx.DB) (map[string]model.Plugin, error) {
	rows := make([]sqlDataPlugin, 0)
	models := make(map[string]model.Plugin)

	query := "SELECT * FROM plugins"
	if err := db.Select(&rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to fetch all plugins")
	}

	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to plugin model")
		}

		models[d.ID] = *m
	}

	return models, nil
}

func findPluginByID(db *sqlx.DB, id string) (*model.Plugin, error) {
	d := sqlDataPlugin{}
	query := "SELECT * FROM plugins WHERE id=$1"
	if err := db.Get(&d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find plugin")
	}

	return d.Model()
}

func createPlugin(db *sqlx.DB, m *model.Plugin) error {
	if m.SDKVersion == "" {
		m.SDKVersion = "1.0.0"
	}
	if m.ConnectionType == "" {
		m.ConnectionType = model.ConnectionTypeBroadcast
	}

	d := sqlDataPlugin{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert plugin model to SQL data")
	}

	// The plugin ID is given by the caller, so all columns are inserted
	query := fmt.Sprintf(
		"INSERT INTO plugins (%s) VALUES (%s)",
		strings.Join(sqlParamsPlugin, ", "),
		":"+strings.Join(sqlParamsPlugin, ", :"),
	)
	if _, err := db.NamedExec(query, d); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return storage.ErrExists
		}
		return errors.Wrap(err, "failed to create plugin")
	}

	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt

	return nil
}

func deletePlugin(db *sqlx.DB, id string) error {
	query := "DELETE FROM plugins WHERE id=$1"
	res, err := db.Exec(query, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete plugin")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}
