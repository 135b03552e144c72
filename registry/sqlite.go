package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stageflow/stageflow/logger"
)

// Registry is the SQLite-backed artifact store. Every operation runs in
// its own transaction, so individual writes are atomic but a pipeline run
// as a whole is not one transaction; a crash between stages leaves a
// consistent, resumable registry.
type Registry struct {
	db  *gorm.DB
	log *logger.Logger
}

// artifactRow is the database representation of an Artifact. JSON-valued
// attributes are held as serialized TEXT columns; inputs stays a plain
// JSON string so the cache-hit lookup can pattern-match inside it.
type artifactRow struct {
	ID             string    `gorm:"column:id;primaryKey"`
	Version        string    `gorm:"column:version;primaryKey"`
	ContentHash    string    `gorm:"column:content_hash"`
	Path           string    `gorm:"column:path"`
	Type           string    `gorm:"column:type"`
	Format         string    `gorm:"column:format"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	CreatedByStage string    `gorm:"column:created_by_stage"`
	CreatedByRun   string    `gorm:"column:created_by_run"`
	Inputs         string    `gorm:"column:inputs"`
	SchemaDef      string    `gorm:"column:schema_def"`
	Metadata       string    `gorm:"column:metadata"`
}

func (artifactRow) TableName() string { return "artifacts" }

// Open opens (and if necessary creates) the registry database at path and
// applies the embedded schema migrations.
func Open(path string, log *logger.Logger) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: opening %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		return nil, fmt.Errorf("registry: migrating %s: %w", path, err)
	}
	return &Registry{db: db, log: log.WithComponent("registry")}, nil
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Register upserts an artifact keyed by (id, version). Re-registering the
// same pair overwrites; the write is a single transaction.
func (r *Registry) Register(a *Artifact) error {
	row, err := toRow(a)
	if err != nil {
		return fmt.Errorf("registry: encoding artifact %s:%s: %w", a.ID, a.Version, err)
	}
	err = r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}, {Name: "version"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("registry: registering %s:%s: %w", a.ID, a.Version, err)
	}
	r.log.Debug("artifact registered", map[string]interface{}{
		logger.FieldArtifact: a.ID,
		logger.FieldVersion:  a.Version,
		"content_hash":       a.ContentHash,
	})
	return nil
}

// Get returns the artifact with the given id and version. An empty
// version resolves to the latest version. A miss returns (nil, nil).
func (r *Registry) Get(id, version string) (*Artifact, error) {
	if version == "" {
		return r.Latest(id)
	}
	var row artifactRow
	err := r.db.Where("id = ? AND version = ?", id, version).Take(&row).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: get %s:%s: %w", id, version, err)
	}
	return r.fromRow(&row), nil
}

// versionOrder sorts "v<n>" strings by their numeric suffix, so "v10"
// outranks "v9". Versions without a numeric suffix cast to 0 and sort
// last.
const versionOrder = "CAST(SUBSTR(version, 2) AS INTEGER) DESC"

// Latest returns the most recently created version for id, tie-broken by
// version descending. A miss returns (nil, nil).
func (r *Registry) Latest(id string) (*Artifact, error) {
	var row artifactRow
	err := r.db.Where("id = ?", id).
		Order("created_at DESC").Order(versionOrder).
		Take(&row).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: latest %s: %w", id, err)
	}
	return r.fromRow(&row), nil
}

// GetByHash finds an artifact by its content hash. A miss returns (nil, nil).
func (r *Registry) GetByHash(contentHash string) (*Artifact, error) {
	var row artifactRow
	err := r.db.Where("content_hash = ?", contentHash).Take(&row).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: get by hash: %w", err)
	}
	return r.fromRow(&row), nil
}

// GetByInputHash returns the most recent artifact whose inputs list
// contains the given hash. This is the cache-hit lookup: a matching
// artifact means some earlier run already executed a stage with an
// identical input state. A miss returns (nil, nil), not an error.
func (r *Registry) GetByInputHash(inputHash string) (*Artifact, error) {
	// Inputs is stored as a JSON array of strings; match the quoted
	// element inside the serialized text.
	pattern := `%"` + inputHash + `"%`
	var row artifactRow
	err := r.db.Where("inputs LIKE ?", pattern).
		Order("created_at DESC").Order(versionOrder).
		Take(&row).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: get by input hash: %w", err)
	}
	return r.fromRow(&row), nil
}

// NextVersion computes the next version string for id: "v<max+1>" over the
// existing versions, or "v1" when none exist. Malformed version strings
// are ignored rather than failing the scan.
func (r *Registry) NextVersion(id string) (string, error) {
	var versions []string
	err := r.db.Model(&artifactRow{}).Where("id = ?", id).
		Pluck("version", &versions).Error
	if err != nil {
		return "", fmt.Errorf("registry: scanning versions for %s: %w", id, err)
	}

	maxV := 0
	for _, v := range versions {
		if !strings.HasPrefix(v, "v") {
			continue
		}
		n, err := strconv.Atoi(v[1:])
		if err != nil || n < 0 {
			continue
		}
		if n > maxV {
			maxV = n
		}
	}
	return fmt.Sprintf("v%d", maxV+1), nil
}

func isNotFound(err error) bool {
	return err == gorm.ErrRecordNotFound
}

func toRow(a *Artifact) (*artifactRow, error) {
	inputs, err := json.Marshal(a.Inputs)
	if err != nil {
		return nil, err
	}
	schema, err := json.Marshal(a.Schema)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, err
	}
	return &artifactRow{
		ID:             a.ID,
		Version:        a.Version,
		ContentHash:    a.ContentHash,
		Path:           a.Path,
		Type:           a.Type,
		Format:         a.Format,
		CreatedAt:      a.CreatedAt,
		CreatedByStage: a.CreatedByStage,
		CreatedByRun:   a.CreatedByRun,
		Inputs:         string(inputs),
		SchemaDef:      string(schema),
		Metadata:       string(metadata),
	}, nil
}

// fromRow maps a database row back to the domain model. Corrupted JSON
// blobs degrade to marked-corrupt fallbacks instead of failing the read:
// losing one artifact's metadata must not block inspecting the rest.
func (r *Registry) fromRow(row *artifactRow) *Artifact {
	a := &Artifact{
		ID:             row.ID,
		Version:        row.Version,
		ContentHash:    row.ContentHash,
		Path:           row.Path,
		Type:           row.Type,
		Format:         row.Format,
		CreatedAt:      row.CreatedAt,
		CreatedByStage: row.CreatedByStage,
		CreatedByRun:   row.CreatedByRun,
	}

	corrupt := false
	if row.Inputs != "" {
		if err := json.Unmarshal([]byte(row.Inputs), &a.Inputs); err != nil {
			a.Inputs = nil
			corrupt = true
		}
	}
	if row.SchemaDef != "" && row.SchemaDef != "null" {
		if err := json.Unmarshal([]byte(row.SchemaDef), &a.Schema); err != nil {
			a.Schema = nil
			corrupt = true
		}
	}
	if row.Metadata != "" && row.Metadata != "null" {
		if err := json.Unmarshal([]byte(row.Metadata), &a.Metadata); err != nil {
			a.Metadata = nil
			corrupt = true
		}
	}
	if corrupt {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any)
		}
		a.Metadata["error"] = "metadata_corrupted"
		r.log.Warn("corrupted artifact metadata tolerated", map[string]interface{}{
			logger.FieldArtifact: row.ID,
			logger.FieldVersion:  row.Version,
		})
	}
	return a
}
