// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/domain/apikey"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/capability"
	"github.com/aims-io/aims/internal/app/domain/timefmt"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Every
// mutation inserts its audit row inside the same transaction as the row
// change.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, ex execer, e audit.Entry) (audit.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp == "" {
		e.Timestamp = timefmt.Now()
	}
	if e.DetailsJSON == "" {
		e.DetailsJSON = "{}"
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO audit_logs
			(id, timestamp, agent_id, action, resource_type, resource_id, details_json, ip_address, success)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Timestamp, e.AgentID, e.Action, e.ResourceType, e.ResourceID, e.DetailsJSON, e.IPAddress, e.Success)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("insert audit row: %w", err)
	}
	return e, nil
}

// mapConflict translates unique-constraint violations into client-facing
// conflict errors.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "agents_name_key":
			return errs.Conflict("Agent name already exists")
		case "capabilities_name_key":
			return errs.Conflict("Capability already exists")
		case "uq_agent_capability":
			return errs.Conflict("Capability already granted")
		default:
			return errs.Conflict("conflict")
		}
	}
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- AgentStore --------------------------------------------------------------

const agentColumns = `id, name, description, owner, status, agent_type, metadata_json,
	created_at, updated_at, suspended_at, revoked_at`

func scanAgent(row interface{ Scan(dest ...any) error }) (agent.Agent, error) {
	var (
		a                      agent.Agent
		status, agentType      string
		suspendedAt, revokedAt sql.NullString
	)
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Owner, &status, &agentType,
		&a.MetadataJSON, &a.CreatedAt, &a.UpdatedAt, &suspendedAt, &revokedAt)
	if err != nil {
		return agent.Agent{}, err
	}
	a.Status = agent.Status(status)
	a.AgentType = agent.Type(agentType)
	a.SuspendedAt = nullable(suspendedAt)
	a.RevokedAt = nullable(revokedAt)
	return a, nil
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func (s *Store) CreateAgent(ctx context.Context, a agent.Agent, entry audit.Entry) (agent.Agent, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents
				(id, name, description, owner, status, agent_type, metadata_json, created_at, updated_at, suspended_at, revoked_at)
			VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, a.ID, a.Name, a.Description, a.Owner, string(a.Status), string(a.AgentType),
			a.MetadataJSON, a.CreatedAt, a.UpdatedAt, a.SuspendedAt, a.RevokedAt)
		if err != nil {
			return mapConflict(err)
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return agent.Agent{}, err
	}
	return a, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (agent.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.Agent{}, errs.NotFound("Agent not found")
	}
	return a, err
}

func (s *Store) GetAgentByName(ctx context.Context, name string) (agent.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE name = $1`, name)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.Agent{}, errs.NotFound("Agent not found")
	}
	return a, err
}

func (s *Store) ListAgents(ctx context.Context, f storage.AgentFilter) ([]agent.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Owner != "" {
		args = append(args, f.Owner)
		query += fmt.Sprintf(" AND owner = $%d", len(args))
	}
	if f.AgentType != "" {
		args = append(args, f.AgentType)
		query += fmt.Sprintf(" AND agent_type = $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) UpdateAgent(ctx context.Context, a agent.Agent, entry audit.Entry) (agent.Agent, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE agents
			SET description = $2, owner = $3, status = $4, agent_type = $5, metadata_json = $6,
				updated_at = $7, suspended_at = $8, revoked_at = $9
			WHERE id = $1
		`, a.ID, a.Description, a.Owner, string(a.Status), string(a.AgentType),
			a.MetadataJSON, a.UpdatedAt, a.SuspendedAt, a.RevokedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errs.NotFound("Agent not found")
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return agent.Agent{}, err
	}
	return a, nil
}

func (s *Store) RevokeAgentCascade(ctx context.Context, a agent.Agent, now string, entry audit.Entry) (agent.Agent, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE agents
			SET status = $2, revoked_at = $3, updated_at = $4
			WHERE id = $1
		`, a.ID, string(a.Status), a.RevokedAt, a.UpdatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errs.NotFound("Agent not found")
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE api_keys
			SET status = 'revoked', revoked_at = $2
			WHERE agent_id = $1 AND status = 'active'
		`, a.ID, now)
		if err != nil {
			return err
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return agent.Agent{}, err
	}
	return a, nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string, entry audit.Entry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errs.NotFound("Agent not found")
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
}

// --- APIKeyStore -------------------------------------------------------------

const keyColumns = `id, agent_id, key_prefix, key_hash, name, status,
	expires_at, created_at, rotated_at, revoked_at, last_used_at`

func scanKey(row interface{ Scan(dest ...any) error }) (apikey.Key, error) {
	var (
		k                                          apikey.Key
		status                                     string
		expiresAt, rotatedAt, revokedAt, lastUsed  sql.NullString
	)
	err := row.Scan(&k.ID, &k.AgentID, &k.KeyPrefix, &k.KeyHash, &k.Name, &status,
		&expiresAt, &k.CreatedAt, &rotatedAt, &revokedAt, &lastUsed)
	if err != nil {
		return apikey.Key{}, err
	}
	k.Status = apikey.Status(status)
	k.ExpiresAt = nullable(expiresAt)
	k.RotatedAt = nullable(rotatedAt)
	k.RevokedAt = nullable(revokedAt)
	k.LastUsedAt = nullable(lastUsed)
	return k, nil
}

func insertKey(ctx context.Context, ex execer, k apikey.Key) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO api_keys
			(id, agent_id, key_prefix, key_hash, name, status, expires_at, created_at, rotated_at, revoked_at, last_used_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, k.ID, k.AgentID, k.KeyPrefix, k.KeyHash, k.Name, string(k.Status),
		k.ExpiresAt, k.CreatedAt, k.RotatedAt, k.RevokedAt, k.LastUsedAt)
	return err
}

func (s *Store) CreateKey(ctx context.Context, k apikey.Key, entry audit.Entry) (apikey.Key, error) {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertKey(ctx, tx, k); err != nil {
			return err
		}
		_, err := insertAudit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return apikey.Key{}, err
	}
	return k, nil
}

func (s *Store) GetKey(ctx context.Context, id string) (apikey.Key, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, id)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return apikey.Key{}, errs.NotFound("API key not found")
	}
	return k, err
}

func (s *Store) GetKeyByHash(ctx context.Context, hash string) (apikey.Key, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return apikey.Key{}, errs.NotFound("API key not found")
	}
	return k, err
}

func (s *Store) ListKeys(ctx context.Context, agentID string) ([]apikey.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys WHERE agent_id = $1 ORDER BY created_at
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []apikey.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, k)
	}
	return result, rows.Err()
}

func (s *Store) UpdateKey(ctx context.Context, k apikey.Key, entry audit.Entry) (apikey.Key, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE api_keys
			SET name = $2, status = $3, expires_at = $4, rotated_at = $5, revoked_at = $6, last_used_at = $7
			WHERE id = $1
		`, k.ID, k.Name, string(k.Status), k.ExpiresAt, k.RotatedAt, k.RevokedAt, k.LastUsedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errs.NotFound("API key not found")
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return apikey.Key{}, err
	}
	return k, nil
}

func (s *Store) RotateKey(ctx context.Context, old apikey.Key, replacement apikey.Key, entry audit.Entry) (apikey.Key, error) {
	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE api_keys
			SET status = $2, rotated_at = $3
			WHERE id = $1
		`, old.ID, string(old.Status), old.RotatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errs.NotFound("API key not found")
		}
		if err := insertKey(ctx, tx, replacement); err != nil {
			return err
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return apikey.Key{}, err
	}
	return replacement, nil
}

func (s *Store) TouchKeyLastUsed(ctx context.Context, id string, when string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE id = $1
	`, id, when)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errs.NotFound("API key not found")
	}
	return nil
}

// --- CapabilityStore ---------------------------------------------------------

func (s *Store) CreateCapability(ctx context.Context, c capability.Capability, entry audit.Entry) (capability.Capability, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO capabilities (id, name, description, created_at)
			VALUES ($1, $2, $3, $4)
		`, c.ID, c.Name, c.Description, c.CreatedAt)
		if err != nil {
			return mapConflict(err)
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return capability.Capability{}, err
	}
	return c, nil
}

func (s *Store) GetCapability(ctx context.Context, id string) (capability.Capability, error) {
	var c capability.Capability
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at FROM capabilities WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return capability.Capability{}, errs.NotFound("Capability not found")
	}
	return c, err
}

func (s *Store) GetCapabilityByName(ctx context.Context, name string) (capability.Capability, error) {
	var c capability.Capability
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at FROM capabilities WHERE name = $1
	`, name).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return capability.Capability{}, errs.NotFound("Capability not found")
	}
	return c, err
}

func (s *Store) ListCapabilities(ctx context.Context) ([]capability.Capability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at FROM capabilities ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []capability.Capability
	for rows.Next() {
		var c capability.Capability
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) GrantCapability(ctx context.Context, g capability.Grant, entry audit.Entry) (capability.Grant, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_capabilities (id, agent_id, capability_id, granted_at, granted_by)
			VALUES ($1, $2, $3, $4, $5)
		`, g.ID, g.AgentID, g.CapabilityID, g.GrantedAt, g.GrantedBy)
		if err != nil {
			return mapConflict(err)
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return capability.Grant{}, err
	}
	return g, nil
}

func (s *Store) GetGrant(ctx context.Context, agentID, capabilityID string) (capability.Grant, error) {
	var (
		g         capability.Grant
		grantedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, capability_id, granted_at, granted_by
		FROM agent_capabilities
		WHERE agent_id = $1 AND capability_id = $2
	`, agentID, capabilityID).Scan(&g.ID, &g.AgentID, &g.CapabilityID, &g.GrantedAt, &grantedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return capability.Grant{}, errs.NotFound("Capability grant not found")
	}
	g.GrantedBy = nullable(grantedBy)
	return g, err
}

func (s *Store) RevokeGrant(ctx context.Context, agentID, capabilityID string, entry audit.Entry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM agent_capabilities WHERE agent_id = $1 AND capability_id = $2
		`, agentID, capabilityID)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errs.NotFound("Capability grant not found")
		}
		_, err = insertAudit(ctx, tx, entry)
		return err
	})
}

func (s *Store) ListAgentCapabilityNames(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name
		FROM agent_capabilities ac
		JOIN capabilities c ON c.id = ac.capability_id
		WHERE ac.agent_id = $1
		ORDER BY c.name
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// --- AuditStore --------------------------------------------------------------

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	return insertAudit(ctx, s.db, e)
}

func (s *Store) QueryAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query := `
		SELECT id, timestamp, agent_id, action, resource_type, resource_id, details_json, ip_address, success
		FROM audit_logs WHERE 1=1`
	var args []any
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		query += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}
	if f.StartDate != "" {
		args = append(args, f.StartDate)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if f.EndDate != "" {
		args = append(args, f.EndDate)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var (
			e                                  audit.Entry
			agentID, resourceType, resourceID  sql.NullString
			ipAddress                          sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &agentID, &e.Action, &resourceType,
			&resourceID, &e.DetailsJSON, &ipAddress, &e.Success); err != nil {
			return nil, err
		}
		e.AgentID = nullable(agentID)
		e.ResourceType = nullable(resourceType)
		e.ResourceID = nullable(resourceID)
		e.IPAddress = nullable(ipAddress)
		result = append(result, e)
	}
	return result, rows.Err()
}
