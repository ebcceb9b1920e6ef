package repository

import (
	"context"
	"errors"
	"fmt"

	"wequack/internal/domain"
	apperrors "wequack/pkg/errors"
	"wequack/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type GroupRepository interface {
	// Create stores the group together with group.Members in one transaction.
	// A second direct chat for the same pair fails with ErrConflict.
	Create(ctx context.Context, group *domain.Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error)
	FindDirectChatBetween(ctx context.Context, a, b uuid.UUID) (*domain.Group, error)
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Group, error)
}

type groupRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewGroupRepository(db *pgxpool.Pool, log logger.Logger) GroupRepository {
	return &groupRepository{db: db, log: log}
}

const groupColumns = `g.id, g.name, g.description, g.creator_id, g.is_direct_chat, g.created_at`

func scanGroup(row pgx.Row) (*domain.Group, error) {
	group := &domain.Group{}
	err := row.Scan(&group.ID, &group.Name, &group.Description, &group.CreatorID, &group.IsDirectChat, &group.CreatedAt)
	return group, err
}

func (r *groupRepository) Create(ctx context.Context, group *domain.Group) error {
	var directKey *string
	if group.IsDirectChat {
		if len(group.Members) != 2 {
			return fmt.Errorf("%w: direct chat needs exactly two members", apperrors.ErrValidation)
		}
		key := domain.DirectKey(group.Members[0], group.Members[1])
		directKey = &key
	}
	if len(group.Members) == 0 {
		return fmt.Errorf("%w: group needs at least one member", apperrors.ErrValidation)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO groups (id, name, description, creator_id, is_direct_chat, direct_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, group.ID, group.Name, group.Description, group.CreatorID, group.IsDirectChat, directKey,
	).Scan(&group.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.log.Warn("Direct chat already exists (unique violation)", "group_id", group.ID, "constraint", pgErr.ConstraintName)
			return fmt.Errorf("%w: direct chat already exists", apperrors.ErrConflict)
		}
		r.log.Error("Failed to create group", "error", err)
		return err
	}

	batch := &pgx.Batch{}
	for _, memberID := range group.Members {
		batch.Queue(`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, group.ID, memberID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		r.log.Error("Failed to add group members", "error", err, "group_id", group.ID)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit group", "error", err)
		return err
	}
	return nil
}

func (r *groupRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups g WHERE g.id = $1`

	group, err := scanGroup(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrGroupNotFound
		}
		r.log.Error("Failed to get group", "error", err)
		return nil, err
	}

	if group.Members, err = r.ListMembers(ctx, id); err != nil {
		return nil, err
	}
	return group, nil
}

// FindDirectChatBetween matches the unordered pair through the direct key,
// so a chat of a with someone else never satisfies the lookup.
func (r *groupRepository) FindDirectChatBetween(ctx context.Context, a, b uuid.UUID) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups g WHERE g.is_direct_chat AND g.direct_key = $1`

	group, err := scanGroup(r.db.QueryRow(ctx, query, domain.DirectKey(a, b)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrGroupNotFound
		}
		r.log.Error("Failed to find direct chat", "error", err)
		return nil, err
	}
	group.Members = []uuid.UUID{a, b}
	return group, nil
}

func (r *groupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("%w: group %s or user %s", apperrors.ErrNotFound, groupID, userID)
		}
		r.log.Error("Failed to add group member", "error", err, "group_id", groupID)
		return err
	}
	return nil
}

func (r *groupRepository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id
	`, groupID)
	if err != nil {
		r.log.Error("Failed to list group members", "error", err)
		return nil, err
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			r.log.Error("Failed to scan group member", "error", err)
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

func (r *groupRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)
	`, groupID, userID).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check group membership", "error", err)
		return false, err
	}
	return exists, nil
}

func (r *groupRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Group, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at, g.id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list groups", "error", err)
		return nil, err
	}
	defer rows.Close()

	var groups []*domain.Group
	byID := make(map[uuid.UUID]*domain.Group)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			r.log.Error("Failed to scan group", "error", err)
			return nil, err
		}
		groups = append(groups, group)
		byID[group.ID] = group
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return groups, nil
	}

	ids := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}

	memberRows, err := r.db.Query(ctx, `
		SELECT group_id, user_id FROM group_members
		WHERE group_id = ANY($1::uuid[])
		ORDER BY joined_at, user_id
	`, uuidStrings(ids))
	if err != nil {
		r.log.Error("Failed to list members of groups", "error", err)
		return nil, err
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var groupID, memberID uuid.UUID
		if err := memberRows.Scan(&groupID, &memberID); err != nil {
			r.log.Error("Failed to scan group member", "error", err)
			return nil, err
		}
		if g, ok := byID[groupID]; ok {
			g.Members = append(g.Members, memberID)
		}
	}
	return groups, memberRows.Err()
}
