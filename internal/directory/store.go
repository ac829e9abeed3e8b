// Package directory manages campaign records and membership: the PostgreSQL
// store behind the campaign API, and an HTTP client with a local-cache
// degrade path for when the server is unreachable. The directory supplies
// the campaign ids that realtime sessions attach to; it does not own any
// session state.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Roles a campaign member can hold, matching the members table CHECK
// constraint.
const (
	RoleOwner  = "owner"
	RolePlayer = "player"
)

// ErrNotFound is returned when a campaign does not exist.
var ErrNotFound = errors.New("directory: campaign not found")

// Campaign is one campaign record.
type Campaign struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Member is one membership record.
type Member struct {
	CampaignID string `json:"campaignId"`
	UserID     string `json:"userId"`
	Role       string `json:"role"`
}

// CampaignUpdate carries a partial update; nil fields are left unchanged.
type CampaignUpdate struct {
	Name        *string
	Description *string
	Avatar      *string
}

// Store manages campaigns and members in PostgreSQL.
type Store struct {
	db      *sql.DB
	entropy *ulid.MonotonicEntropy
}

// NewStore creates a store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Create inserts a campaign and enrolls the creator as its owner.
func (s *Store) Create(ctx context.Context, name, description, avatar, ownerID string) (*Campaign, error) {
	if name == "" {
		return nil, fmt.Errorf("directory: campaign name is required")
	}

	c := &Campaign{
		ID:          ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String(),
		Name:        name,
		Description: description,
		Avatar:      avatar,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: begin create: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, description, avatar) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Description, c.Avatar,
	); err != nil {
		return nil, fmt.Errorf("directory: insert campaign: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO campaign_members (campaign_id, user_id, role) VALUES ($1, $2, $3)`,
		c.ID, ownerID, RoleOwner,
	); err != nil {
		return nil, fmt.Errorf("directory: insert owner: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("directory: commit create: %w", err)
	}
	return c, nil
}

// Get retrieves one campaign.
func (s *Store) Get(ctx context.Context, id string) (*Campaign, error) {
	var c Campaign
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description, ''), COALESCE(avatar, '')
		   FROM campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get campaign: %w", err)
	}
	return &c, nil
}

// List returns all campaigns.
func (s *Store) List(ctx context.Context) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), COALESCE(avatar, '')
		   FROM campaigns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("directory: list campaigns: %w", err)
	}
	defer rows.Close()
	return scanCampaigns(rows)
}

// ListForUser returns the campaigns the user is a member of.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, COALESCE(c.description, ''), COALESCE(c.avatar, '')
		   FROM campaigns c
		   JOIN campaign_members m ON m.campaign_id = c.id
		  WHERE m.user_id = $1 ORDER BY c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("directory: list campaigns for user: %w", err)
	}
	defer rows.Close()
	return scanCampaigns(rows)
}

// Update applies a partial update and returns the fresh row.
func (s *Store) Update(ctx context.Context, id string, upd CampaignUpdate) (*Campaign, error) {
	set := ""
	args := []interface{}{}
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", col, len(args))
	}
	add("name", upd.Name)
	add("description", upd.Description)
	add("avatar", upd.Avatar)
	if set == "" {
		return nil, fmt.Errorf("directory: no fields to update")
	}
	if upd.Name != nil && *upd.Name == "" {
		return nil, fmt.Errorf("directory: campaign name cannot be empty")
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE campaigns SET %s WHERE id = $%d`, set, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("directory: update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Join enrolls a user in a campaign. Re-joining is a no-op.
func (s *Store) Join(ctx context.Context, campaignID, userID, role string) error {
	if role == "" {
		role = RolePlayer
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaign_members (campaign_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (campaign_id, user_id) DO NOTHING`,
		campaignID, userID, role)
	if err != nil {
		return fmt.Errorf("directory: join campaign: %w", err)
	}
	return nil
}

// Members lists a campaign's membership.
func (s *Store) Members(ctx context.Context, campaignID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, user_id, role FROM campaign_members
		  WHERE campaign_id = $1 ORDER BY user_id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("directory: list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.CampaignID, &m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("directory: scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// IsMember reports whether the user belongs to the campaign.
func (s *Store) IsMember(ctx context.Context, campaignID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM campaign_members WHERE campaign_id = $1 AND user_id = $2`,
		campaignID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("directory: membership check: %w", err)
	}
	return true, nil
}

func scanCampaigns(rows *sql.Rows) ([]Campaign, error) {
	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Avatar); err != nil {
			return nil, fmt.Errorf("directory: scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
