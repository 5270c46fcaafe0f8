package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ugc-maroc-backend/internal/models"
	"ugc-maroc-backend/internal/store"
)

// Compile-time check to ensure PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateUser inserts a new user record into the database.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, display_name, role, hashed_password)
		VALUES ($1, $2, $3, $4, $5)`
	// created_at and updated_at have database defaults

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.Role,
		user.HashedPassword,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			log.Printf("ERROR [PostgresStore] CreateUser: PostgreSQL error for email %s: Code=%s, Message=%s", user.Email, pgErr.Code, pgErr.Message)
		}
		return fmt.Errorf("database error creating user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by their email address.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, role, hashed_password, created_at, updated_at
		FROM users
		WHERE email = $1`

	user := &models.User{}
	err := s.db.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, display_name, role, hashed_password, created_at, updated_at
		FROM users
		WHERE id = $1`

	user := &models.User{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching user by id: %w", err)
	}
	return user, nil
}

// CreateConversation inserts a conversation and its participant rows in one
// transaction. The conversation store is the system of record here, so any
// failure is surfaced to the caller.
func (s *PostgresStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning conversation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertConversation = `
		INSERT INTO conversations (id, subject, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, subject, created_by, created_at, updated_at`

	conv := &models.Conversation{}
	err = tx.QueryRow(ctx, insertConversation, arg.ID, arg.Subject, arg.CreatedBy).Scan(
		&conv.ID,
		&conv.Subject,
		&conv.CreatedBy,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("database error creating conversation: %w", err)
	}

	const insertParticipant = `
		INSERT INTO conversation_participants (conversation_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`

	for _, userID := range arg.Participants {
		if _, err := tx.Exec(ctx, insertParticipant, conv.ID, userID); err != nil {
			return nil, fmt.Errorf("database error adding participant %s: %w", userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing conversation transaction: %w", err)
	}
	return conv, nil
}

// GetConversationByID retrieves a single conversation.
func (s *PostgresStore) GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id, subject, created_by, created_at, updated_at
		FROM conversations
		WHERE id = $1`

	conv := &models.Conversation{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.Subject,
		&conv.CreatedBy,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching conversation: %w", err)
	}
	return conv, nil
}

// ListConversationsByUser returns the conversations a user participates in,
// most recently updated first, each with its latest message for the inbox
// preview.
func (s *PostgresStore) ListConversationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]store.ConversationListing, error) {
	query := `
		SELECT c.id, c.subject, c.created_by, c.created_at, c.updated_at,
		       m.id, m.conversation_id, m.author_id, m.content, m.kind, m.created_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		LEFT JOIN LATERAL (
			SELECT id, conversation_id, author_id, content, kind, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC
			LIMIT 1
		) m ON true
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("database error listing conversations: %w", err)
	}
	defer rows.Close()

	var listings []store.ConversationListing
	for rows.Next() {
		var (
			listing   store.ConversationListing
			msgID     *uuid.UUID
			msgConvID *uuid.UUID
			msgAuthor *uuid.UUID
			content   *string
			kind      *models.MessageKind
			createdAt *time.Time
		)
		err := rows.Scan(
			&listing.Conversation.ID,
			&listing.Conversation.Subject,
			&listing.Conversation.CreatedBy,
			&listing.Conversation.CreatedAt,
			&listing.Conversation.UpdatedAt,
			&msgID, &msgConvID, &msgAuthor, &content, &kind, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("database error scanning conversation row: %w", err)
		}
		if msgID != nil {
			listing.LastMessage = &models.MessageRecord{
				ID:             *msgID,
				ConversationID: *msgConvID,
				AuthorID:       *msgAuthor,
				Content:        *content,
				Kind:           *kind,
				CreatedAt:      *createdAt,
			}
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating conversations: %w", err)
	}
	return listings, nil
}

// ListParticipants returns the user ids participating in a conversation.
func (s *PostgresStore) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at`

	rows, err := s.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("database error listing participants: %w", err)
	}
	defer rows.Close()

	var participants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("database error scanning participant: %w", err)
		}
		participants = append(participants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating participants: %w", err)
	}
	return participants, nil
}

// IsParticipant reports whether userID belongs to the conversation.
func (s *PostgresStore) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)`

	var exists bool
	if err := s.db.QueryRow(ctx, query, conversationID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("database error checking participant: %w", err)
	}
	return exists, nil
}

// InsertMessage persists the durable copy of a message and bumps the
// conversation's updated_at so inbox ordering follows activity.
func (s *PostgresStore) InsertMessage(ctx context.Context, arg store.InsertMessageParams) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning message transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertMessage = `
		INSERT INTO messages (id, conversation_id, author_id, content, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = tx.Exec(ctx, insertMessage,
		arg.ID,
		arg.ConversationID,
		arg.AuthorID,
		arg.Content,
		arg.Kind,
		arg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("database error inserting message: %w", err)
	}

	const touchConversation = `
		UPDATE conversations SET updated_at = NOW() WHERE id = $1`

	if _, err := tx.Exec(ctx, touchConversation, arg.ConversationID); err != nil {
		return fmt.Errorf("database error touching conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing message transaction: %w", err)
	}
	return nil
}

// ListRecentMessages returns the newest limit messages, oldest first, to seed
// a conversation actor's in-memory log.
func (s *PostgresStore) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.MessageRecord, error) {
	query := `
		SELECT id, conversation_id, author_id, content, kind, created_at
		FROM (
			SELECT id, conversation_id, author_id, content, kind, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("database error listing messages: %w", err)
	}
	defer rows.Close()

	var records []models.MessageRecord
	for rows.Next() {
		var rec models.MessageRecord
		err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.AuthorID, &rec.Content, &rec.Kind, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("database error scanning message: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating messages: %w", err)
	}
	return records, nil
}

// MarkRead updates the participant's read position. A nil messageID marks
// everything in the conversation as read. Returns store.ErrNotFound when the
// user is not a participant.
func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, messageID *uuid.UUID) error {
	query := `
		UPDATE conversation_participants
		SET last_read_message_id = $3, last_read_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2`

	tag, err := s.db.Exec(ctx, query, conversationID, userID, messageID)
	if err != nil {
		return fmt.Errorf("database error marking read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
