package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/JackYouk/esol/pkg/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 51372025

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&ClassroomModel{},
			&WorkspaceModel{},
			&WorkspaceMemberModel{},
			&ContextModel{},
			&MessageModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'context_models'
					AND constraint_name = 'context_models_workspace_id_fkey'
				) THEN
					ALTER TABLE context_models
					ADD CONSTRAINT context_models_workspace_id_fkey
					FOREIGN KEY (workspace_id) REFERENCES workspace_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_context_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_context_id_fkey
					FOREIGN KEY (context_id) REFERENCES context_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'workspace_member_models'
					AND constraint_name = 'workspace_member_models_workspace_id_fkey'
				) THEN
					ALTER TABLE workspace_member_models
					ADD CONSTRAINT workspace_member_models_workspace_id_fkey
					FOREIGN KEY (workspace_id) REFERENCES workspace_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure workspace foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "role", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateWorkspace inserts the workspace, its members, its context and the
// first message in one transaction.
func (s *GormStore) CreateWorkspace(ctx context.Context, ws domain.Workspace, convo domain.Context, first domain.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if id := strings.TrimSpace(ws.ClassroomID); id != "" {
			classroom := ClassroomModel{ID: id, CreatedAt: time.Now().UTC()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&classroom).Error; err != nil {
				return fmt.Errorf("ensure classroom: %w", err)
			}
		}
		model := workspaceToModel(ws)
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		if len(ws.MemberIDs) > 0 {
			members := make([]WorkspaceMemberModel, 0, len(ws.MemberIDs))
			for _, id := range ws.MemberIDs {
				members = append(members, WorkspaceMemberModel{WorkspaceID: ws.ID, UserID: id})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error; err != nil {
				return fmt.Errorf("connect members: %w", err)
			}
		}
		contextModel := contextToModel(convo)
		if err := tx.Create(&contextModel).Error; err != nil {
			return fmt.Errorf("create context: %w", err)
		}
		msg := messageToModel(first)
		msg.ContextID = convo.ID
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("create first message: %w", err)
		}
		return nil
	})
}

// GetWorkspace retrieves a workspace with its member ids.
func (s *GormStore) GetWorkspace(ctx context.Context, id string) (domain.Workspace, bool, error) {
	db := s.db.WithContext(ctx)
	var model WorkspaceModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Workspace{}, false, nil
		}
		return domain.Workspace{}, false, err
	}
	var memberIDs []string
	if err := db.Model(&WorkspaceMemberModel{}).Where("workspace_id = ?", id).Pluck("user_id", &memberIDs).Error; err != nil {
		return domain.Workspace{}, false, err
	}
	ws := workspaceFromModel(model)
	ws.MemberIDs = memberIDs
	return ws, true, nil
}

// ListWorkspacesForUser returns workspaces created by or shared with userID, newest first.
func (s *GormStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]domain.Workspace, error) {
	var models []WorkspaceModel
	shared := s.db.Model(&WorkspaceMemberModel{}).Select("workspace_id").Where("user_id = ?", userID)
	if err := s.db.WithContext(ctx).
		Where("creator_id = ? OR id IN (?)", userID, shared).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Workspace, 0, len(models))
	for _, m := range models {
		res = append(res, workspaceFromModel(m))
	}
	return res, nil
}

// GetContextByWorkspace returns the conversation context of a workspace.
func (s *GormStore) GetContextByWorkspace(ctx context.Context, workspaceID string) (domain.Context, bool, error) {
	var model ContextModel
	if err := s.db.WithContext(ctx).First(&model, "workspace_id = ?", workspaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Context{}, false, nil
		}
		return domain.Context{}, false, err
	}
	return contextFromModel(model), true, nil
}

// UpdateNotes replaces the notes of a workspace.
func (s *GormStore) UpdateNotes(ctx context.Context, workspaceID string, notes string) error {
	res := s.db.WithContext(ctx).Model(&WorkspaceModel{}).
		Where("id = ?", workspaceID).
		Updates(map[string]any{
			"notes":      notes,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWorkspaceNotFound
	}
	return nil
}

// AppendMessage records a message and touches the owning workspace.
func (s *GormStore) AppendMessage(ctx context.Context, contextID string, msg domain.Message) (domain.Message, error) {
	model := messageToModel(msg)
	model.ContextID = contextID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var convo ContextModel
		if err := tx.First(&convo, "id = ?", contextID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrContextNotFound
			}
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&WorkspaceModel{}).
			Where("id = ?", convo.WorkspaceID).
			Update("updated_at", time.Now().UTC()).Error
	})
	if err != nil {
		return domain.Message{}, err
	}
	return messageFromModel(model), nil
}

// ListMessages returns every message of a context in insertion order.
func (s *GormStore) ListMessages(ctx context.Context, contextID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := messagesInOrder(s.db.WithContext(ctx), contextID).Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs, nil
}

// messagesInOrder replays by the bigserial seq alone. created_at is assigned
// by the app and can disagree with commit order across replicas.
func messagesInOrder(db *gorm.DB, contextID string) *gorm.DB {
	return db.Where("context_id = ?", contextID).Order("seq ASC")
}

type classroomMemberRow struct {
	UserModel
	WorkspaceCount int
	TotalMessages  int
	LastMessageAt  *time.Time
}

// ListClassroomMembers aggregates USER-message activity of every creator
// with a workspace in the classroom.
func (s *GormStore) ListClassroomMembers(ctx context.Context, classroomID string) ([]domain.ClassroomMember, error) {
	var rows []classroomMemberRow
	if err := s.db.WithContext(ctx).Raw(`
		SELECT u.*,
			COUNT(DISTINCT w.id) AS workspace_count,
			COUNT(m.id) AS total_messages,
			MAX(m.created_at) AS last_message_at
		FROM user_models u
		JOIN workspace_models w ON w.creator_id = u.id AND w.classroom_id = ?
		LEFT JOIN context_models c ON c.workspace_id = w.id
		LEFT JOIN message_models m ON m.context_id = c.id AND m.role = ?
		GROUP BY u.id
		ORDER BY u.created_at ASC
	`, classroomID, string(domain.MessageRoleUser)).Scan(&rows).Error; err != nil {
		return nil, err
	}
	members := make([]domain.ClassroomMember, 0, len(rows))
	for _, row := range rows {
		members = append(members, domain.ClassroomMember{
			User:           userFromModel(row.UserModel),
			WorkspaceCount: row.WorkspaceCount,
			TotalMessages:  row.TotalMessages,
			LastMessageAt:  row.LastMessageAt,
		})
	}
	return members, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	role := domain.UserRole(m.Role)
	if role == "" {
		role = domain.RoleStudent
	}
	return domain.User{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Role:      role,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func workspaceToModel(w domain.Workspace) WorkspaceModel {
	var classroomID *string
	if id := strings.TrimSpace(w.ClassroomID); id != "" {
		classroomID = &id
	}
	return WorkspaceModel{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		ActiveAI:    string(w.ActiveAI),
		PDFURL:      w.PDFURL,
		StorageKey:  w.StorageKey,
		Notes:       w.Notes,
		CreatorID:   w.CreatorID,
		ClassroomID: classroomID,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func workspaceFromModel(m WorkspaceModel) domain.Workspace {
	classroomID := ""
	if m.ClassroomID != nil {
		classroomID = *m.ClassroomID
	}
	return domain.Workspace{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		ActiveAI:    domain.AIModel(m.ActiveAI),
		PDFURL:      m.PDFURL,
		StorageKey:  m.StorageKey,
		Notes:       m.Notes,
		CreatorID:   m.CreatorID,
		ClassroomID: classroomID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func contextToModel(c domain.Context) ContextModel {
	model := ContextModel{
		ID:          c.ID,
		WorkspaceID: c.WorkspaceID,
		AIModel:     string(c.AIModel),
		CreatedAt:   c.CreatedAt,
	}
	if c.VectorIndex != "" {
		model.VectorIndex = []byte(c.VectorIndex)
	}
	return model
}

func contextFromModel(m ContextModel) domain.Context {
	return domain.Context{
		ID:          m.ID,
		WorkspaceID: m.WorkspaceID,
		AIModel:     domain.AIModel(m.AIModel),
		VectorIndex: string(m.VectorIndex),
		CreatedAt:   m.CreatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:        msg.ID,
		ContextID: msg.ContextID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		ContextID: m.ContextID,
		Role:      domain.MessageRole(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
