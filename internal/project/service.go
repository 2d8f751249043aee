package project

import (
	"context"
	defError "errors"
	"fmt"
	"os"
	"time"

	"collaborative-ide/internal/errors"
	"collaborative-ide/internal/storage"
	"collaborative-ide/internal/user"
	"collaborative-ide/internal/worker"
	"collaborative-ide/internal/workspace"
	"collaborative-ide/redis"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Service interface {
	CanAccess(ctx context.Context, userID, projectID string) (bool, error)
	CanWrite(ctx context.Context, userID, projectID string) (bool, error)

	CreateProject(ctx context.Context, userID string, input NewProject) (*ProjectResponse, error)
	ListProjects(ctx context.Context, userID string, page, pageSize int) (*PaginatedProjects, error)
	GetProject(ctx context.Context, userID, projectID string) (*ProjectDetail, error)
	UpdateProject(ctx context.Context, userID, projectID string, change ProjectChange) (*ProjectResponse, error)
	DeleteProject(ctx context.Context, userID, projectID string) error

	ListFiles(ctx context.Context, userID, projectID string) ([]FileSummary, error)
	CreateFile(ctx context.Context, userID, projectID string, input NewFile) (*FileResponse, error)
	CreateFiles(ctx context.Context, userID, projectID string, inputs []NewFile) (*FileBatchResult, error)
	GetFile(ctx context.Context, userID, projectID, fileID string) (*FileResponse, error)
	UpdateFile(ctx context.Context, userID, projectID, fileID string, change FileChange) (*FileResponse, error)
	DeleteFile(ctx context.Context, userID, projectID, fileID string) error

	ListFolders(ctx context.Context, userID, projectID string) ([]FolderResponse, error)
	CreateFolder(ctx context.Context, userID, projectID string, input NewFolder) (*FolderResponse, error)
	CreateFolders(ctx context.Context, userID, projectID string, paths []string) (*FolderBatchResult, error)

	ListCollaborators(ctx context.Context, userID, projectID string) ([]CollaboratorResponse, error)
	AddCollaborator(ctx context.Context, userID, projectID, targetID string, role Role) (*CollaboratorResponse, error)
	ChangeCollaboratorRole(ctx context.Context, userID, projectID, targetID string, role Role) (*CollaboratorResponse, error)
	RemoveCollaborator(ctx context.Context, userID, projectID, targetID string) error
}

// Submitter runs background jobs.
type Submitter interface {
	Submit(t worker.Task) bool
}

// UserLookup resolves collaborator accounts.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*user.User, error)
}

// Revoker drops live relay sessions once access is withdrawn. An empty
// userID means every session on the project.
type Revoker interface {
	Revoke(projectID, userID string) int
}

type Options struct {
	WorkspaceRoot string
	// Threshold is the content size above which files go to object storage.
	Threshold int64
	AccessTTL time.Duration
	ListTTL   time.Duration
}

type DefaultService struct {
	repository ProjectRepository
	users      UserLookup
	cache      *redis.Cache
	blobs      storage.BlobStore
	jobs       Submitter
	revoker    Revoker
	opts       Options
	log        zerolog.Logger
}

// NewService builds the project service. blobs may be nil, in which case
// every file is kept inline. revoker may be nil when no relay runs.
func NewService(
	repository ProjectRepository,
	users UserLookup,
	cache *redis.Cache,
	blobs storage.BlobStore,
	jobs Submitter,
	revoker Revoker,
	opts Options,
	log zerolog.Logger,
) Service {
	return &DefaultService{
		repository: repository,
		users:      users,
		cache:      cache,
		blobs:      blobs,
		jobs:       jobs,
		revoker:    revoker,
		opts:       opts,
		log:        log.With().Str("component", "project").Logger(),
	}
}

func projectVersionKey(projectID string) string {
	return fmt.Sprintf("project:%s:version", projectID)
}

func userProjectsVersionKey(userID string) string {
	return fmt.Sprintf("user:%s:projects:version", userID)
}

// Access decisions are keyed by the project's version, so any change to
// its visibility or members retires every cached decision at once.
func (s *DefaultService) accessKey(ctx context.Context, userID, projectID string) string {
	v := s.cache.GetVersion(ctx, projectVersionKey(projectID))
	return fmt.Sprintf("access:%s:%s:v%d", userID, projectID, v)
}

func (s *DefaultService) bump(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.cache.IncrementVersion(ctx, key); err != nil {
			s.log.Debug().Err(err).Str("key", key).Msg("cache version bump")
		}
	}
}

// CanAccess allows the owner, anyone with an access row, and everyone for
// public projects. Decisions are cached briefly.
func (s *DefaultService) CanAccess(ctx context.Context, userID, projectID string) (bool, error) {
	key := s.accessKey(ctx, userID, projectID)
	var allowed bool
	if found, err := s.cache.Get(ctx, key, &allowed); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("access cache read")
	} else if found {
		return allowed, nil
	}

	project, err := s.repository.FindProject(ctx, projectID)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	allowed = project.OwnerID == userID || project.IsPublic
	if !allowed {
		role, err := s.roleOf(ctx, project, userID)
		if err != nil {
			return false, err
		}
		allowed = role != ""
	}

	if err := s.cache.Set(ctx, key, allowed, s.opts.AccessTTL); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("access cache write")
	}
	return allowed, nil
}

func (s *DefaultService) CanWrite(ctx context.Context, userID, projectID string) (bool, error) {
	project, err := s.repository.FindProject(ctx, projectID)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	role, err := s.roleOf(ctx, project, userID)
	if err != nil {
		return false, err
	}
	return role.CanWrite(), nil
}

// roleOf returns the user's role on project, or "" for non-members.
func (s *DefaultService) roleOf(ctx context.Context, project *Project, userID string) (Role, error) {
	if project.OwnerID == userID {
		return RoleOwner, nil
	}
	access, err := s.repository.FindAccess(ctx, project.ID, userID)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return access.Role, nil
}

type ProjectResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	Template    string    `json:"template,omitempty"`
	OwnerID     string    `json:"owner_id"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProjectResponse(p *Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Language:    p.Language,
		Template:    p.Template,
		OwnerID:     p.OwnerID,
		IsPublic:    p.IsPublic,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type PaginatedProjects struct {
	Data []ProjectResponse `json:"data"`
	Meta ProjectsMeta      `json:"meta"`
}

// ProjectDetail is a project with its tree.
type ProjectDetail struct {
	ProjectResponse
	Role    Role             `json:"role,omitempty"`
	Files   []FileSummary    `json:"files"`
	Folders []FolderResponse `json:"folders"`
}

type NewProject struct {
	Name        string
	Description string
	Language    string
	Template    string
	IsPublic    bool
}

// ProjectChange is a partial update; nil fields are left alone.
type ProjectChange struct {
	Name        *string
	Description *string
	Language    *string
	IsPublic    *bool
}

func (s *DefaultService) CreateProject(ctx context.Context, userID string, input NewProject) (*ProjectResponse, error) {
	project := &Project{
		Name:        input.Name,
		Description: input.Description,
		Language:    input.Language,
		Template:    input.Template,
		OwnerID:     userID,
		IsPublic:    input.IsPublic,
	}
	if project.Language == "" {
		project.Language = "javascript"
	}
	if err := s.repository.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	if _, err := workspace.Ensure(s.opts.WorkspaceRoot, project.ID); err != nil {
		s.log.Warn().Err(err).Str("project", project.ID).Msg("create workspace dir")
	}
	s.bump(ctx, userProjectsVersionKey(userID))

	resp := toProjectResponse(project)
	return &resp, nil
}

// ListProjects returns the projects the user owns or collaborates on.
func (s *DefaultService) ListProjects(ctx context.Context, userID string, page, pageSize int) (*PaginatedProjects, error) {
	v := s.cache.GetVersion(ctx, userProjectsVersionKey(userID))
	cacheKey := fmt.Sprintf("projects:u:%s:v:%d:p:%d:ps:%d", userID, v, page, pageSize)

	var result PaginatedProjects
	if found, _ := s.cache.Get(ctx, cacheKey, &result); found {
		return &result, nil
	}

	projects, meta, err := s.repository.ListVisible(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}

	result = PaginatedProjects{Data: make([]ProjectResponse, 0, len(projects)), Meta: meta}
	for i := range projects {
		result.Data = append(result.Data, toProjectResponse(&projects[i]))
	}

	if err := s.cache.Set(ctx, cacheKey, result, s.opts.ListTTL); err != nil {
		s.log.Debug().Err(err).Str("key", cacheKey).Msg("project list cache write")
	}
	return &result, nil
}

func (s *DefaultService) GetProject(ctx context.Context, userID, projectID string) (*ProjectDetail, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	role, err := s.roleOf(ctx, project, userID)
	if err != nil {
		return nil, err
	}
	if role == "" && !project.IsPublic {
		return nil, errors.Forbidden("No access to this project", nil)
	}

	files, err := s.repository.ListFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	folders, err := s.repository.ListFolders(ctx, projectID)
	if err != nil {
		return nil, err
	}

	detail := &ProjectDetail{
		ProjectResponse: toProjectResponse(project),
		Role:            role,
		Files:           make([]FileSummary, 0, len(files)),
		Folders:         make([]FolderResponse, 0, len(folders)),
	}
	for i := range files {
		detail.Files = append(detail.Files, toFileSummary(&files[i]))
	}
	for i := range folders {
		detail.Folders = append(detail.Folders, toFolderResponse(&folders[i]))
	}
	return detail, nil
}

func (s *DefaultService) UpdateProject(ctx context.Context, userID, projectID string, change ProjectChange) (*ProjectResponse, error) {
	project, err := s.requireOwner(ctx, userID, projectID, "Only owner can update project")
	if err != nil {
		return nil, err
	}

	if change.Name != nil {
		project.Name = *change.Name
	}
	if change.Description != nil {
		project.Description = *change.Description
	}
	if change.Language != nil {
		project.Language = *change.Language
	}
	if change.IsPublic != nil {
		project.IsPublic = *change.IsPublic
	}

	if err := s.repository.SaveProject(ctx, project); err != nil {
		return nil, err
	}
	s.invalidateProject(ctx, project)

	resp := toProjectResponse(project)
	return &resp, nil
}

// DeleteProject removes the project rows, its workspace directory and any
// offloaded file bodies, then disconnects everyone still in its rooms.
func (s *DefaultService) DeleteProject(ctx context.Context, userID, projectID string) error {
	project, err := s.requireOwner(ctx, userID, projectID, "Only owner can delete project")
	if err != nil {
		return err
	}

	files, err := s.repository.ListFiles(ctx, projectID)
	if err != nil {
		return err
	}
	// Members must be read before their access rows go away.
	s.invalidateProject(ctx, project)

	if err := s.repository.DeleteProject(ctx, project); err != nil {
		return err
	}

	for i := range files {
		if files[i].StorageURL != nil {
			s.deleteBlobLater(storage.ObjectKey(projectID, files[i].Path))
		}
	}
	if dir, err := workspace.Dir(s.opts.WorkspaceRoot, projectID); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn().Err(err).Str("dir", dir).Msg("remove workspace dir")
		}
	}
	if s.revoker != nil {
		n := s.revoker.Revoke(projectID, "")
		s.log.Info().Str("project", projectID).Int("sessions", n).Msg("project deleted")
	}
	return nil
}

// invalidateProject retires cached access decisions for the project and
// the project lists of everyone who can see it.
func (s *DefaultService) invalidateProject(ctx context.Context, project *Project) {
	keys := []string{projectVersionKey(project.ID), userProjectsVersionKey(project.OwnerID)}
	members, err := s.repository.ListCollaborators(ctx, project.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("project", project.ID).Msg("list members for cache invalidation")
	}
	for _, m := range members {
		if m.UserID != project.OwnerID {
			keys = append(keys, userProjectsVersionKey(m.UserID))
		}
	}
	s.bump(ctx, keys...)
}

func (s *DefaultService) findProject(ctx context.Context, projectID string) (*Project, error) {
	project, err := s.repository.FindProject(ctx, projectID)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("Project not found", err)
	}
	return project, err
}

func (s *DefaultService) requireOwner(ctx context.Context, userID, projectID, message string) (*Project, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != userID {
		return nil, errors.Forbidden(message, nil)
	}
	return project, nil
}

func (s *DefaultService) requireAccess(ctx context.Context, userID, projectID string) error {
	ok, err := s.CanAccess(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Forbidden("No access to this project", nil)
	}
	return nil
}

func (s *DefaultService) requireWrite(ctx context.Context, userID, projectID string) error {
	ok, err := s.CanWrite(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Forbidden("No write access to this project", nil)
	}
	return nil
}

func (s *DefaultService) deleteBlobLater(key string) {
	if s.blobs == nil || s.jobs == nil {
		return
	}
	accepted := s.jobs.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return s.blobs.Delete(ctx, key)
	})
	if !accepted {
		s.log.Warn().Str("key", key).Msg("blob delete not scheduled")
	}
}
