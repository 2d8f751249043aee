package project

import (
	"context"
	defError "errors"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"collaborative-ide/internal/errors"
	"collaborative-ide/internal/workspace"

	"gorm.io/gorm"
)

type FolderResponse struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

func toFolderResponse(f *Folder) FolderResponse {
	return FolderResponse{
		ID:        f.ID,
		ProjectID: f.ProjectID,
		ParentID:  f.ParentID,
		Name:      f.Name,
		Path:      f.Path,
		CreatedAt: f.CreatedAt,
	}
}

// NewFolder describes a folder to create. Without ParentID the parent is
// looked up by path.
type NewFolder struct {
	Name     string
	Path     string
	ParentID *string
}

type FolderBatchResult struct {
	Success      bool             `json:"success"`
	Created      int              `json:"created"`
	Errors       int              `json:"errors"`
	Folders      []FolderResponse `json:"folders"`
	ErrorDetails []BatchError     `json:"errorDetails"`
}

func (s *DefaultService) ListFolders(ctx context.Context, userID, projectID string) ([]FolderResponse, error) {
	if err := s.requireAccess(ctx, userID, projectID); err != nil {
		return nil, err
	}

	folders, err := s.repository.ListFolders(ctx, projectID)
	if err != nil {
		return nil, err
	}
	result := make([]FolderResponse, 0, len(folders))
	for i := range folders {
		result = append(result, toFolderResponse(&folders[i]))
	}
	return result, nil
}

func (s *DefaultService) CreateFolder(ctx context.Context, userID, projectID string, input NewFolder) (*FolderResponse, error) {
	if err := s.requireWrite(ctx, userID, projectID); err != nil {
		return nil, err
	}

	folder, err := s.createFolder(ctx, projectID, input, nil)
	if err != nil {
		return nil, err
	}
	resp := toFolderResponse(folder)
	return &resp, nil
}

// CreateFolders creates parents before children so each folder can be
// linked to its parent. Existing folders are skipped silently.
func (s *DefaultService) CreateFolders(ctx context.Context, userID, projectID string, paths []string) (*FolderBatchResult, error) {
	if err := s.requireWrite(ctx, userID, projectID); err != nil {
		return nil, err
	}

	sorted := slices.Clone(paths)
	slices.SortStableFunc(sorted, func(a, b string) int {
		return strings.Count(a, "/") - strings.Count(b, "/")
	})

	result := &FolderBatchResult{Success: true, Folders: []FolderResponse{}, ErrorDetails: []BatchError{}}
	created := make(map[string]string, len(sorted))
	for _, p := range sorted {
		folder, err := s.createFolder(ctx, projectID, NewFolder{Path: p}, created)
		if isConflict(err) {
			continue
		}
		if err != nil {
			s.log.Debug().Err(err).Str("path", p).Msg("batch folder create")
			result.ErrorDetails = append(result.ErrorDetails, BatchError{Path: p, Error: batchMessage(err)})
			continue
		}
		created[folder.Path] = folder.ID
		result.Folders = append(result.Folders, toFolderResponse(folder))
	}
	result.Created = len(result.Folders)
	result.Errors = len(result.ErrorDetails)
	return result, nil
}

// createFolder consults known (path to id) before the database when
// resolving the parent.
func (s *DefaultService) createFolder(ctx context.Context, projectID string, input NewFolder, known map[string]string) (*Folder, error) {
	folderPath, err := cleanPath(input.Path)
	if err != nil {
		return nil, errors.BadRequest("Invalid folder path", err)
	}

	_, err = s.repository.FindFolderByPath(ctx, projectID, folderPath)
	if err == nil {
		return nil, errors.Conflict("Folder already exists at this path", nil)
	}
	if !defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	folder := &Folder{
		ProjectID: projectID,
		ParentID:  input.ParentID,
		Name:      input.Name,
		Path:      folderPath,
	}
	if folder.Name == "" {
		folder.Name = path.Base(folderPath)
	}
	if parent := path.Dir(folderPath); folder.ParentID == nil && parent != "." {
		if id, ok := known[parent]; ok {
			folder.ParentID = &id
		} else if p, err := s.repository.FindFolderByPath(ctx, projectID, parent); err == nil {
			folder.ParentID = &p.ID
		} else if !defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	local, err := workspace.File(s.opts.WorkspaceRoot, projectID, folderPath)
	if err != nil {
		return nil, errors.BadRequest("Invalid folder path", err)
	}
	if err := os.MkdirAll(local, 0o755); err != nil {
		return nil, errors.Internal(err)
	}

	if err := s.repository.CreateFolder(ctx, folder); err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("Folder already exists at this path", err)
		}
		return nil, err
	}
	return folder, nil
}
