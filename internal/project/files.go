package project

import (
	"context"
	defError "errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"collaborative-ide/internal/errors"
	"collaborative-ide/internal/storage"
	"collaborative-ide/internal/workspace"

	"gorm.io/gorm"
)

var languageByExt = map[string]string{
	"js":   "javascript",
	"jsx":  "javascript",
	"ts":   "typescript",
	"tsx":  "typescript",
	"py":   "python",
	"html": "html",
	"css":  "css",
	"json": "json",
	"md":   "markdown",
	"txt":  "plaintext",
}

// DetectLanguage maps a file name to an editor language by extension.
func DetectLanguage(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "plaintext"
}

var errInvalidPath = defError.New("invalid project path")

// cleanPath normalizes a slash-separated project path and rejects paths
// that are empty, absolute or climb out of the project.
func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", errInvalidPath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errInvalidPath
	}
	return clean, nil
}

type FileSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	FolderID   *string   `json:"folder_id,omitempty"`
	Language   string    `json:"language"`
	StorageURL *string   `json:"storage_url,omitempty"`
	Size       int64     `json:"size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toFileSummary(f *File) FileSummary {
	return FileSummary{
		ID:         f.ID,
		Name:       f.Name,
		Path:       f.Path,
		FolderID:   f.FolderID,
		Language:   f.Language,
		StorageURL: f.StorageURL,
		Size:       f.Size,
		UpdatedAt:  f.UpdatedAt,
	}
}

type FileResponse struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	FolderID   *string   `json:"folder_id,omitempty"`
	Language   string    `json:"language"`
	Content    string    `json:"content"`
	StorageURL *string   `json:"storage_url,omitempty"`
	Size       int64     `json:"size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toFileResponse(f *File, content string) *FileResponse {
	return &FileResponse{
		ID:         f.ID,
		ProjectID:  f.ProjectID,
		Name:       f.Name,
		Path:       f.Path,
		FolderID:   f.FolderID,
		Language:   f.Language,
		Content:    content,
		StorageURL: f.StorageURL,
		Size:       f.Size,
		UpdatedAt:  f.UpdatedAt,
	}
}

// NewFile describes a file to create. Name defaults to the last path
// element and Language to the one detected from the name.
type NewFile struct {
	Name     string
	Path     string
	Content  string
	Language string
	FolderID *string
}

// FileChange is a partial update; nil fields are left alone.
type FileChange struct {
	Content  *string
	Name     *string
	Language *string
}

type BatchError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type FileBatchResult struct {
	Success      bool           `json:"success"`
	Created      int            `json:"created"`
	Errors       int            `json:"errors"`
	Files        []FileResponse `json:"files"`
	ErrorDetails []BatchError   `json:"errorDetails"`
}

func (s *DefaultService) ListFiles(ctx context.Context, userID, projectID string) ([]FileSummary, error) {
	if err := s.requireAccess(ctx, userID, projectID); err != nil {
		return nil, err
	}

	files, err := s.repository.ListFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	result := make([]FileSummary, 0, len(files))
	for i := range files {
		result = append(result, toFileSummary(&files[i]))
	}
	return result, nil
}

func (s *DefaultService) CreateFile(ctx context.Context, userID, projectID string, input NewFile) (*FileResponse, error) {
	if err := s.requireWrite(ctx, userID, projectID); err != nil {
		return nil, err
	}

	file, err := s.createFile(ctx, projectID, input)
	if err != nil {
		return nil, err
	}
	return toFileResponse(file, input.Content), nil
}

// CreateFiles creates each file it can. Paths that already exist are
// skipped silently; other failures are reported per path.
func (s *DefaultService) CreateFiles(ctx context.Context, userID, projectID string, inputs []NewFile) (*FileBatchResult, error) {
	if err := s.requireWrite(ctx, userID, projectID); err != nil {
		return nil, err
	}

	result := &FileBatchResult{Success: true, Files: []FileResponse{}, ErrorDetails: []BatchError{}}
	for _, input := range inputs {
		file, err := s.createFile(ctx, projectID, input)
		if isConflict(err) {
			continue
		}
		if err != nil {
			s.log.Debug().Err(err).Str("path", input.Path).Msg("batch file create")
			result.ErrorDetails = append(result.ErrorDetails, BatchError{Path: input.Path, Error: batchMessage(err)})
			continue
		}
		result.Files = append(result.Files, *toFileResponse(file, input.Content))
	}
	result.Created = len(result.Files)
	result.Errors = len(result.ErrorDetails)
	return result, nil
}

func (s *DefaultService) createFile(ctx context.Context, projectID string, input NewFile) (*File, error) {
	filePath, err := cleanPath(input.Path)
	if err != nil {
		return nil, errors.BadRequest("Invalid file path", err)
	}

	_, err = s.repository.FindFileByPath(ctx, projectID, filePath)
	if err == nil {
		return nil, errors.Conflict("File already exists at this path", nil)
	}
	if !defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	file := &File{
		ProjectID: projectID,
		Name:      input.Name,
		Path:      filePath,
		Language:  input.Language,
		FolderID:  input.FolderID,
	}
	if file.Name == "" {
		file.Name = path.Base(filePath)
	}
	if file.Language == "" {
		file.Language = DetectLanguage(file.Name)
	}
	if err := s.storeContent(ctx, file, input.Content); err != nil {
		return nil, err
	}

	if err := s.repository.CreateFile(ctx, file); err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("File already exists at this path", err)
		}
		return nil, err
	}
	return file, nil
}

func (s *DefaultService) GetFile(ctx context.Context, userID, projectID, fileID string) (*FileResponse, error) {
	if err := s.requireAccess(ctx, userID, projectID); err != nil {
		return nil, err
	}

	file, err := s.findFile(ctx, projectID, fileID)
	if err != nil {
		return nil, err
	}

	content, err := s.readContent(ctx, file)
	if err != nil {
		return nil, err
	}
	return toFileResponse(file, content), nil
}

// UpdateFile writes the change to the workspace copy first, so the file
// watcher reports it, then stores it. Large contents are moved to object
// storage and the row keeps only the URL.
func (s *DefaultService) UpdateFile(ctx context.Context, userID, projectID, fileID string, change FileChange) (*FileResponse, error) {
	if err := s.requireWrite(ctx, userID, projectID); err != nil {
		return nil, err
	}

	file, err := s.findFile(ctx, projectID, fileID)
	if err != nil {
		return nil, err
	}

	if change.Name != nil {
		file.Name = *change.Name
	}
	if change.Language != nil {
		file.Language = *change.Language
	}

	var content string
	if change.Content != nil {
		content = *change.Content
		if err := s.storeContent(ctx, file, content); err != nil {
			return nil, err
		}
	} else if content, err = s.readContent(ctx, file); err != nil {
		return nil, err
	}

	if err := s.repository.SaveFile(ctx, file); err != nil {
		return nil, err
	}
	return toFileResponse(file, content), nil
}

func (s *DefaultService) DeleteFile(ctx context.Context, userID, projectID, fileID string) error {
	if err := s.requireWrite(ctx, userID, projectID); err != nil {
		return err
	}

	file, err := s.findFile(ctx, projectID, fileID)
	if err != nil {
		return err
	}

	if local, err := workspace.File(s.opts.WorkspaceRoot, projectID, file.Path); err == nil {
		if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", local).Msg("remove workspace file")
		}
	}

	if err := s.repository.DeleteFile(ctx, file); err != nil {
		return err
	}
	if file.StorageURL != nil {
		s.deleteBlobLater(storage.ObjectKey(projectID, file.Path))
	}
	return nil
}

func (s *DefaultService) findFile(ctx context.Context, projectID, fileID string) (*File, error) {
	file, err := s.repository.FindFile(ctx, projectID, fileID)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("File not found", err)
	}
	return file, err
}

// storeContent mirrors content to the workspace and decides where the body
// lives: inline in the row, or in object storage above the threshold.
func (s *DefaultService) storeContent(ctx context.Context, file *File, content string) error {
	if err := s.mirror(file.ProjectID, file.Path, content); err != nil {
		return errors.Internal(err)
	}

	key := storage.ObjectKey(file.ProjectID, file.Path)
	file.Size = int64(len(content))
	if s.blobs != nil && file.Size > s.opts.Threshold {
		url, err := s.blobs.Put(ctx, key, []byte(content), "text/plain; charset=utf-8")
		if err != nil {
			return errors.Internal(err)
		}
		file.Content = nil
		file.StorageURL = &url
		return nil
	}

	if file.StorageURL != nil {
		s.deleteBlobLater(key)
	}
	file.Content = &content
	file.StorageURL = nil
	return nil
}

func (s *DefaultService) readContent(ctx context.Context, file *File) (string, error) {
	switch {
	case file.Content != nil:
		return *file.Content, nil
	case file.StorageURL != nil && s.blobs != nil:
		data, err := s.blobs.Get(ctx, storage.ObjectKey(file.ProjectID, file.Path))
		if err != nil {
			return "", errors.Internal(err)
		}
		return string(data), nil
	}
	return "", nil
}

func (s *DefaultService) mirror(projectID, filePath, content string) error {
	local, err := workspace.File(s.opts.WorkspaceRoot, projectID, filePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	return os.WriteFile(local, []byte(content), 0o644)
}

func isConflict(err error) bool {
	var apiErr *errors.APIError
	return defError.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// batchMessage is what a batch reports for a failed entry. Internal
// details stay in the log.
func batchMessage(err error) string {
	var apiErr *errors.APIError
	if defError.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return apiErr.Message
	}
	return "Internal server error"
}
