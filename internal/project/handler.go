package project

import (
	"net/http"

	"collaborative-ide/internal/errors"
	"collaborative-ide/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description" binding:"max=2000"`
	Language    string `json:"language" binding:"max=64"`
	Template    string `json:"template" binding:"max=64"`
	IsPublic    bool   `json:"isPublic"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=255"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	Language    *string `json:"language" binding:"omitempty,max=64"`
	IsPublic    *bool   `json:"isPublic"`
}

type CreateFileRequest struct {
	Name     string  `json:"name" binding:"required,max=255"`
	Path     string  `json:"path" binding:"required,max=1024"`
	Content  string  `json:"content"`
	Language string  `json:"language" binding:"max=64"`
	FolderID *string `json:"folderId" binding:"omitempty,uuid"`
}

type BatchFileRequest struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

type CreateFilesRequest struct {
	Files []BatchFileRequest `json:"files" binding:"required,min=1"`
}

type UpdateFileRequest struct {
	Content  *string `json:"content"`
	Name     *string `json:"name" binding:"omitempty,min=1,max=255"`
	Language *string `json:"language" binding:"omitempty,max=64"`
}

type CreateFolderRequest struct {
	Name     string  `json:"name" binding:"max=255"`
	Path     string  `json:"path" binding:"required,max=1024"`
	ParentID *string `json:"parentId" binding:"omitempty,uuid"`
}

type BatchFolderRequest struct {
	Path string `json:"path"`
}

type CreateFoldersRequest struct {
	Folders []BatchFolderRequest `json:"folders" binding:"required,min=1"`
}

type CollaboratorRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   Role   `json:"role" binding:"required,oneof=EDITOR VIEWER"`
}

func (h *Handler) CreateProject(c *gin.Context) {
	var input CreateProjectRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	project, err := h.service.CreateProject(c.Request.Context(), c.GetString("user_id"), NewProject{
		Name:        input.Name,
		Description: input.Description,
		Language:    input.Language,
		Template:    input.Template,
		IsPublic:    input.IsPublic,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (h *Handler) ShowUserProjects(c *gin.Context) {
	page, pageSize := utils.GetPaginationParams(c)
	result, err := h.service.ListProjects(c.Request.Context(), c.GetString("user_id"), page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ShowProject(c *gin.Context) {
	project, err := h.service.GetProject(c.Request.Context(), c.GetString("user_id"), c.Param("projectId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (h *Handler) UpdateProject(c *gin.Context) {
	var input UpdateProjectRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	project, err := h.service.UpdateProject(
		c.Request.Context(),
		c.GetString("user_id"),
		c.Param("projectId"),
		ProjectChange{
			Name:        input.Name,
			Description: input.Description,
			Language:    input.Language,
			IsPublic:    input.IsPublic,
		},
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.service.DeleteProject(c.Request.Context(), c.GetString("user_id"), c.Param("projectId")); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
}

func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.service.ListFiles(c.Request.Context(), c.GetString("user_id"), c.Param("projectId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *Handler) CreateFile(c *gin.Context) {
	var input CreateFileRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	file, err := h.service.CreateFile(c.Request.Context(), c.GetString("user_id"), c.Param("projectId"), NewFile{
		Name:     input.Name,
		Path:     input.Path,
		Content:  input.Content,
		Language: input.Language,
		FolderID: input.FolderID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"file": file})
}

func (h *Handler) CreateFiles(c *gin.Context) {
	var input CreateFilesRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	files := make([]NewFile, 0, len(input.Files))
	for _, f := range input.Files {
		files = append(files, NewFile{Name: f.Name, Path: f.Path, Content: f.Content, Language: f.Language})
	}
	result, err := h.service.CreateFiles(c.Request.Context(), c.GetString("user_id"), c.Param("projectId"), files)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) ShowFile(c *gin.Context) {
	file, err := h.service.GetFile(
		c.Request.Context(),
		c.GetString("user_id"),
		c.Param("projectId"),
		c.Param("fileId"),
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": file})
}

func (h *Handler) UpdateFile(c *gin.Context) {
	var input UpdateFileRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	file, err := h.service.UpdateFile(
		c.Request.Context(),
		c.GetString("user_id"),
		c.Param("projectId"),
		c.Param("fileId"),
		FileChange{Content: input.Content, Name: input.Name, Language: input.Language},
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": file})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	err := h.service.DeleteFile(
		c.Request.Context(),
		c.GetString("user_id"),
		c.Param("projectId"),
		c.Param("fileId"),
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}

func (h *Handler) ListFolders(c *gin.Context) {
	folders, err := h.service.ListFolders(c.Request.Context(), c.GetString("user_id"), c.Param("projectId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

func (h *Handler) CreateFolder(c *gin.Context) {
	var input CreateFolderRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	folder, err := h.service.CreateFolder(c.Request.Context(), c.GetString("user_id"), c.Param("projectId"), NewFolder{
		Name:     input.Name,
		Path:     input.Path,
		ParentID: input.ParentID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"folder": folder})
}

func (h *Handler) CreateFolders(c *gin.Context) {
	var input CreateFoldersRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	paths := make([]string, 0, len(input.Folders))
	for _, f := range input.Folders {
		paths = append(paths, f.Path)
	}
	result, err := h.service.CreateFolders(c.Request.Context(), c.GetString("user_id"), c.Param("projectId"), paths)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) ShowCollaborators(c *gin.Context) {
	collaborators, err := h.service.ListCollaborators(c.Request.Context(), c.GetString("user_id"), c.Param("projectId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"collaborators": collaborators})
}

func (h *Handler) AddCollaborator(c *gin.Context) {
	var input CollaboratorRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	collaborator, err := h.service.AddCollaborator(
		c.Request.Context(),
		c.GetString("user_id"),
		c.Param("projectId"),
		input.UserID,
		input.Role,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"collaborator": collaborator})
}

func (h *Handler) ChangeCollaboratorRole(c *gin.Context) {
	var input CollaboratorRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	collaborator, err := h.service.ChangeCollaboratorRole(
		c.Request.Context(),
		c.GetString("user_id"),
		c.Param("projectId"),
		input.UserID,
		input.Role,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"collaborator": collaborator})
}

func (h *Handler) RemoveCollaborator(c *gin.Context) {
	err := h.service.RemoveCollaborator(
		c.Request.Context(),
		c.GetString("user_id"),
		c.Param("projectId"),
		c.Param("userId"),
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
