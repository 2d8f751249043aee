package project

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectRepository interface {
	CreateProject(ctx context.Context, project *Project) error
	FindProject(ctx context.Context, id string) (*Project, error)
	SaveProject(ctx context.Context, project *Project) error
	DeleteProject(ctx context.Context, project *Project) error
	ListVisible(ctx context.Context, userID string, page, pageSize int) ([]Project, ProjectsMeta, error)

	FindAccess(ctx context.Context, projectID, userID string) (*ProjectAccess, error)
	CreateAccess(ctx context.Context, access *ProjectAccess) error
	UpdateAccessRole(ctx context.Context, projectID, userID string, role Role) error
	DeleteAccess(ctx context.Context, projectID, userID string) error
	ListCollaborators(ctx context.Context, projectID string) ([]CollaboratorRow, error)

	ListFiles(ctx context.Context, projectID string) ([]File, error)
	FindFile(ctx context.Context, projectID, fileID string) (*File, error)
	FindFileByPath(ctx context.Context, projectID, path string) (*File, error)
	CreateFile(ctx context.Context, file *File) error
	SaveFile(ctx context.Context, file *File) error
	DeleteFile(ctx context.Context, file *File) error

	ListFolders(ctx context.Context, projectID string) ([]Folder, error)
	FindFolderByPath(ctx context.Context, projectID, path string) (*Folder, error)
	CreateFolder(ctx context.Context, folder *Folder) error
}

type ProjectsMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

// CollaboratorRow is an access row joined with its user.
type CollaboratorRow struct {
	UserID string
	Name   string
	Email  string
	Role   Role
}

type ProjectRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) ProjectRepository {
	return &ProjectRepositoryImpl{db: db}
}

// CreateProject stores the project together with the owner's access row.
func (r *ProjectRepositoryImpl) CreateProject(ctx context.Context, project *Project) error {
	project.Access = append(project.Access, ProjectAccess{
		UserID: project.OwnerID,
		Role:   RoleOwner,
	})
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *ProjectRepositoryImpl) FindProject(ctx context.Context, id string) (*Project, error) {
	var project Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *ProjectRepositoryImpl) SaveProject(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(project).Error
}

func (r *ProjectRepositoryImpl) DeleteProject(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Select(clause.Associations).Delete(project).Error
}

// visibleTo keeps projects the user owns or was given access to.
func visibleTo(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"owner_id = ? OR id IN (SELECT project_id FROM project_accesses WHERE user_id = ?)",
			userID, userID,
		)
	}
}

func (r *ProjectRepositoryImpl) ListVisible(ctx context.Context, userID string, page, pageSize int) ([]Project, ProjectsMeta, error) {
	var projects []Project
	var totalRecords int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&Project{}).Scopes(visibleTo(userID)).Count(&totalRecords).Error; err != nil {
		return projects, ProjectsMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := db.Scopes(visibleTo(userID)).
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&projects).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return projects, ProjectsMeta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

func (r *ProjectRepositoryImpl) FindAccess(ctx context.Context, projectID, userID string) (*ProjectAccess, error) {
	var access ProjectAccess
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&access).Error
	if err != nil {
		return nil, err
	}
	return &access, nil
}

func (r *ProjectRepositoryImpl) CreateAccess(ctx context.Context, access *ProjectAccess) error {
	return r.db.WithContext(ctx).Create(access).Error
}

func (r *ProjectRepositoryImpl) UpdateAccessRole(ctx context.Context, projectID, userID string, role Role) error {
	return r.db.WithContext(ctx).Model(&ProjectAccess{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Update("role", role).Error
}

func (r *ProjectRepositoryImpl) DeleteAccess(ctx context.Context, projectID, userID string) error {
	return r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&ProjectAccess{}).Error
}

func (r *ProjectRepositoryImpl) ListCollaborators(ctx context.Context, projectID string) ([]CollaboratorRow, error) {
	var rows []CollaboratorRow
	err := r.db.WithContext(ctx).
		Table("project_accesses AS pa").
		Select("pa.user_id, u.name, u.email, pa.role").
		Joins("JOIN users u ON u.id = pa.user_id").
		Where("pa.project_id = ?", projectID).
		Order("pa.created_at").
		Scan(&rows).Error
	return rows, err
}

func (r *ProjectRepositoryImpl) ListFiles(ctx context.Context, projectID string) ([]File, error) {
	var files []File
	err := r.db.WithContext(ctx).
		Omit("content").
		Where("project_id = ?", projectID).
		Order("path").
		Find(&files).Error
	return files, err
}

func (r *ProjectRepositoryImpl) FindFile(ctx context.Context, projectID, fileID string) (*File, error) {
	var file File
	err := r.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", fileID, projectID).
		First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *ProjectRepositoryImpl) FindFileByPath(ctx context.Context, projectID, path string) (*File, error) {
	var file File
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND path = ?", projectID, path).
		First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *ProjectRepositoryImpl) CreateFile(ctx context.Context, file *File) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *ProjectRepositoryImpl) SaveFile(ctx context.Context, file *File) error {
	return r.db.WithContext(ctx).Save(file).Error
}

func (r *ProjectRepositoryImpl) DeleteFile(ctx context.Context, file *File) error {
	return r.db.WithContext(ctx).Delete(file).Error
}

func (r *ProjectRepositoryImpl) ListFolders(ctx context.Context, projectID string) ([]Folder, error) {
	var folders []Folder
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("path").
		Find(&folders).Error
	return folders, err
}

func (r *ProjectRepositoryImpl) FindFolderByPath(ctx context.Context, projectID, path string) (*Folder, error) {
	var folder Folder
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND path = ?", projectID, path).
		First(&folder).Error
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (r *ProjectRepositoryImpl) CreateFolder(ctx context.Context, folder *Folder) error {
	return r.db.WithContext(ctx).Create(folder).Error
}
