package project

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

// CanWrite reports whether the role may modify project files.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleEditor
}

// Assignable reports whether the role can be granted to a collaborator.
// Ownership is fixed at creation.
func (r Role) Assignable() bool {
	return r == RoleEditor || r == RoleViewer
}

type Project struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Name        string
	Description string
	Language    string `gorm:"default:javascript"`
	Template    string
	OwnerID     string `gorm:"type:uuid;index"`
	IsPublic    bool   `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Access      []ProjectAccess `gorm:"constraint:OnDelete:CASCADE"`
	Files       []File          `gorm:"constraint:OnDelete:CASCADE"`
	Folders     []Folder        `gorm:"constraint:OnDelete:CASCADE"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type ProjectAccess struct {
	ProjectID string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;primaryKey"`
	Role      Role   `gorm:"type:varchar(16);default:VIEWER"`
	CreatedAt time.Time
}

// File is a project file. Content is nil when the body lives in object
// storage at StorageURL.
type File struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	ProjectID  string `gorm:"type:uuid;uniqueIndex:idx_project_path"`
	Name       string
	Path       string `gorm:"uniqueIndex:idx_project_path"`
	FolderID   *string `gorm:"type:uuid;index"`
	Language   string
	Content    *string
	StorageURL *string
	Size       int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// Folder records a directory of the project tree. ParentID is nil for
// top-level folders.
type Folder struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	ProjectID string  `gorm:"type:uuid;uniqueIndex:idx_folder_project_path"`
	ParentID  *string `gorm:"type:uuid;index"`
	Name      string
	Path      string `gorm:"uniqueIndex:idx_folder_project_path"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
