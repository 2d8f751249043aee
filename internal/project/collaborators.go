package project

import (
	"context"
	defError "errors"

	"collaborative-ide/internal/errors"

	"gorm.io/gorm"
)

type UserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CollaboratorResponse struct {
	User UserDTO `json:"user"`
	Role Role    `json:"role"`
}

func (s *DefaultService) ListCollaborators(ctx context.Context, userID, projectID string) ([]CollaboratorResponse, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	// viewers and outsiders on public projects don't see the member list
	role, err := s.roleOf(ctx, project, userID)
	if err != nil {
		return nil, err
	}
	if !role.CanWrite() {
		return nil, errors.Forbidden("Viewer can't show collaborators", nil)
	}

	rows, err := s.repository.ListCollaborators(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result := make([]CollaboratorResponse, 0, len(rows))
	for _, r := range rows {
		result = append(result, CollaboratorResponse{
			User: UserDTO{ID: r.UserID, Name: r.Name, Email: r.Email},
			Role: r.Role,
		})
	}
	return result, nil
}

func (s *DefaultService) AddCollaborator(ctx context.Context, userID, projectID, targetID string, role Role) (*CollaboratorResponse, error) {
	if _, err := s.requireOwner(ctx, userID, projectID, "Only owner can add new collaborator!"); err != nil {
		return nil, err
	}
	if userID == targetID {
		return nil, errors.UnprocessableEntity("Can't add yourself!", nil)
	}
	if !role.Assignable() {
		return nil, errors.UnprocessableEntity("Role must be EDITOR or VIEWER", nil)
	}

	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil || !target.IsActive {
		return nil, errors.UnprocessableEntity("Can't find user!", err)
	}

	access := &ProjectAccess{ProjectID: projectID, UserID: targetID, Role: role}
	if err := s.repository.CreateAccess(ctx, access); err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("User already added!", err)
		}
		return nil, err
	}
	s.bump(ctx, projectVersionKey(projectID), userProjectsVersionKey(targetID))

	return &CollaboratorResponse{
		User: UserDTO{ID: target.ID, Name: target.Name, Email: target.Email},
		Role: role,
	}, nil
}

func (s *DefaultService) ChangeCollaboratorRole(ctx context.Context, userID, projectID, targetID string, role Role) (*CollaboratorResponse, error) {
	if _, err := s.requireOwner(ctx, userID, projectID, "Only owner can change role!"); err != nil {
		return nil, err
	}
	if userID == targetID {
		return nil, errors.UnprocessableEntity("Can't change your own role!", nil)
	}
	if !role.Assignable() {
		return nil, errors.UnprocessableEntity("Role must be EDITOR or VIEWER", nil)
	}

	current, err := s.repository.FindAccess(ctx, projectID, targetID)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.UnprocessableEntity("Can't find user!", err)
	}
	if err != nil {
		return nil, err
	}
	if current.Role == role {
		return nil, errors.UnprocessableEntity("User role already match", nil)
	}

	if err := s.repository.UpdateAccessRole(ctx, projectID, targetID, role); err != nil {
		return nil, err
	}
	s.bump(ctx, projectVersionKey(projectID))

	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return &CollaboratorResponse{
		User: UserDTO{ID: target.ID, Name: target.Name, Email: target.Email},
		Role: role,
	}, nil
}

// RemoveCollaborator deletes the access row and disconnects the user's
// live sessions on the project.
func (s *DefaultService) RemoveCollaborator(ctx context.Context, userID, projectID, targetID string) error {
	if _, err := s.requireOwner(ctx, userID, projectID, "Only owner can remove collaborator"); err != nil {
		return err
	}
	if userID == targetID {
		return errors.UnprocessableEntity("Can't remove yourself", nil)
	}

	if _, err := s.repository.FindAccess(ctx, projectID, targetID); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.UnprocessableEntity("Can't find user", err)
		}
		return err
	}

	if err := s.repository.DeleteAccess(ctx, projectID, targetID); err != nil {
		return err
	}
	s.bump(ctx, projectVersionKey(projectID), userProjectsVersionKey(targetID))

	if s.revoker != nil {
		n := s.revoker.Revoke(projectID, targetID)
		s.log.Info().Str("project", projectID).Str("user", targetID).Int("sessions", n).Msg("collaborator removed")
	}
	return nil
}
