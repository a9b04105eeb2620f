package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
)

// GroupStore captures the persistence operations needed by the group service.
type GroupStore interface {
	SaveGroup(ctx context.Context, group persistence.ContactGroup) error
	UpdateGroup(ctx context.Context, group persistence.ContactGroup) error
	GetGroup(ctx context.Context, id string) (persistence.ContactGroup, error)
	ListGroups(ctx context.Context) ([]persistence.ContactGroup, error)
	DeleteGroup(ctx context.Context, id string) error
}

// GroupService manages contact groups and their membership lists.
type GroupService struct {
	groups      GroupStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewGroupService constructs a group service.
func NewGroupService(store GroupStore, idGenerator func() string, now func() time.Time) *GroupService {
	return NewGroupServiceWithLogger(store, idGenerator, now, nil)
}

// NewGroupServiceWithLogger constructs a group service with a specified logger.
func NewGroupServiceWithLogger(store GroupStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *GroupService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &GroupService{groups: store, idGenerator: idGenerator, now: now, logger: logging.OrDefault(logger)}
}

func (s *GroupService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "GroupService", operation, attrs...)
}

// CreateGroup validates input and stores a new group. Member ids may refer
// to contacts that do not exist yet.
func (s *GroupService) CreateGroup(ctx context.Context, input GroupInput) (group persistence.ContactGroup, err error) {
	if s == nil {
		err = fmt.Errorf("GroupService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateGroup")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create group", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("group_id", group.ID, "members", len(group.ContactIDs)).InfoContext(ctx, "group created")
	}()

	if vErr := validateGroupInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	group = persistence.ContactGroup{
		ID:          s.idGenerator(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		ContactIDs:  normalizeIDs(input.ContactIDs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.groups.SaveGroup(ctx, group); err != nil {
		err = mapRepoError(err)
	}
	return
}

// UpdateGroup replaces the name, description and membership of a group.
func (s *GroupService) UpdateGroup(ctx context.Context, id string, input GroupInput) (group persistence.ContactGroup, err error) {
	if s == nil {
		err = fmt.Errorf("GroupService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateGroup", "group_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update group", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "group updated")
	}()

	if vErr := validateGroupInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	group, err = s.groups.GetGroup(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	group.Name = strings.TrimSpace(input.Name)
	group.Description = strings.TrimSpace(input.Description)
	group.ContactIDs = normalizeIDs(input.ContactIDs)
	group.UpdatedAt = s.now()
	if err = s.groups.UpdateGroup(ctx, group); err != nil {
		err = mapRepoError(err)
	}
	return
}

// AddMembers appends contact ids that are not yet members, keeping the
// existing order. The member list is read and written back as a whole, so
// concurrent edits of one group assume a single writer.
func (s *GroupService) AddMembers(ctx context.Context, id string, contactIDs []string) (group persistence.ContactGroup, err error) {
	if s == nil {
		err = fmt.Errorf("GroupService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddMembers", "group_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add members", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("members", len(group.ContactIDs)).InfoContext(ctx, "members added")
	}()

	additions := normalizeIDs(contactIDs)
	if len(additions) == 0 {
		err = fieldError("contact_ids", "at least one contact id is required")
		return
	}

	group, err = s.groups.GetGroup(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	group.ContactIDs = uniqueStrings(append(group.ContactIDs, additions...))
	group.UpdatedAt = s.now()
	if err = s.groups.UpdateGroup(ctx, group); err != nil {
		err = mapRepoError(err)
	}
	return
}

// RemoveMember drops contactID from the group. Removing a non-member is a no-op.
func (s *GroupService) RemoveMember(ctx context.Context, id, contactID string) (group persistence.ContactGroup, err error) {
	if s == nil {
		err = fmt.Errorf("GroupService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RemoveMember", "group_id", id, "contact_id", contactID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member removed")
	}()

	group, err = s.groups.GetGroup(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	remaining := make([]string, 0, len(group.ContactIDs))
	for _, member := range group.ContactIDs {
		if member != contactID {
			remaining = append(remaining, member)
		}
	}
	if len(remaining) == len(group.ContactIDs) {
		return
	}

	group.ContactIDs = remaining
	group.UpdatedAt = s.now()
	if err = s.groups.UpdateGroup(ctx, group); err != nil {
		err = mapRepoError(err)
	}
	return
}

// DeleteGroup removes the group and its id from every event.
func (s *GroupService) DeleteGroup(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("GroupService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteGroup", "group_id", id)
	if err := s.groups.DeleteGroup(ctx, id); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete group", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "group deleted")
	return nil
}

// GetGroup returns a group by id.
func (s *GroupService) GetGroup(ctx context.Context, id string) (persistence.ContactGroup, error) {
	if s == nil {
		return persistence.ContactGroup{}, fmt.Errorf("GroupService is nil")
	}
	group, err := s.groups.GetGroup(ctx, id)
	if err != nil {
		return persistence.ContactGroup{}, mapRepoError(err)
	}
	return group, nil
}

// ListGroups returns every group ordered by name.
func (s *GroupService) ListGroups(ctx context.Context) ([]persistence.ContactGroup, error) {
	if s == nil {
		return nil, fmt.Errorf("GroupService is nil")
	}
	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return groups, nil
}

func validateGroupInput(input GroupInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	return vErr
}

// normalizeIDs trims ids, drops empty ones and removes duplicates.
func normalizeIDs(ids []string) []string {
	trimmed := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			trimmed = append(trimmed, id)
		}
	}
	return uniqueStrings(trimmed)
}
