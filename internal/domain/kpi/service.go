package kpi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/period"
)

type Service struct {
	store  StoreAPI
	locks  LockChecker
	config ConfigSource
	users  UserDirectory
	now    func() time.Time
}

func NewService(store StoreAPI, locks LockChecker, config ConfigSource, users UserDirectory) *Service {
	return &Service{store: store, locks: locks, config: config, users: users, now: time.Now}
}

func (s *Service) List(ctx context.Context, actor auth.Actor, filter Filter) ([]KPI, error) {
	switch actor.Role {
	case auth.RoleEmployee:
		filter.OwnerID = actor.UserID
	case auth.RoleManager:
		if filter.OwnerID != "" {
			if _, err := s.ensureManages(ctx, actor, filter.OwnerID); err != nil {
				return nil, err
			}
		} else {
			filter.ManagerID = actor.UserID
		}
	}
	kpis, err := s.store.ListKPIs(ctx, filter)
	if err != nil {
		return nil, apperr.Storage("list kpis", err)
	}
	return kpis, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (KPI, error) {
	k, err := s.load(ctx, id)
	if err != nil {
		return KPI{}, err
	}
	if err := s.canView(ctx, actor, k); err != nil {
		return KPI{}, err
	}
	return k, nil
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (KPI, error) {
	if !actor.IsAny(auth.RoleManager, auth.RoleAdmin) {
		return KPI{}, ErrRoleNotAllowed.Withf("only managers create kpis")
	}
	fields, err := normalizeFields(in.Title, in.Rubric, in.TargetValue, in.Quarter, in.Year)
	if err != nil {
		return KPI{}, err
	}
	if err := s.ensureManagerEdits(ctx, actor); err != nil {
		return KPI{}, err
	}
	owner, err := s.ensureAdministers(ctx, actor, in.OwnerID)
	if err != nil {
		return KPI{}, err
	}
	if owner.Role != auth.RoleEmployee {
		return KPI{}, ErrOwnerInvalid
	}
	key := period.NewKey(owner.ID, fields.quarter, in.Year)
	if err := s.ensureMutable(ctx, key); err != nil {
		return KPI{}, err
	}
	if err := s.checkBudget(ctx, key, in.Weight, ""); err != nil {
		return KPI{}, err
	}

	now := s.now().UTC()
	k := KPI{
		ID:          uuid.NewString(),
		OwnerID:     owner.ID,
		OwnerName:   owner.Name,
		Title:       fields.title,
		Description: strings.TrimSpace(in.Description),
		Rubric:      fields.rubric,
		TargetValue: in.TargetValue,
		Unit:        strings.TrimSpace(in.Unit),
		Weight:      in.Weight,
		Quarter:     fields.quarter,
		Year:        in.Year,
		Status:      StatusActive,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.store.CreateKPI(ctx, k)
	if err != nil {
		return KPI{}, apperr.Storage("create kpi", err)
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in EditInput) (KPI, error) {
	if !actor.IsAny(auth.RoleManager, auth.RoleAdmin) {
		return KPI{}, ErrRoleNotAllowed.Withf("only managers edit kpis")
	}
	fields, err := normalizeFields(in.Title, in.Rubric, in.TargetValue, in.Quarter, in.Year)
	if err != nil {
		return KPI{}, err
	}
	k, err := s.load(ctx, id)
	if err != nil {
		return KPI{}, err
	}
	if _, err := s.ensureAdministers(ctx, actor, k.OwnerID); err != nil {
		return KPI{}, err
	}
	if err := s.ensureManagerEdits(ctx, actor); err != nil {
		return KPI{}, err
	}
	if err := s.ensureMutable(ctx, k.PeriodKey()); err != nil {
		return KPI{}, err
	}
	if k.Status == StatusApproved {
		return KPI{}, ErrKPIApproved
	}
	target := period.NewKey(k.OwnerID, fields.quarter, in.Year)
	if target != k.PeriodKey() {
		if err := s.ensureMutable(ctx, target); err != nil {
			return KPI{}, err
		}
	}
	if err := s.checkBudget(ctx, target, in.Weight, k.ID); err != nil {
		return KPI{}, err
	}

	k.Title = fields.title
	k.Description = strings.TrimSpace(in.Description)
	k.Rubric = fields.rubric
	k.TargetValue = in.TargetValue
	k.Unit = strings.TrimSpace(in.Unit)
	k.Weight = in.Weight
	k.Quarter = fields.quarter
	k.Year = in.Year
	k.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateKPI(ctx, k); err != nil {
		return KPI{}, apperr.Storage("update kpi", err)
	}
	return k, nil
}

// Delete removes the KPI and its comments. Progress history is kept.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) (KPI, error) {
	if actor.Role != auth.RoleManager {
		return KPI{}, ErrRoleNotAllowed.Withf("only managers delete kpis")
	}
	k, err := s.load(ctx, id)
	if err != nil {
		return KPI{}, err
	}
	if _, err := s.ensureManages(ctx, actor, k.OwnerID); err != nil {
		return KPI{}, err
	}
	if err := s.ensureManagerEdits(ctx, actor); err != nil {
		return KPI{}, err
	}
	if err := s.ensureMutable(ctx, k.PeriodKey()); err != nil {
		return KPI{}, err
	}
	if err := s.store.DeleteKPI(ctx, k.ID); err != nil {
		return KPI{}, apperr.Storage("delete kpi", err)
	}
	return k, nil
}

// UpdateProgress writes currentValue and then appends a progress row. If
// the second write fails the KPI keeps the new value and the error is
// returned.
func (s *Service) UpdateProgress(ctx context.Context, actor auth.Actor, id string, value float64, note string) (KPI, error) {
	if actor.Role != auth.RoleEmployee {
		return KPI{}, ErrRoleNotAllowed.Withf("only the owning employee records progress")
	}
	k, err := s.load(ctx, id)
	if err != nil {
		return KPI{}, err
	}
	if k.OwnerID != actor.UserID {
		return KPI{}, ErrNotOwner
	}
	if err := s.ensureMutable(ctx, k.PeriodKey()); err != nil {
		return KPI{}, err
	}
	if k.Status == StatusApproved {
		return KPI{}, ErrKPIApproved
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return KPI{}, apperr.New(apperr.KindValidation, "progress_invalid", "progress must be a finite number")
	}
	if value < 0 {
		return KPI{}, ErrProgressNegative
	}

	if err := s.writeValue(ctx, actor, &k, value); err != nil {
		return k, err
	}
	if note = strings.TrimSpace(note); note != "" {
		if _, err := s.appendComment(ctx, actor, k.ID, note, TagInfo); err != nil {
			return k, err
		}
	}
	return k, nil
}

func (s *Service) Submit(ctx context.Context, actor auth.Actor, id, message string) (KPI, error) {
	return s.transition(ctx, actor, id, EventSubmit, message)
}

func (s *Service) Approve(ctx context.Context, actor auth.Actor, id, message string) (KPI, error) {
	return s.transition(ctx, actor, id, EventApprove, message)
}

func (s *Service) RequestChanges(ctx context.Context, actor auth.Actor, id, message string) (KPI, error) {
	return s.transition(ctx, actor, id, EventRequestChanges, message)
}

func (s *Service) transition(ctx context.Context, actor auth.Actor, id string, event Event, message string) (KPI, error) {
	k, err := s.load(ctx, id)
	if err != nil {
		return KPI{}, err
	}
	next, transErr := Next(k.Status, event, actor.Role)
	if errors.Is(transErr, ErrRoleNotAllowed) {
		return KPI{}, transErr
	}
	if err := s.ensureActs(ctx, actor, k); err != nil {
		return KPI{}, err
	}
	if err := s.ensureMutable(ctx, k.PeriodKey()); err != nil {
		return KPI{}, err
	}
	if transErr != nil {
		return KPI{}, transErr
	}

	k.Status = next
	k.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateKPI(ctx, k); err != nil {
		return KPI{}, apperr.Storage("update kpi status", err)
	}
	if message = strings.TrimSpace(message); message != "" {
		if _, err := s.appendComment(ctx, actor, k.ID, message, ActionTag(next)); err != nil {
			return k, err
		}
	}
	return k, nil
}

func (s *Service) AddComment(ctx context.Context, actor auth.Actor, id, message string, tag CommentTag) (Comment, error) {
	if !actor.IsAny(auth.RoleEmployee, auth.RoleManager) {
		return Comment{}, ErrRoleNotAllowed.Withf("only employees and managers comment on kpis")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return Comment{}, ErrCommentEmpty
	}
	if tag == "" {
		tag = TagInfo
	}
	if !userTag(tag) {
		return Comment{}, ErrCommentTag
	}
	k, err := s.load(ctx, id)
	if err != nil {
		return Comment{}, err
	}
	if err := s.ensureActs(ctx, actor, k); err != nil {
		return Comment{}, err
	}
	if err := s.ensureMutable(ctx, k.PeriodKey()); err != nil {
		return Comment{}, err
	}
	return s.appendComment(ctx, actor, k.ID, message, tag)
}

func (s *Service) Comments(ctx context.Context, actor auth.Actor, id string) ([]Comment, error) {
	k, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, k.ID)
	if err != nil {
		return nil, apperr.Storage("list comments", err)
	}
	return comments, nil
}

func (s *Service) ProgressHistory(ctx context.Context, actor auth.Actor, id string) ([]ProgressUpdate, error) {
	k, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	updates, err := s.store.ListProgressUpdates(ctx, k.ID)
	if err != nil {
		return nil, apperr.Storage("list progress updates", err)
	}
	return updates, nil
}

// RemainingWeight reports the unallocated weight for an employee's period,
// ignoring excludingID.
func (s *Service) RemainingWeight(ctx context.Context, actor auth.Actor, key period.Key, excludingID string) (int, error) {
	switch actor.Role {
	case auth.RoleManager:
		if _, err := s.ensureManages(ctx, actor, key.EmployeeID); err != nil {
			return 0, err
		}
	case auth.RoleEmployee:
		if key.EmployeeID != actor.UserID {
			return 0, ErrNotOwner
		}
	}
	existing, err := s.store.ListKPIs(ctx, Filter{OwnerID: key.EmployeeID, Quarter: key.Quarter, Year: key.Year})
	if err != nil {
		return 0, apperr.Storage("list kpis", err)
	}
	return RemainingWeight(existing, excludingID), nil
}

// AttachEvidence stores extracted evidence on the owner's KPI.
func (s *Service) AttachEvidence(ctx context.Context, actor auth.Actor, id string, ev Evidence) (KPI, error) {
	if actor.Role != auth.RoleEmployee {
		return KPI{}, ErrRoleNotAllowed.Withf("only the owning employee uploads evidence")
	}
	k, err := s.load(ctx, id)
	if err != nil {
		return KPI{}, err
	}
	if k.OwnerID != actor.UserID {
		return KPI{}, ErrNotOwner
	}
	if err := s.ensureMutable(ctx, k.PeriodKey()); err != nil {
		return KPI{}, err
	}
	if k.Status == StatusApproved {
		return KPI{}, ErrKPIApproved
	}
	k.EvidenceURL = ev.URL
	k.EvidenceName = ev.Name
	k.EvidenceRawText = ev.RawText
	k.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateKPI(ctx, k); err != nil {
		return KPI{}, apperr.Storage("store evidence", err)
	}
	return k, nil
}

// AuditTarget loads a KPI and checks that actor may run an evidence audit
// on it now.
func (s *Service) AuditTarget(ctx context.Context, actor auth.Actor, id string) (KPI, error) {
	k, err := s.load(ctx, id)
	if err != nil {
		return KPI{}, err
	}
	if err := s.checkAuditable(ctx, actor, k); err != nil {
		return KPI{}, err
	}
	return k, nil
}

// ApplyAuditScore writes an oracle score as currentValue, then records the
// progress row and an AI Audit comment carrying the justification. Status
// is left unchanged.
func (s *Service) ApplyAuditScore(ctx context.Context, actor auth.Actor, id string, score float64, justification string) (KPI, Comment, error) {
	k, err := s.load(ctx, id)
	if err != nil {
		return KPI{}, Comment{}, err
	}
	if err := s.checkAuditable(ctx, actor, k); err != nil {
		return KPI{}, Comment{}, err
	}
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		return KPI{}, Comment{}, ErrProgressNegative.Withf("audit score %v is not a valid progress value", score)
	}
	if err := s.writeValue(ctx, actor, &k, score); err != nil {
		return k, Comment{}, err
	}
	message := fmt.Sprintf("Score %s/%s. %s", formatValue(score), formatValue(k.TargetValue), strings.TrimSpace(justification))
	comment, err := s.appendComment(ctx, actor, k.ID, message, TagAIAudit)
	if err != nil {
		return k, Comment{}, err
	}
	return k, comment, nil
}

func (s *Service) checkAuditable(ctx context.Context, actor auth.Actor, k KPI) error {
	switch actor.Role {
	case auth.RoleManager:
		if _, err := s.ensureManages(ctx, actor, k.OwnerID); err != nil {
			return err
		}
	case auth.RoleHR, auth.RoleAdmin:
	default:
		return ErrRoleNotAllowed.Withf("only managers, hr and admins run evidence audits")
	}
	if err := s.ensureMutable(ctx, k.PeriodKey()); err != nil {
		return err
	}
	if k.Status == StatusApproved {
		return ErrKPIApproved
	}
	if !k.HasEvidence() {
		return apperr.New(apperr.KindValidation, "evidence_missing", "kpi has no evidence to audit")
	}
	return nil
}

func (s *Service) writeValue(ctx context.Context, actor auth.Actor, k *KPI, value float64) error {
	now := s.now().UTC()
	k.CurrentValue = value
	k.UpdatedAt = now
	k.LastUpdatedAt = &now
	if err := s.store.UpdateKPI(ctx, *k); err != nil {
		return apperr.Storage("update kpi progress", err)
	}
	if _, err := s.store.AddProgressUpdate(ctx, ProgressUpdate{
		ID:        uuid.NewString(),
		KPIID:     k.ID,
		UserID:    actor.UserID,
		NewValue:  value,
		CreatedAt: now,
	}); err != nil {
		return apperr.Storage("record progress history", err)
	}
	return nil
}

func (s *Service) appendComment(ctx context.Context, actor auth.Actor, kpiID, message string, tag CommentTag) (Comment, error) {
	comment, err := s.store.AddComment(ctx, Comment{
		ID:        uuid.NewString(),
		KPIID:     kpiID,
		UserID:    actor.UserID,
		UserName:  actor.Name,
		UserRole:  actor.Role,
		Message:   message,
		Tag:       tag,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return Comment{}, apperr.Storage("add comment", err)
	}
	return comment, nil
}

func (s *Service) load(ctx context.Context, id string) (KPI, error) {
	if strings.TrimSpace(id) == "" {
		return KPI{}, ErrKPINotFound
	}
	k, err := s.store.GetKPI(ctx, id)
	if err != nil {
		return KPI{}, apperr.Storage("get kpi", err)
	}
	return k, nil
}

func (s *Service) canView(ctx context.Context, actor auth.Actor, k KPI) error {
	switch actor.Role {
	case auth.RoleEmployee:
		if k.OwnerID != actor.UserID {
			return ErrNotOwner
		}
	case auth.RoleManager:
		_, err := s.ensureManages(ctx, actor, k.OwnerID)
		return err
	case auth.RoleHR, auth.RoleAdmin:
	default:
		return ErrRoleNotAllowed
	}
	return nil
}

// ensureActs checks the employee owns k or the manager manages its owner.
func (s *Service) ensureActs(ctx context.Context, actor auth.Actor, k KPI) error {
	switch actor.Role {
	case auth.RoleEmployee:
		if k.OwnerID != actor.UserID {
			return ErrNotOwner
		}
		return nil
	case auth.RoleManager:
		_, err := s.ensureManages(ctx, actor, k.OwnerID)
		return err
	}
	return ErrRoleNotAllowed
}

// ensureManages passes when the owner has no recorded manager or reports
// to actor.
func (s *Service) ensureManages(ctx context.Context, actor auth.Actor, ownerID string) (auth.User, error) {
	owner, err := s.users.GetUser(ctx, ownerID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return auth.User{}, ErrOwnerInvalid.Withf("kpi owner %q not found", ownerID)
	}
	if err != nil {
		return auth.User{}, apperr.Storage("get kpi owner", err)
	}
	if owner.ManagerID != "" && owner.ManagerID != actor.UserID {
		return auth.User{}, ErrNotManager
	}
	return owner, nil
}

// ensureAdministers resolves a KPI owner for create and edit. Admins may
// target any employee; managers are scoped by ensureManages.
func (s *Service) ensureAdministers(ctx context.Context, actor auth.Actor, ownerID string) (auth.User, error) {
	if actor.Role != auth.RoleAdmin {
		return s.ensureManages(ctx, actor, ownerID)
	}
	owner, err := s.users.GetUser(ctx, ownerID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return auth.User{}, ErrOwnerInvalid.Withf("kpi owner %q not found", ownerID)
	}
	if err != nil {
		return auth.User{}, apperr.Storage("get kpi owner", err)
	}
	return owner, nil
}

func (s *Service) ensureManagerEdits(ctx context.Context, actor auth.Actor) error {
	if actor.Role == auth.RoleAdmin {
		return nil
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return err
	}
	if !cfg.AllowManagerEdits {
		return ErrManagerEditsOff
	}
	return nil
}

// ensureMutable rejects writes while the system is locked or a final
// review exists for key. Both are read fresh on every call.
func (s *Service) ensureMutable(ctx context.Context, key period.Key) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return err
	}
	if cfg.SystemLocked {
		return ErrSystemLocked
	}
	locked, err := s.locks.IsLocked(ctx, key)
	if err != nil {
		return apperr.Storage("check period lock", err)
	}
	if locked {
		return ErrPeriodLocked.Withf("%s %d is finalized for this employee", key.Quarter, key.Year)
	}
	return nil
}

func (s *Service) checkBudget(ctx context.Context, key period.Key, weight int, excludingID string) error {
	existing, err := s.store.ListKPIs(ctx, Filter{OwnerID: key.EmployeeID, Quarter: key.Quarter, Year: key.Year})
	if err != nil {
		return apperr.Storage("list kpis", err)
	}
	return ValidateWeight(weight, RemainingWeight(existing, excludingID))
}

type normalized struct {
	title   string
	rubric  string
	quarter period.Quarter
}

func normalizeFields(title, rubric string, target float64, quarter period.Quarter, year int) (normalized, error) {
	out := normalized{title: strings.TrimSpace(title), rubric: strings.TrimSpace(rubric)}
	if out.title == "" {
		return out, ErrTitleRequired
	}
	if math.IsNaN(target) || math.IsInf(target, 0) || target <= 0 {
		return out, ErrTargetInvalid
	}
	q, err := period.ParseQuarter(string(quarter))
	if err != nil || q == period.All {
		return out, period.ErrInvalidQuarter
	}
	out.quarter = q
	if year < 2000 || year > 2100 {
		return out, apperr.New(apperr.KindValidation, "invalid_year", "year must be between 2000 and 2100")
	}
	if out.rubric == "" {
		out.rubric = DefaultRubric
	}
	return out, nil
}

func userTag(tag CommentTag) bool {
	for _, candidate := range UserTags {
		if tag == candidate {
			return true
		}
	}
	return false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
