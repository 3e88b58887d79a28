// Package memstore is a mutex-guarded in-memory backend implementing every
// domain StoreAPI. It backs STORE_BACKEND=memory and the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"kpiflow/internal/domain/audit"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/notifications"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/reward"
	"kpiflow/internal/domain/settings"
	"kpiflow/internal/domain/templates"
)

type Store struct {
	mu            sync.RWMutex
	users         map[string]auth.User
	kpis          map[string]kpi.KPI
	progress      []kpi.ProgressUpdate
	comments      []kpi.Comment
	reviews       map[string]review.FinalReview
	rewards       []reward.Reward
	templates     map[string]templates.Template
	notifications []notifications.Notification
	events        []audit.Event
	config        *settings.Config
	now           func() time.Time
}

var (
	_ auth.StoreAPI          = (*Store)(nil)
	_ kpi.StoreAPI           = (*Store)(nil)
	_ review.StoreAPI        = (*Store)(nil)
	_ reward.StoreAPI        = (*Store)(nil)
	_ templates.StoreAPI     = (*Store)(nil)
	_ notifications.StoreAPI = (*Store)(nil)
	_ audit.StoreAPI         = (*Store)(nil)
	_ settings.StoreAPI      = (*SettingsStore)(nil)
)

func New() *Store {
	return &Store{
		users:     map[string]auth.User{},
		kpis:      map[string]kpi.KPI{},
		reviews:   map[string]review.FinalReview{},
		templates: map[string]templates.Template{},
		now:       time.Now,
	}
}

// Settings exposes the system config record as a settings.StoreAPI.
func (s *Store) Settings() *SettingsStore {
	return &SettingsStore{s: s}
}

// Users

func (s *Store) GetUser(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (s *Store) ListUsers(_ context.Context, filter auth.UserFilter) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.User
	for _, u := range s.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.ManagerID != "" && u.ManagerID != filter.ManagerID {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return auth.User{}, auth.ErrEmailTaken
		}
	}
	if _, ok := s.users[user.ID]; ok {
		return auth.User{}, auth.ErrEmailTaken.Withf("user id %q already exists", user.ID)
	}
	user.CreatedAt = s.now().UTC()
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) UpdateDevPlan(_ context.Context, userID, plan string, updatedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.LatestDevPlan = plan
	u.DevPlanUpdatedAt = updatedAt
	s.users[userID] = u
	return nil
}

func (s *Store) SetTraining(_ context.Context, userID string, completed bool, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.TrainingCompleted = completed
	u.TrainingDate = completedAt
	s.users[userID] = u
	return nil
}

// KPIs

func (s *Store) ListKPIs(_ context.Context, filter kpi.Filter) ([]kpi.KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []kpi.KPI
	for _, k := range s.kpis {
		if filter.OwnerID != "" && k.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ManagerID != "" && s.users[k.OwnerID].ManagerID != filter.ManagerID {
			continue
		}
		if filter.Quarter != "" && filter.Quarter != period.All && k.Quarter != filter.Quarter {
			continue
		}
		if filter.Year != 0 && k.Year != filter.Year {
			continue
		}
		if filter.Status != "" && k.Status != filter.Status {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetKPI(_ context.Context, id string) (kpi.KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.kpis[id]
	if !ok {
		return kpi.KPI{}, kpi.ErrKPINotFound
	}
	return k, nil
}

func (s *Store) CreateKPI(_ context.Context, k kpi.KPI) (kpi.KPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kpis[k.ID] = k
	return k, nil
}

func (s *Store) UpdateKPI(_ context.Context, k kpi.KPI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kpis[k.ID]; !ok {
		return kpi.ErrKPINotFound
	}
	s.kpis[k.ID] = k
	return nil
}

// DeleteKPI drops the KPI and its comments. Progress rows are kept.
func (s *Store) DeleteKPI(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kpis[id]; !ok {
		return kpi.ErrKPINotFound
	}
	delete(s.kpis, id)
	kept := s.comments[:0]
	for _, c := range s.comments {
		if c.KPIID != id {
			kept = append(kept, c)
		}
	}
	s.comments = kept
	return nil
}

func (s *Store) AddProgressUpdate(_ context.Context, update kpi.ProgressUpdate) (kpi.ProgressUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, update)
	return update, nil
}

func (s *Store) ListProgressUpdates(_ context.Context, kpiID string) ([]kpi.ProgressUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []kpi.ProgressUpdate
	for i := len(s.progress) - 1; i >= 0; i-- {
		if s.progress[i].KPIID == kpiID {
			out = append(out, s.progress[i])
		}
	}
	return out, nil
}

func (s *Store) AddComment(_ context.Context, comment kpi.Comment) (kpi.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kpis[comment.KPIID]; !ok {
		return kpi.Comment{}, kpi.ErrKPINotFound
	}
	s.comments = append(s.comments, comment)
	return comment, nil
}

func (s *Store) ListComments(_ context.Context, kpiID string) ([]kpi.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []kpi.Comment
	for _, c := range s.comments {
		if c.KPIID == kpiID {
			out = append(out, c)
		}
	}
	return out, nil
}

// Final reviews

func (s *Store) GetFinalReview(_ context.Context, key period.Key) (review.FinalReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[key.String()]
	if !ok {
		return review.FinalReview{}, review.ErrReviewNotFound
	}
	return r, nil
}

// InsertFinalReview is insert-with-key: a second insert for the same
// period fails with ErrAlreadyFinalized.
func (s *Store) InsertFinalReview(_ context.Context, r review.FinalReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[r.ID]; ok {
		return review.ErrAlreadyFinalized
	}
	s.reviews[r.ID] = r
	return nil
}

func (s *Store) FinalReviewExists(_ context.Context, key period.Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reviews[key.String()]
	return ok, nil
}

func (s *Store) ListFinalReviews(_ context.Context, filter review.Filter) ([]review.FinalReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []review.FinalReview
	for _, r := range s.reviews {
		if filter.EmployeeID != "" && r.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.ManagerID != "" && s.users[r.EmployeeID].ManagerID != filter.ManagerID {
			continue
		}
		if filter.Quarter != "" && filter.Quarter != period.All && r.Quarter != filter.Quarter {
			continue
		}
		if filter.Year != 0 && r.Year != filter.Year {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalizedAt.After(out[j].FinalizedAt) })
	return out, nil
}

// Rewards

func (s *Store) InsertReward(_ context.Context, r reward.Reward) (reward.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewards = append(s.rewards, r)
	return r, nil
}

func (s *Store) ListRewards(_ context.Context, filter reward.Filter) ([]reward.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []reward.Reward
	for i := len(s.rewards) - 1; i >= 0; i-- {
		r := s.rewards[i]
		if filter.EmployeeID != "" && r.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Quarter != "" && filter.Quarter != period.All && r.Quarter != filter.Quarter {
			continue
		}
		if filter.Year != 0 && r.Year != filter.Year {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Templates

func (s *Store) ListTemplates(_ context.Context) ([]templates.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]templates.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return out, nil
}

func (s *Store) CreateTemplate(_ context.Context, t templates.Template) (templates.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return templates.ErrTemplateNotFound
	}
	delete(s.templates, id)
	return nil
}

// Notifications

func (s *Store) InsertNotification(_ context.Context, n notifications.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, limit, offset int) ([]notifications.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mine []notifications.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			mine = append(mine, s.notifications[i])
		}
	}
	return page(mine, limit, offset), nil
}

func (s *Store) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			total++
		}
	}
	return total, nil
}

func (s *Store) MarkRead(_ context.Context, userID, notificationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == notificationID && n.UserID == userID {
			if n.ReadAt == nil {
				now := s.now().UTC()
				s.notifications[i].ReadAt = &now
			}
			return true, nil
		}
	}
	return false, nil
}

// Audit events

func (s *Store) InsertEvent(_ context.Context, evt audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *Store) ListEvents(_ context.Context, filter audit.Filter, limit, offset int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if filter.ActorUser != "" && e.ActorID != filter.ActorUser {
			continue
		}
		out = append(out, e)
	}
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// SettingsStore is the settings.StoreAPI view of a Store.
type SettingsStore struct {
	s *Store
}

func (ss *SettingsStore) Get(_ context.Context) (settings.Config, bool, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()
	if ss.s.config == nil {
		return settings.Config{}, false, nil
	}
	return *ss.s.config, true, nil
}

func (ss *SettingsStore) Save(_ context.Context, cfg settings.Config) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	ss.s.config = &cfg
	return nil
}
