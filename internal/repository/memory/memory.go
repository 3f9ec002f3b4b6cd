// Package memory is an in-memory repository.Store. It mirrors the
// constraints of the Postgres schema (unique keys, foreign keys, cascades)
// and is intended for tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"scanhub/internal/models"
	"scanhub/internal/repository"
)

type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *dataset

	// Now is the clock used for created_at/updated_at.
	Now func() time.Time
}

type dataset struct {
	users         map[string]models.User
	files         map[string]models.File
	projects      map[string]models.Project
	scans         map[string]models.Scan
	notifications map[string]models.Notification
	activities    map[string]models.Activity
	verifications map[string]models.Verification
	resets        map[string]models.PasswordReset
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: newDataset(), Now: time.Now}
}

func newDataset() *dataset {
	return &dataset{
		users:         make(map[string]models.User),
		files:         make(map[string]models.File),
		projects:      make(map[string]models.Project),
		scans:         make(map[string]models.Scan),
		notifications: make(map[string]models.Notification),
		activities:    make(map[string]models.Activity),
		verifications: make(map[string]models.Verification),
		resets:        make(map[string]models.PasswordReset),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.files {
		c.files[k] = v
	}
	for k, v := range d.projects {
		c.projects[k] = v
	}
	for k, v := range d.scans {
		c.scans[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	for k, v := range d.activities {
		c.activities[k] = v
	}
	for k, v := range d.verifications {
		c.verifications[k] = v
	}
	for k, v := range d.resets {
		c.resets[k] = v
	}
	return c
}

func (s *Store) Users() repository.Users                 { return users{s} }
func (s *Store) Files() repository.Files                 { return files{s} }
func (s *Store) Projects() repository.Projects           { return projects{s} }
func (s *Store) Scans() repository.Scans                 { return scans{s} }
func (s *Store) Notifications() repository.Notifications { return notifications{s} }
func (s *Store) Activities() repository.Activities       { return activities{s} }
func (s *Store) Tokens() repository.Tokens               { return tokens{s} }

// WithTx serialises transactions and restores a snapshot when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return ctx.Err()
}

func (s *Store) now() time.Time {
	return s.Now().UTC()
}

// users -----------------------------------------------------------------------

type users struct{ s *Store }

func (r users) Create(_ context.Context, user models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	if _, ok := d.users[user.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range d.users {
		if existing.Email == user.Email {
			return repository.ErrConflict
		}
	}
	now := r.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	d.users[user.ID] = user
	return nil
}

func (r users) GetByID(_ context.Context, id string) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.data.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (r users) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, user := range r.s.data.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (r users) Update(_ context.Context, user models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.data.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Name = user.Name
	existing.Picture = user.Picture
	existing.PasswordHash = user.PasswordHash
	existing.Verified = user.Verified
	existing.UpdatedAt = r.s.now()
	r.s.data.users[user.ID] = existing
	return nil
}

// files -----------------------------------------------------------------------

type files struct{ s *Store }

func (r files) Create(_ context.Context, file models.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	if _, ok := d.files[file.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range d.files {
		if existing.Key == file.Key {
			return repository.ErrConflict
		}
	}
	if file.UserID != nil {
		if _, ok := d.users[*file.UserID]; !ok {
			return repository.ErrInvalidReference
		}
	}
	now := r.s.now()
	file.CreatedAt, file.UpdatedAt = now, now
	d.files[file.ID] = file
	return nil
}

func (r files) GetByID(_ context.Context, id string) (models.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	file, ok := r.s.data.files[id]
	if !ok {
		return models.File{}, repository.ErrNotFound
	}
	return file, nil
}

func (r files) GetByKey(_ context.Context, key string) (models.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, file := range r.s.data.files {
		if file.Key == key {
			return file, nil
		}
	}
	return models.File{}, repository.ErrNotFound
}

// projects --------------------------------------------------------------------

type projects struct{ s *Store }

func (r projects) Create(_ context.Context, project models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	if _, ok := d.projects[project.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range d.projects {
		if existing.Slug == project.Slug {
			return repository.ErrConflict
		}
	}
	if _, ok := d.users[project.UserID]; !ok {
		return repository.ErrInvalidReference
	}
	if project.ThumbnailID != nil {
		if _, ok := d.files[*project.ThumbnailID]; !ok {
			return repository.ErrInvalidReference
		}
	}
	now := r.s.now()
	project.CreatedAt, project.UpdatedAt = now, now
	d.projects[project.ID] = project
	return nil
}

func (r projects) GetByID(_ context.Context, id string) (models.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	project, ok := r.s.data.projects[id]
	if !ok {
		return models.Project{}, repository.ErrNotFound
	}
	return project, nil
}

func (r projects) FindForUser(_ context.Context, userID, slugOrID string) (models.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, project := range r.s.data.projects {
		if project.UserID == userID && (project.Slug == slugOrID || project.ID == slugOrID) {
			return project, nil
		}
	}
	return models.Project{}, repository.ErrNotFound
}

func (r projects) ListByUser(_ context.Context, userID string, opts repository.ListOptions) ([]models.Project, int, error) {
	r.s.mu.RLock()
	var matched []models.Project
	for _, project := range r.s.data.projects {
		if project.UserID == userID && matches(project.Name, opts.Search) {
			matched = append(matched, project)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return less(opts, matched[i].Name, matched[j].Name, matched[i].CreatedAt, matched[j].CreatedAt, matched[i].ID, matched[j].ID)
	})
	return page(matched, opts), len(matched), nil
}

func (r projects) Update(_ context.Context, project models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	existing, ok := d.projects[project.ID]
	if !ok || existing.UserID != project.UserID {
		return repository.ErrNotFound
	}
	if project.ThumbnailID != nil {
		if _, ok := d.files[*project.ThumbnailID]; !ok {
			return repository.ErrInvalidReference
		}
	}
	existing.Name = project.Name
	existing.ThumbnailID = project.ThumbnailID
	existing.UpdatedAt = r.s.now()
	d.projects[project.ID] = existing
	return nil
}

func (r projects) Delete(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	existing, ok := d.projects[id]
	if !ok || existing.UserID != userID {
		return repository.ErrNotFound
	}
	delete(d.projects, id)
	for scanID, scan := range d.scans {
		if scan.ProjectID == id {
			delete(d.scans, scanID)
		}
	}
	return nil
}

// scans -----------------------------------------------------------------------

type scans struct{ s *Store }

func (r scans) Create(_ context.Context, scan models.Scan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	if _, ok := d.scans[scan.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range d.scans {
		if existing.Slug == scan.Slug {
			return repository.ErrConflict
		}
	}
	if _, ok := d.projects[scan.ProjectID]; !ok {
		return repository.ErrInvalidReference
	}
	if _, ok := d.files[scan.InputFileID]; !ok {
		return repository.ErrInvalidReference
	}
	if _, ok := d.users[scan.UserID]; !ok {
		return repository.ErrInvalidReference
	}
	if scan.Status == "" {
		scan.Status = models.ScanStatusPreparing
	}
	now := r.s.now()
	scan.CreatedAt, scan.UpdatedAt = now, now
	d.scans[scan.ID] = scan
	return nil
}

func (r scans) GetByID(_ context.Context, id string) (models.Scan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	scan, ok := r.s.data.scans[id]
	if !ok {
		return models.Scan{}, repository.ErrNotFound
	}
	return scan, nil
}

func (r scans) FindForUser(_ context.Context, userID, slugOrID string) (models.Scan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, scan := range r.s.data.scans {
		if scan.UserID == userID && (scan.Slug == slugOrID || scan.ID == slugOrID) {
			return scan, nil
		}
	}
	return models.Scan{}, repository.ErrNotFound
}

func (r scans) ListByProject(_ context.Context, projectID string, opts repository.ListOptions) ([]models.Scan, int, error) {
	r.s.mu.RLock()
	var matched []models.Scan
	for _, scan := range r.s.data.scans {
		if scan.ProjectID == projectID && matches(scan.Name, opts.Search) {
			matched = append(matched, scan)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return less(opts, matched[i].Name, matched[j].Name, matched[i].CreatedAt, matched[j].CreatedAt, matched[i].ID, matched[j].ID)
	})
	return page(matched, opts), len(matched), nil
}

func (r scans) Update(_ context.Context, scan models.Scan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.data.scans[scan.ID]
	if !ok || existing.UserID != scan.UserID {
		return repository.ErrNotFound
	}
	existing.Name = scan.Name
	existing.UpdatedAt = r.s.now()
	r.s.data.scans[scan.ID] = existing
	return nil
}

func (r scans) Delete(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.data.scans[id]
	if !ok || existing.UserID != userID {
		return repository.ErrNotFound
	}
	delete(r.s.data.scans, id)
	return nil
}

func (r scans) Finalize(_ context.Context, id string, status models.ScanStatus, splatFileID *string) (models.Scan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	scan, ok := d.scans[id]
	if !ok {
		return models.Scan{}, repository.ErrNotFound
	}
	if scan.Status != models.ScanStatusPreparing {
		return models.Scan{}, repository.ErrScanFinalized
	}
	if splatFileID != nil {
		if _, ok := d.files[*splatFileID]; !ok {
			return models.Scan{}, repository.ErrInvalidReference
		}
		scan.SplatFileID = splatFileID
	}
	scan.Status = status
	scan.UpdatedAt = r.s.now()
	d.scans[id] = scan
	return scan, nil
}

// notifications ---------------------------------------------------------------

type notifications struct{ s *Store }

func (r notifications) Create(_ context.Context, n models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	if _, ok := d.notifications[n.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := d.users[n.UserID]; !ok {
		return repository.ErrInvalidReference
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.s.now()
	}
	d.notifications[n.ID] = n
	return nil
}

func (r notifications) ListSince(_ context.Context, userID string, since time.Time) ([]models.Notification, error) {
	r.s.mu.RLock()
	out := []models.Notification{}
	for _, n := range r.s.data.notifications {
		if n.UserID == userID && !n.CreatedAt.Before(since) {
			out = append(out, n)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r notifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, notification := range r.s.data.notifications {
		if notification.UserID == userID && !notification.Read {
			notification.Read = true
			r.s.data.notifications[id] = notification
			n++
		}
	}
	return n, nil
}

func (r notifications) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, notification := range r.s.data.notifications {
		if notification.CreatedAt.Before(before) {
			delete(r.s.data.notifications, id)
			n++
		}
	}
	return n, nil
}

// activities ------------------------------------------------------------------

type activities struct{ s *Store }

func (r activities) Create(_ context.Context, a models.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.data
	if _, ok := d.activities[a.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := d.users[a.UserID]; !ok {
		return repository.ErrInvalidReference
	}
	a.CreatedAt = r.s.now()
	d.activities[a.ID] = a
	return nil
}

func (r activities) ListByUser(_ context.Context, userID string, opts repository.ListOptions) ([]models.Activity, int, error) {
	r.s.mu.RLock()
	var matched []models.Activity
	for _, a := range r.s.data.activities {
		if a.UserID == userID {
			matched = append(matched, a)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, opts), len(matched), nil
}

// tokens ----------------------------------------------------------------------

type tokens struct{ s *Store }

func (r tokens) SaveVerification(_ context.Context, v models.Verification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.users[v.UserID]; !ok {
		return repository.ErrInvalidReference
	}
	v.CreatedAt = r.s.now()
	r.s.data.verifications[v.UserID] = v
	return nil
}

func (r tokens) GetVerification(_ context.Context, userID string) (models.Verification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.data.verifications[userID]
	if !ok {
		return models.Verification{}, repository.ErrNotFound
	}
	return v, nil
}

func (r tokens) DeleteVerification(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.verifications[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.data.verifications, userID)
	return nil
}

func (r tokens) SavePasswordReset(_ context.Context, pr models.PasswordReset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.users[pr.UserID]; !ok {
		return repository.ErrInvalidReference
	}
	pr.CreatedAt = r.s.now()
	r.s.data.resets[pr.UserID] = pr
	return nil
}

func (r tokens) GetPasswordReset(_ context.Context, userID string) (models.PasswordReset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	pr, ok := r.s.data.resets[userID]
	if !ok {
		return models.PasswordReset{}, repository.ErrNotFound
	}
	return pr, nil
}

func (r tokens) DeletePasswordReset(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.resets[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.data.resets, userID)
	return nil
}

func (r tokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for userID, v := range r.s.data.verifications {
		if v.CreatedAt.Before(before) {
			delete(r.s.data.verifications, userID)
			n++
		}
	}
	for userID, pr := range r.s.data.resets {
		if pr.CreatedAt.Before(before) {
			delete(r.s.data.resets, userID)
			n++
		}
	}
	return n, nil
}

// helpers ---------------------------------------------------------------------

func matches(name, search string) bool {
	return search == "" || strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

func less(opts repository.ListOptions, nameI, nameJ string, createdI, createdJ time.Time, idI, idJ string) bool {
	var cmp int
	if opts.Sort == repository.SortName {
		cmp = strings.Compare(nameI, nameJ)
	} else {
		cmp = createdI.Compare(createdJ)
	}
	if cmp == 0 {
		cmp = strings.Compare(idI, idJ)
	}
	if opts.Desc {
		return cmp > 0
	}
	return cmp < 0
}

func page[T any](items []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
