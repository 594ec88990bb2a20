// Package memory is an in-process domain.Store used for development and tests.
// It enforces the same uniqueness and reference rules as the PostgreSQL schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fintrack/fintrack/internal/domain"
)

type clientRecord struct {
	client domain.Client // Tier is nil while stored
	tierID int64
}

type data struct {
	users    map[int64]domain.User
	tiers    map[int64]domain.AccessTier
	clients  map[int64]clientRecord
	profiles map[int64]domain.Profile

	// seq is shared by every snapshot, so IDs handed out inside a failed
	// transaction are never reused, as with database sequences.
	seq *sequences
}

type sequences struct {
	mu      sync.Mutex
	user    int64
	tier    int64
	client  int64
	profile int64
}

func (q *sequences) next(counter *int64) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	*counter++
	return *counter
}

// advance moves the counter past an explicitly chosen ID
func (q *sequences) advance(counter *int64, id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if id > *counter {
		*counter = id
	}
}

func newData() *data {
	return &data{
		users:    make(map[int64]domain.User),
		tiers:    make(map[int64]domain.AccessTier),
		clients:  make(map[int64]clientRecord),
		profiles: make(map[int64]domain.Profile),
		seq:      &sequences{},
	}
}

func (d *data) clone() *data {
	out := &data{
		users:    make(map[int64]domain.User, len(d.users)),
		tiers:    make(map[int64]domain.AccessTier, len(d.tiers)),
		clients:  make(map[int64]clientRecord, len(d.clients)),
		profiles: make(map[int64]domain.Profile, len(d.profiles)),
		seq:      d.seq,
	}
	for id, u := range d.users {
		out.users[id] = u
	}
	for id, t := range d.tiers {
		out.tiers[id] = t
	}
	for id, rec := range d.clients {
		out.clients[id] = rec
	}
	for id, p := range d.profiles {
		out.profiles[id] = p
	}
	return out
}

// Store keeps every entity in maps. Writers are serialized by txMu so a transaction
// works on a private copy and publishes it in one swap when it succeeds.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *data
	now  func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		data: newData(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() domain.UserRepository       { return userRepo{s} }
func (s *Store) Tiers() domain.TierRepository       { return tierRepo{s} }
func (s *Store) Clients() domain.ClientRepository   { return clientRepo{s} }
func (s *Store) Profiles() domain.ProfileRepository { return profileRepo{s} }

// WithinTx runs fn against a snapshot and commits it only when fn returns nil
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	tx := &Store{data: snapshot, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = tx.data
	s.mu.Unlock()
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) read(fn func(d *data) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) write(fn func(d *data) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// users

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.s.write(func(d *data) error {
		for _, u := range d.users {
			if u.Username == user.Username {
				return &domain.ConflictError{Entity: "user", Field: "username"}
			}
			if strings.EqualFold(u.Email, user.Email) {
				return &domain.ConflictError{Entity: "user", Field: "email"}
			}
		}

		if user.ID == 0 {
			user.ID = d.seq.next(&d.seq.user)
		} else if _, taken := d.users[user.ID]; taken {
			return &domain.ConflictError{Entity: "user", Field: "id"}
		} else {
			d.seq.advance(&d.seq.user, user.ID)
		}

		now := r.s.now()
		user.CreatedAt = now
		user.UpdatedAt = now
		d.users[user.ID] = *user
		return nil
	})
}

func (r userRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := r.s.read(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return &domain.NotFoundError{Entity: "user"}
		}
		out = &u
		return nil
	})
	return out, err
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r userRepo) find(match func(domain.User) bool) (*domain.User, error) {
	var out *domain.User
	err := r.s.read(func(d *data) error {
		for _, u := range d.users {
			if match(u) {
				out = &u
				return nil
			}
		}
		return &domain.NotFoundError{Entity: "user"}
	})
	return out, err
}

func (r userRepo) Update(ctx context.Context, user *domain.User) error {
	return r.s.write(func(d *data) error {
		if _, ok := d.users[user.ID]; !ok {
			return &domain.NotFoundError{Entity: "user"}
		}
		for id, u := range d.users {
			if id == user.ID {
				continue
			}
			if u.Username == user.Username {
				return &domain.ConflictError{Entity: "user", Field: "username"}
			}
			if strings.EqualFold(u.Email, user.Email) {
				return &domain.ConflictError{Entity: "user", Field: "email"}
			}
		}
		user.UpdatedAt = r.s.now()
		d.users[user.ID] = *user
		return nil
	})
}

func (r userRepo) ListWithoutClient(ctx context.Context, limit int) ([]*domain.User, error) {
	var out []*domain.User
	err := r.s.read(func(d *data) error {
		linked := make(map[int64]bool, len(d.clients))
		for _, rec := range d.clients {
			linked[rec.client.UserID] = true
		}
		for _, u := range d.users {
			if !linked[u.ID] {
				u := u
				out = append(out, &u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// tiers

type tierRepo struct{ s *Store }

func (r tierRepo) GetOrCreate(ctx context.Context, tier *domain.AccessTier) (*domain.AccessTier, bool, error) {
	var (
		out     domain.AccessTier
		created bool
	)
	err := r.s.write(func(d *data) error {
		for _, t := range d.tiers {
			if t.Name == tier.Name {
				out = t
				return nil
			}
		}
		if tier.MaxTransactionsPerMonth <= 0 {
			return domain.ErrInvalidInput
		}

		out = *tier
		out.ID = d.seq.next(&d.seq.tier)
		now := r.s.now()
		out.CreatedAt = now
		out.UpdatedAt = now
		d.tiers[out.ID] = out
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (r tierRepo) GetByID(ctx context.Context, id int64) (*domain.AccessTier, error) {
	var out *domain.AccessTier
	err := r.s.read(func(d *data) error {
		t, ok := d.tiers[id]
		if !ok {
			return &domain.NotFoundError{Entity: "access tier"}
		}
		out = &t
		return nil
	})
	return out, err
}

func (r tierRepo) GetByName(ctx context.Context, name string) (*domain.AccessTier, error) {
	var out *domain.AccessTier
	err := r.s.read(func(d *data) error {
		for _, t := range d.tiers {
			if t.Name == name {
				out = &t
				return nil
			}
		}
		return &domain.NotFoundError{Entity: "access tier"}
	})
	return out, err
}

func (r tierRepo) List(ctx context.Context) ([]*domain.AccessTier, error) {
	var out []*domain.AccessTier
	_ = r.s.read(func(d *data) error {
		for _, t := range d.tiers {
			out = append(out, &t)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r tierRepo) Update(ctx context.Context, tier *domain.AccessTier) error {
	return r.s.write(func(d *data) error {
		if _, ok := d.tiers[tier.ID]; !ok {
			return &domain.NotFoundError{Entity: "access tier"}
		}
		if tier.MaxTransactionsPerMonth <= 0 {
			return domain.ErrInvalidInput
		}
		for id, t := range d.tiers {
			if id != tier.ID && t.Name == tier.Name {
				return &domain.ConflictError{Entity: "access tier", Field: "name"}
			}
		}
		tier.UpdatedAt = r.s.now()
		d.tiers[tier.ID] = *tier
		return nil
	})
}

func (r tierRepo) Delete(ctx context.Context, id int64) error {
	return r.s.write(func(d *data) error {
		if _, ok := d.tiers[id]; !ok {
			return &domain.NotFoundError{Entity: "access tier"}
		}
		for _, rec := range d.clients {
			if rec.tierID == id {
				return domain.ErrTierInUse
			}
		}
		delete(d.tiers, id)
		return nil
	})
}

// clients

type clientRepo struct{ s *Store }

func (d *data) resolve(rec clientRecord) *domain.Client {
	c := rec.client
	tier := d.tiers[rec.tierID]
	c.Tier = &tier
	if rec.client.LastLoginDate != nil {
		t := *rec.client.LastLoginDate
		c.LastLoginDate = &t
	}
	return &c
}

func (d *data) checkClientUnique(c *domain.Client) error {
	for id, rec := range d.clients {
		if id == c.ID {
			continue
		}
		switch {
		case rec.client.UserID == c.UserID:
			return &domain.ConflictError{Entity: "client", Field: "user_id"}
		case rec.client.Phone == c.Phone:
			return &domain.ConflictError{Entity: "client", Field: "phone"}
		case rec.client.Email == c.Email:
			return &domain.ConflictError{Entity: "client", Field: "email"}
		}
	}
	return nil
}

func (r clientRepo) Create(ctx context.Context, client *domain.Client) error {
	if client.Tier == nil {
		return domain.ErrInvalidInput
	}
	return r.s.write(func(d *data) error {
		if _, ok := d.users[client.UserID]; !ok {
			return &domain.NotFoundError{Entity: "user"}
		}
		if _, ok := d.tiers[client.Tier.ID]; !ok {
			return &domain.NotFoundError{Entity: "access tier"}
		}
		client.ID = 0
		if err := d.checkClientUnique(client); err != nil {
			return err
		}

		client.ID = d.seq.next(&d.seq.client)
		now := r.s.now()
		client.RegistrationDate = now
		client.UpdatedAt = now

		stored := *client
		stored.Tier = nil
		d.clients[client.ID] = clientRecord{client: stored, tierID: client.Tier.ID}
		return nil
	})
}

func (r clientRepo) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	var out *domain.Client
	err := r.s.read(func(d *data) error {
		rec, ok := d.clients[id]
		if !ok {
			return &domain.NotFoundError{Entity: "client"}
		}
		out = d.resolve(rec)
		return nil
	})
	return out, err
}

func (r clientRepo) GetByUserID(ctx context.Context, userID int64) (*domain.Client, error) {
	var out *domain.Client
	err := r.s.read(func(d *data) error {
		for _, rec := range d.clients {
			if rec.client.UserID == userID {
				out = d.resolve(rec)
				return nil
			}
		}
		return &domain.NotFoundError{Entity: "client"}
	})
	return out, err
}

func (r clientRepo) Update(ctx context.Context, client *domain.Client) error {
	if client.Tier == nil {
		return domain.ErrInvalidInput
	}
	return r.s.write(func(d *data) error {
		existing, ok := d.clients[client.ID]
		if !ok {
			return &domain.NotFoundError{Entity: "client"}
		}
		if _, ok := d.tiers[client.Tier.ID]; !ok {
			return &domain.NotFoundError{Entity: "access tier"}
		}
		client.UserID = existing.client.UserID
		if err := d.checkClientUnique(client); err != nil {
			return err
		}

		client.RegistrationDate = existing.client.RegistrationDate
		client.UpdatedAt = r.s.now()

		stored := *client
		stored.Tier = nil
		d.clients[client.ID] = clientRecord{client: stored, tierID: client.Tier.ID}
		return nil
	})
}

func (r clientRepo) UpdateTier(ctx context.Context, clientID, tierID int64) error {
	return r.s.write(func(d *data) error {
		rec, ok := d.clients[clientID]
		if !ok {
			return &domain.NotFoundError{Entity: "client"}
		}
		if _, ok := d.tiers[tierID]; !ok {
			return &domain.NotFoundError{Entity: "access tier"}
		}
		rec.tierID = tierID
		rec.client.UpdatedAt = r.s.now()
		d.clients[clientID] = rec
		return nil
	})
}

func (r clientRepo) TouchLastLogin(ctx context.Context, clientID int64, at time.Time) error {
	return r.s.write(func(d *data) error {
		rec, ok := d.clients[clientID]
		if !ok {
			return &domain.NotFoundError{Entity: "client"}
		}
		rec.client.LastLoginDate = &at
		d.clients[clientID] = rec
		return nil
	})
}

func (r clientRepo) List(ctx context.Context, filter domain.ClientFilter, limit, offset int) ([]*domain.Client, int, error) {
	var matched []*domain.Client
	_ = r.s.read(func(d *data) error {
		for _, rec := range d.clients {
			if matchesFilter(rec, filter) {
				matched = append(matched, d.resolve(rec))
			}
		}
		return nil
	})

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func matchesFilter(rec clientRecord, f domain.ClientFilter) bool {
	c := rec.client
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(c.FirstName), q) &&
			!strings.Contains(strings.ToLower(c.LastName), q) &&
			!strings.Contains(strings.ToLower(c.Phone), q) &&
			!strings.Contains(strings.ToLower(c.Email), q) {
			return false
		}
	}
	if f.TierID != 0 && rec.tierID != f.TierID {
		return false
	}
	if f.IsActive != nil && c.IsActive != *f.IsActive {
		return false
	}
	if city := strings.ToLower(strings.TrimSpace(f.City)); city != "" {
		if !strings.Contains(strings.ToLower(c.City), city) {
			return false
		}
	}
	return true
}

func (r clientRepo) Statistics(ctx context.Context) (domain.ClientStatistics, error) {
	var stats domain.ClientStatistics
	_ = r.s.read(func(d *data) error {
		for _, rec := range d.clients {
			stats.Total++
			if rec.client.IsActive {
				stats.Active++
			}
			if d.tiers[rec.tierID].IsPremium {
				stats.Premium++
			} else {
				stats.Basic++
			}
		}
		return nil
	})
	return stats, nil
}

// profiles

type profileRepo struct{ s *Store }

func (r profileRepo) Create(ctx context.Context, profile *domain.Profile) error {
	return r.s.write(func(d *data) error {
		if _, ok := d.users[profile.UserID]; !ok {
			return &domain.NotFoundError{Entity: "user"}
		}
		profile.ID = 0
		if err := d.checkProfile(profile); err != nil {
			return err
		}
		profile.ID = d.seq.next(&d.seq.profile)
		now := r.s.now()
		profile.CreatedAt = now
		profile.UpdatedAt = now
		d.profiles[profile.ID] = copyProfile(*profile)
		return nil
	})
}

func (r profileRepo) GetByUserID(ctx context.Context, userID int64) (*domain.Profile, error) {
	var out *domain.Profile
	err := r.s.read(func(d *data) error {
		for _, p := range d.profiles {
			if p.UserID == userID {
				p = copyProfile(p)
				out = &p
				return nil
			}
		}
		return &domain.NotFoundError{Entity: "profile"}
	})
	return out, err
}

func (r profileRepo) Update(ctx context.Context, profile *domain.Profile) error {
	return r.s.write(func(d *data) error {
		existing, ok := d.profiles[profile.ID]
		if !ok {
			return &domain.NotFoundError{Entity: "profile"}
		}
		profile.UserID = existing.UserID
		if err := d.checkProfile(profile); err != nil {
			return err
		}
		profile.CreatedAt = existing.CreatedAt
		profile.UpdatedAt = r.s.now()
		d.profiles[profile.ID] = copyProfile(*profile)
		return nil
	})
}

func (d *data) checkProfile(profile *domain.Profile) error {
	if profile.ClientID != nil {
		if _, ok := d.clients[*profile.ClientID]; !ok {
			return &domain.NotFoundError{Entity: "client"}
		}
	}
	for id, p := range d.profiles {
		if id == profile.ID {
			continue
		}
		if p.UserID == profile.UserID {
			return &domain.ConflictError{Entity: "profile", Field: "user_id"}
		}
		if p.ClientID != nil && profile.ClientID != nil && *p.ClientID == *profile.ClientID {
			return &domain.ConflictError{Entity: "profile", Field: "client_id"}
		}
	}
	return nil
}

func copyProfile(p domain.Profile) domain.Profile {
	if p.ClientID != nil {
		id := *p.ClientID
		p.ClientID = &id
	}
	return p
}
