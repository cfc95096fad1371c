package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rca-academy/school_mis/pkg/db"
	"github.com/rca-academy/school_mis/pkg/hash"
	"github.com/rca-academy/school_mis/pkg/tokens"
	"github.com/rca-academy/school_mis/services/auth/internal/authz"
	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/models"
	"github.com/rca-academy/school_mis/services/auth/internal/notify"
	"github.com/rca-academy/school_mis/services/auth/internal/repo"
	"github.com/rca-academy/school_mis/services/auth/internal/revocation"
	"github.com/rca-academy/school_mis/services/auth/internal/seed"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef-school-mis")

const (
	teacherEmail    = "teacher@rca.ac.rw"
	teacherPassword = "Teacher@123"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordedEvent struct {
	Topic string
	Event *notify.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(_ context.Context, topic string, ev *notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Topic: topic, Event: ev})
	return nil
}

func (p *fakePublisher) ofType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	svc   *AuthService
	repo  *repo.GormRepo
	clock *testClock
	pub   *fakePublisher
	redis *miniredis.Miniredis
}

func newTestEnv(t *testing.T, opts ...tokens.Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	gdb, err := db.Open(ctx, db.Options{Driver: db.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, gdb.AutoMigrate(models.All()...))

	r := repo.New(gdb)
	require.NoError(t, seed.Roles(ctx, r, seed.DefaultRoles))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{t: time.Now().UTC().Truncate(time.Second)}
	codec, err := tokens.NewCodec(testSecret, append([]tokens.Option{tokens.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)

	settings := DefaultSettings()
	settings.RecoveryMinDuration = 0

	pub := &fakePublisher{}
	svc := &AuthService{
		Store:     r,
		Hasher:    hash.NewHasherWithCost(bcrypt.MinCost),
		Codec:     codec,
		Resolver:  &authz.Resolver{},
		Denylist:  revocation.NewRedisStore(rdb),
		Publisher: pub,
		Settings:  settings,
	}
	t.Cleanup(svc.Wait)

	return &testEnv{svc: svc, repo: r, clock: clock, pub: pub, redis: mr}
}

func (e *testEnv) registerTeacher(t *testing.T) *AuthResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), RegisterInput{
		Email:     teacherEmail,
		Password:  teacherPassword,
		FirstName: "Jane",
		LastName:  "Mukamana",
		Role:      seed.RoleTeacher,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) setStatus(t *testing.T, id uuid.UUID, status domain.Status) {
	t.Helper()
	require.NoError(t, e.repo.DB.Model(&models.User{}).Where("id = ?", id).Update("status", string(status)).Error)
}

func decodeData[T any](t *testing.T, ev *notify.Event) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ev.Data, &out))
	return out
}
