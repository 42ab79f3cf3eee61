package migration

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

type step struct {
	name string
	run  func(*Migration) error
}

var (
	stepsMu sync.Mutex
	steps   []step
)

// Migration is passed to each migration step. DB is set by RunAll.
type Migration struct {
	DB   *gorm.DB
	logs []string
}

func (m *Migration) Log(v ...interface{}) {
	m.logs = append(m.logs, fmt.Sprint(v...))
}

func (m *Migration) Logs() []string {
	return append([]string(nil), m.logs...)
}

// Register appends a data migration. Steps must be idempotent: RunAll executes every
// step on each start.
func Register(name string, fn func(*Migration) error) {
	stepsMu.Lock()
	defer stepsMu.Unlock()
	for _, s := range steps {
		if s.name == name {
			return
		}
	}
	steps = append(steps, step{name: name, run: fn})
}

// RunAll runs all registered migrations in order. Used for data/behavior one-shots; schema is synced via db.SyncSchema.
func RunAll(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	stepsMu.Lock()
	pending := append([]step(nil), steps...)
	stepsMu.Unlock()

	ctx := &Migration{DB: db}
	for _, s := range pending {
		ctx.logs = nil
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", s.name, err)
		}
	}
	return nil
}
