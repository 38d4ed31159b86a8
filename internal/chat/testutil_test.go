package chat

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chat-server/internal/models"
)

var testDBSeq atomic.Int64

// newTestDB opens a fresh shared in-memory SQLite database. The shared cache
// keeps the schema visible across pooled connections.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:chattest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// createUser inserts a user row directly; password hashing is not under test
// here.
func createUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()

	u := models.User{
		Username:     username,
		PasswordHash: "x",
		Timezone:     "UTC",
		CreatedAt:    1000,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// fixedClock returns a Clock stuck at the given instant.
func fixedClock(at int64) Clock {
	return func() int64 { return at }
}

// stepClock returns a Clock that yields the given values in order and then
// repeats the last one.
func stepClock(values ...int64) Clock {
	var i atomic.Int64
	return func() int64 {
		n := i.Add(1) - 1
		if int(n) >= len(values) {
			n = int64(len(values) - 1)
		}
		return values[n]
	}
}
