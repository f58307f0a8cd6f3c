package seeder

import (
	"context"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/vnmchuo/doc-gateway/internal/account"
)

const (
	TestUsername = "dev-user"
	TestPassword = "dev-password-12345"
)

func SeedTestUser(ctx context.Context, store account.Store) {
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[Seeder] failed to hash password: %v", err)
		return
	}

	user, err := store.CreateUser(ctx, TestUsername, string(hash))
	if err != nil {
		if errors.Is(err, account.ErrUsernameExists) {
			log.Printf("[Seeder] Test user already exists, skipping")
			return
		}
		log.Printf("[Seeder] failed to create test user: %v", err)
		return
	}
	log.Printf("[Seeder] Test user created successfully")
	log.Printf("[Seeder] Username: %s", TestUsername)
	log.Printf("[Seeder] UserID: %d", user.ID)
}
