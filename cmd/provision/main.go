package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trademart/server/internal/db"
	"github.com/trademart/server/internal/model"
	"github.com/trademart/server/internal/repo"
)

// Provisions an account. Admin accounts additionally require the secret
// key used as the second login-init factor.
//
//	go run ./cmd/provision -email admin@x.com -password 'Pw1' -role admin -secret-key 'SECRET'
func main() {
	_ = godotenv.Load(".env")

	var (
		email     = flag.String("email", "", "account email (required)")
		password  = flag.String("password", "", "account password (required)")
		role      = flag.String("role", "vendor", "account role: admin or vendor")
		secretKey = flag.String("secret-key", "", "admin secret key (required for admin)")
	)
	flag.Parse()

	*email = strings.TrimSpace(*email)
	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	accountRole := model.Role(*role)
	if !accountRole.Valid() {
		log.Fatalf("invalid role %q (want admin or vendor)", *role)
	}
	if accountRole == model.RoleAdmin && *secretKey == "" {
		log.Fatal("-secret-key is required for admin accounts")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	database, err := db.Open(ctx, databaseURL, logger)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	account := &model.Account{
		Email:        *email,
		PasswordHash: string(passwordHash),
		Role:         accountRole,
	}
	if accountRole == model.RoleAdmin {
		secretKeyHash, err := bcrypt.GenerateFromPassword([]byte(*secretKey), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash secret key: %v", err)
		}
		account.SecretKeyHash = string(secretKeyHash)
	}

	if err := repo.NewAccountRepo(database).Create(ctx, account); err != nil {
		log.Fatalf("create account: %v", err)
	}

	fmt.Printf("created %s account %s (%s)\n", account.Role, account.Email, account.ID)
}
