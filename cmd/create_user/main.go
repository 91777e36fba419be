package main

import (
	"errors"
	"fmt"
	"os"

	"tabungan/models"
	"tabungan/pkg/database"
	"tabungan/process/bootstrap"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: go run ./cmd/create_user <username> <password> [administrator|bendahara|operator] [display name]")
		os.Exit(2)
	}
	username, password := os.Args[1], os.Args[2]
	role := models.RoleOperator
	if len(os.Args) > 3 {
		role = os.Args[3]
	}
	nama := username
	if len(os.Args) > 4 {
		nama = os.Args[4]
	}

	env := bootstrap.MustEnv()
	if err := database.SeedRoles(env.DB); err != nil {
		env.Log.WithError(err).Fatal("ensure roles")
	}
	err := database.CreateUser(env.DB, username, password, role, nama)
	switch {
	case errors.Is(err, database.ErrUserExists):
		fmt.Printf("user %s already exists\n", username)
	case err != nil:
		env.Log.WithError(err).Fatal("failed to create user")
	default:
		fmt.Printf("created user %s role=%s\n", username, role)
	}
}
