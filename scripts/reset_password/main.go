package main

import (
	"flag"
	"fmt"

	"tabungan/pkg/database"
	"tabungan/process/bootstrap"
)

func main() {
	username := flag.String("username", "", "username to reset")
	password := flag.String("password", "", "new plaintext password (min 6 chars)")
	flag.Parse()

	env := bootstrap.MustEnv()
	if *username == "" || *password == "" {
		env.Log.Fatal("--username and --password are required")
	}
	if err := database.ResetPassword(env.DB, *username, *password); err != nil {
		env.Log.WithError(err).Fatal("reset failed")
	}
	fmt.Printf("Password reset for user %s\n", *username)
}
