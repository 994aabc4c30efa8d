package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/entities"
	"github.com/hallshelf/hallshelf/internal/entrypoint"
)

type CreateUserCommand struct {
	Config       *config.Config
	DatabasePath string
	Username     string
	Email        string
	Password     string
	Role         string
	Out          io.Writer
}

func NewCreateUserCommand() *CreateUserCommand {
	return &CreateUserCommand{Out: os.Stdout}
}

func (cmd *CreateUserCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)

	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the SQLite database (defaults to DATABASE_PATH)")
	fs.StringVar(&cmd.Username, "username", "", "Username for the new account (required)")
	fs.StringVar(&cmd.Email, "email", "", "Email for the new account (required)")
	fs.StringVar(&cmd.Password, "password", "", "Password for the new account (required)")
	fs.StringVar(&cmd.Role, "role", string(entities.UserRoleAdmin), "Role: reader, volunteer or admin")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-user [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create an account directly in the database.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s create-user -username admin -email admin@example.org -password s3cret\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s create-user -username vol1 -email vol1@example.org -password s3cret -role volunteer\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Username == "" || cmd.Email == "" || cmd.Password == "" {
		fs.Usage()
		return fmt.Errorf("username, email and password are required")
	}
	if !entities.UserRole(cmd.Role).Valid() {
		return fmt.Errorf("invalid role %q", cmd.Role)
	}

	return nil
}

func (cmd *CreateUserCommand) Run() error {
	cfg := loadConfig(cmd.Config, cmd.DatabasePath)

	services, err := entrypoint.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer services.Close()

	user, err := services.Auth.CreateUser(context.Background(), auth.UserInput{
		Username: cmd.Username,
		Email:    cmd.Email,
		Password: cmd.Password,
		Role:     entities.UserRole(cmd.Role),
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	services.Audit.LogAuth(user.ID, "user_created", "cli", true)

	fmt.Fprintf(cmd.Out, "Created %s %q (id %d)\n", user.Role, user.Username, user.ID)
	return nil
}

// loadConfig returns cfg, or the environment configuration when it is nil,
// with the database path overridden when one was given.
func loadConfig(cfg *config.Config, dbPath string) *config.Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = dbPath
	}
	return cfg
}
