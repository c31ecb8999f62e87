package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/db"
	"github.com/foxzi/listmail/internal/email"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/repository"
	"github.com/foxzi/listmail/internal/web/auth"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <email>",
	Short: "Delete a user with everything they own",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var userResetPasswordCmd = &cobra.Command{
	Use:   "reset-password <email>",
	Short: "Reset user password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserResetPassword,
}

var userRoleCmd = &cobra.Command{
	Use:   "role <email> <user|manager|superuser>",
	Short: "Change the role of a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserRole,
}

var userBlockCmd = &cobra.Command{
	Use:   "block <email>",
	Short: "Block a user and end their sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserBlock,
}

var (
	userEmail    string
	userPassword string
	userName     string
	userRole     string
	userUnblock  bool
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "User email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "User password (will prompt if not provided)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "User name")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(models.RoleUser), "Role: user, manager or superuser")
	userCreateCmd.MarkFlagRequired("email")

	userResetPasswordCmd.Flags().StringVar(&userPassword, "password", "", "New password (will prompt if not provided)")
	userBlockCmd.Flags().BoolVar(&userUnblock, "unblock", false, "Unblock the user instead")

	userCmd.AddCommand(userCreateCmd, userListCmd, userDeleteCmd, userResetPasswordCmd, userRoleCmd, userBlockCmd)
	rootCmd.AddCommand(userCmd)
}

// withUsers loads the configuration and runs fn against the user repository
func withUsers(fn func(cfg *config.Config, users *repository.UserRepository, database *db.DB) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	return fn(cfg, repository.NewUserRepository(database.DB), database)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	role := models.Role(userRole)
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", userRole)
	}

	return withUsers(func(cfg *config.Config, users *repository.UserRepository, _ *db.DB) error {
		u, err := createUser(cfg, users, userEmail, userName, userPassword, role)
		if err != nil {
			return err
		}
		fmt.Printf("User %s created successfully (role: %s)\n", u.Email, u.Role)
		return nil
	})
}

// createUser validates the input, prompting for a password when none is
// given, and stores the user
func createUser(cfg *config.Config, users *repository.UserRepository, addr, name, password string, role models.Role) (*models.User, error) {
	addr, err := email.Normalize(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid email address")
	}

	if password == "" {
		if password, err = promptPassword(); err != nil {
			return nil, err
		}
	}
	hash, err := auth.HashPassword(password, cfg.Auth.MinPasswordLength)
	if err != nil {
		return nil, err
	}

	u := &models.User{Email: addr, Name: name, PasswordHash: hash, Role: role}
	if err := users.Create(u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, fmt.Errorf("user with email %s already exists", addr)
		}
		return nil, err
	}
	return u, nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	return withUsers(func(_ *config.Config, users *repository.UserRepository, _ *db.DB) error {
		list, _, err := users.List(models.UserFilter{})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tSTATUS\tCREATED")
		for _, u := range list {
			status := "active"
			if u.Blocked {
				status = "blocked"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role, status, u.CreatedAt.Format("2006-01-02 15:04"))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nTotal: %d users\n", len(list))
		return nil
	})
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	return withUsers(func(_ *config.Config, users *repository.UserRepository, _ *db.DB) error {
		u, err := findUser(users, args[0])
		if err != nil {
			return err
		}
		if err := users.Delete(u.ID); err != nil {
			return err
		}
		fmt.Printf("User %s deleted\n", u.Email)
		return nil
	})
}

func runUserResetPassword(cmd *cobra.Command, args []string) error {
	return withUsers(func(cfg *config.Config, users *repository.UserRepository, _ *db.DB) error {
		u, err := findUser(users, args[0])
		if err != nil {
			return err
		}

		password := userPassword
		if password == "" {
			if password, err = promptPassword(); err != nil {
				return err
			}
		}
		hash, err := auth.HashPassword(password, cfg.Auth.MinPasswordLength)
		if err != nil {
			return err
		}

		if err := users.UpdatePassword(u.ID, hash); err != nil {
			return err
		}
		fmt.Printf("Password for %s has been reset\n", u.Email)
		return nil
	})
}

func runUserRole(cmd *cobra.Command, args []string) error {
	role := models.Role(args[1])
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", args[1])
	}

	return withUsers(func(_ *config.Config, users *repository.UserRepository, _ *db.DB) error {
		u, err := findUser(users, args[0])
		if err != nil {
			return err
		}
		if err := users.SetRole(u.ID, role); err != nil {
			return err
		}
		fmt.Printf("User %s is now %s\n", u.Email, role)
		return nil
	})
}

func runUserBlock(cmd *cobra.Command, args []string) error {
	return withUsers(func(_ *config.Config, users *repository.UserRepository, _ *db.DB) error {
		u, err := findUser(users, args[0])
		if err != nil {
			return err
		}
		if err := users.SetBlocked(u.ID, !userUnblock); err != nil {
			return err
		}
		if userUnblock {
			fmt.Printf("User %s unblocked\n", u.Email)
		} else {
			fmt.Printf("User %s blocked\n", u.Email)
		}
		return nil
	})
}

func findUser(users *repository.UserRepository, addr string) (*models.User, error) {
	u, err := users.GetByEmail(strings.TrimSpace(addr))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && u == nil) {
		return nil, fmt.Errorf("user %s not found", addr)
	}
	return u, err
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("password is required (use --password when not running in a terminal)")
	}

	fmt.Print("Enter password: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
