// Command manage runs administrative account tasks against the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/migrations"
	"github.com/ovaphlow/pitchfork/service-account/internal/user"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

type app struct {
	logger *zap.SugaredLogger
}

func (a *app) open() (*sqlx.DB, error) {
	cfg, err := database.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(db, "postgres"), nil
}

func (a *app) service(db *sqlx.DB, node int64) (*user.UserService, error) {
	ids, err := utilities.NewSnowflakeGenerator(node)
	if err != nil {
		return nil, err
	}
	return user.NewUserService(db, nil, ids, nil, a.logger)
}

type createUserCmd struct {
	app       *app
	Username  string `long:"username" required:"true" description:"login name"`
	Email     string `long:"email" required:"true" description:"email address"`
	Password  string `long:"password" description:"password; leave empty for an unusable password"`
	FirstName string `long:"first-name"`
	LastName  string `long:"last-name"`
	Staff     bool   `long:"staff" description:"grant admin site access"`
	Superuser bool   `long:"superuser"`
	Node      int64  `long:"node" default:"1" description:"snowflake node id"`
}

func (c *createUserCmd) Execute(args []string) error {
	db, err := c.app.open()
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := c.app.service(db, c.Node)
	if err != nil {
		return err
	}
	u, err := svc.CreateUser(context.Background(), user.CreateUserInput{
		Username:    c.Username,
		Email:       c.Email,
		Password:    c.Password,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		IsStaff:     c.Staff || c.Superuser,
		IsSuperuser: c.Superuser,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created user %d (%s), authtoken %s\n", u.ID, u.Username, u.AuthToken)
	return nil
}

type deactivateCmd struct {
	app *app
	ID  int64 `long:"id" required:"true" description:"user id"`
}

func (c *deactivateCmd) Execute(args []string) error {
	db, err := c.app.open()
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := c.app.service(db, 1)
	if err != nil {
		return err
	}
	return svc.Deactivate(context.Background(), c.ID)
}

type deleteUserCmd struct {
	app *app
	ID  int64 `long:"id" required:"true" description:"user id"`
}

func (c *deleteUserCmd) Execute(args []string) error {
	db, err := c.app.open()
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := c.app.service(db, 1)
	if err != nil {
		return err
	}
	return svc.DeleteUser(context.Background(), c.ID)
}

type migrateCmd struct {
	app *app
}

func (c *migrateCmd) Execute(args []string) error {
	db, err := c.app.open()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrations.Up(context.Background(), db.DB); err != nil {
		return err
	}
	c.app.logger.Info("migrations applied")
	return nil
}

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	a := &app{logger: lg.Sugar()}

	var opts struct{}
	parser := flags.NewParser(&opts, flags.Default)
	commands := []struct {
		name, short string
		data        interface{}
	}{
		{"createuser", "Create a user and its profile", &createUserCmd{app: a}},
		{"deactivate", "Soft-delete a user", &deactivateCmd{app: a}},
		{"deleteuser", "Permanently delete a user and its profile", &deleteUserCmd{app: a}},
		{"migrate", "Apply database migrations", &migrateCmd{app: a}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			fmt.Fprintf(os.Stderr, "add command %s: %v\n", c.name, err)
			os.Exit(1)
		}
	}

	if _, err := parser.Parse(); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
