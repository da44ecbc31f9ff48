package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/campus-loyalty/api/validators"
	"github.com/angelmondragon/campus-loyalty/internal/users"
	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/migrate"
	"github.com/angelmondragon/campus-loyalty/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", migrate.CmdUp, "command: up|up-by-one|down|redo|reset|status|version|create|validate|createsu")
	dir := flag.String("dir", "", "migrations directory on disk (default: the set embedded in this binary; create uses "+migrate.SourceDir+")")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	utorid := flag.String("utorid", "", "superuser utorid (for createsu)")
	email := flag.String("email", "", "superuser email (for createsu)")
	password := flag.String("password", "", "superuser password (for createsu)")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.Create(target, *name, time.Now())
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(migrate.Source(*dir)); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if *cmd == "createsu" {
		user, err := createSuperuser(ctx, dbClient, cfg.Password, *utorid, *email, *password)
		if err != nil {
			fail("createsu failed: %v", err)
		}
		logg.Info(logg.WithUtorid(ctx, user.Utorid), "superuser created")
		fmt.Println("created superuser:", user.Utorid)
		return
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	var target int64
	if *cmd == migrate.CmdVersion {
		target, err = strconv.ParseInt(*version, 10, 64)
		if err != nil {
			fail("-version must be YYYYMMDDHHMMSS: %v", err)
		}
	}
	m, err := migrate.New(sqlDB, migrate.Source(*dir), logg)
	requireResource(ctx, logg, "goose provider", err)
	if err := m.Apply(ctx, *cmd, target); err != nil {
		fail("migrate %s failed: %v", *cmd, err)
	}
	logg.Info(ctx, "migrate finished")
}

// createSuperuser inserts a verified superuser. The password must satisfy the
// same policy as a reset.
func createSuperuser(ctx context.Context, client *db.Client, pwCfg config.PasswordConfig, utorid, email, password string) (*models.User, error) {
	utorid = strings.ToLower(strings.TrimSpace(utorid))
	email = strings.ToLower(strings.TrimSpace(email))
	if utorid == "" || email == "" || password == "" {
		return nil, fmt.Errorf("-utorid, -email and -password are required")
	}
	if !validators.IsCampusEmail(email) {
		return nil, fmt.Errorf("email must be a University of Toronto address")
	}
	if err := security.ValidatePasswordPolicy(password); err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(password, pwCfg)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Utorid:       utorid,
		Name:         "Super User",
		Email:        email,
		Role:         enums.RoleSuperuser,
		Verified:     true,
		PasswordHash: &hash,
	}
	repo := users.NewRepository(client.DB())
	if err := repo.CreateWithTx(client.DB().WithContext(ctx), user); err != nil {
		return nil, err
	}
	return user, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
