package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/bigchat/internal/config"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/internal/services"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/pg"
)

const usage = `usage:
  cli migrate [up|down|status|redo] [--dir=./migrations] [--env=.env]
  cli create-staff --username=NAME --password=SECRET [--name=FULL] [--role=admin|support] [--env=.env]`

func main() {
	defer logger.Sync()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	err := config.Load(config.EnvPathFromArgs(os.Args, ".env"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		err = migrate()
	case "create-staff":
		err = createStaff()
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// main.go migrate up --dir=./migrations
func migrate() error {
	command := "up"
	if len(os.Args) > 2 && !strings.HasPrefix(os.Args[2], "--") {
		command = os.Args[2]
	}
	dir := argValue("dir", "./migrations")
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir %s: %w", dir, err)
	}
	return pg.Migrate(config.Get().PostgresWrite(), dir, command)
}

func createStaff() error {
	cfg := config.Get()
	write, err := pg.Create(cfg.PostgresWrite(), false)
	if err != nil {
		return fmt.Errorf("connect pg: %w", err)
	}
	staff := services.NewStaffService(repository.NewStaffUserRepository(pg.NewDB(write, write)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	u, err := staff.Bootstrap(ctx, model.StaffCreateRequest{
		Username: argValue("username", ""),
		Name:     argValue("name", ""),
		Password: argValue("password", ""),
		Role:     model.StaffRole(argValue("role", string(model.RoleAdmin))),
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s user %s (%s)\n", u.Role, u.Username, u.ID)
	return nil
}

func argValue(name, fallback string) string {
	for _, v := range os.Args[2:] {
		if value, ok := strings.CutPrefix(v, "--"+name+"="); ok {
			return value
		}
	}
	return fallback
}
