package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cavelog/cavelog/internal/app"
	"github.com/cavelog/cavelog/internal/config"
	"github.com/cavelog/cavelog/internal/seed"

	log "github.com/sirupsen/logrus"
)

const usage = `usage: cavelog [-config path] <command> [args]

commands:
  serve                  run the HTTP API (default)
  migrate                create or update the database schema
  init-config            write a starter config file
  createsuperuser        create a staff account
  prune_inactive_users   delete accounts that never verified their email
  delete_invalid_photos  remove stale unconfirmed photo uploads
  notify_all_users       send a notification to every user: <url> <message...>
  maketestdata           generate development data
  mailer                 deliver queued email
`

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:], os.Stdin, os.Stdout); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses global flags, loads config and dispatches the command.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("cavelog", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	fs.Usage = func() { _, _ = fmt.Fprint(fs.Output(), usage) }
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	command := "serve"
	rest := fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	config.LoadDotEnv()
	configPath := config.ResolveConfigPath(*cfgPath)

	if command == "init-config" {
		return runInitConfig(configPath, rest)
	}

	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	cfg.ConfigureLogging()

	switch command {
	case "serve":
		return app.RunServer(ctx, cfg)
	case "migrate":
		return app.Migrate(ctx, cfg)
	case "createsuperuser":
		return runCreateSuperuser(ctx, cfg, rest)
	case "prune_inactive_users":
		_, errPrune := app.PruneInactiveUsers(ctx, cfg)
		return errPrune
	case "delete_invalid_photos":
		res, errSweep := app.DeleteInvalidPhotos(ctx, cfg)
		if errSweep != nil {
			return errSweep
		}
		_, _ = fmt.Fprintf(stdout, "deleted %d invalid photos, marked %d orphaned photos deleted\n", res.DeletedInvalid, res.MarkedOrphans)
		return nil
	case "notify_all_users":
		return runNotifyAll(ctx, cfg, rest, stdin, stdout)
	case "maketestdata":
		return runMakeTestData(ctx, cfg, rest, stdout)
	case "mailer":
		mfs := flag.NewFlagSet("mailer", flag.ContinueOnError)
		once := mfs.Bool("once", false, "drain the queue and exit")
		if errParse := mfs.Parse(rest); errParse != nil {
			return errParse
		}
		return app.RunMailer(ctx, cfg, *once)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runInitConfig(configPath string, args []string) error {
	ifs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	databaseURL := ifs.String("database-url", "", "database URL (defaults to a local sqlite file)")
	port := ifs.Int("port", 8000, "HTTP port")
	if errParse := ifs.Parse(args); errParse != nil {
		return errParse
	}
	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}
	if errWrite := app.WriteConfigFile(configPath, *databaseURL, *port); errWrite != nil {
		return errWrite
	}
	log.Infof("wrote %s", configPath)
	return nil
}

func runCreateSuperuser(ctx context.Context, cfg config.Config, args []string) error {
	sfs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	username := sfs.String("username", "", "username")
	email := sfs.String("email", "", "email address")
	password := sfs.String("password", "", "password (or env CAVELOG_SUPERUSER_PASSWORD)")
	if errParse := sfs.Parse(args); errParse != nil {
		return errParse
	}
	if *password == "" {
		*password = os.Getenv("CAVELOG_SUPERUSER_PASSWORD")
	}
	return app.CreateSuperuser(ctx, cfg, *username, *email, *password)
}

func runNotifyAll(ctx context.Context, cfg config.Config, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: notify_all_users <url> <message...>")
	}
	url := args[0]
	message := strings.Join(args[1:], " ")

	_, _ = fmt.Fprintf(stdout, "Message: %s\nURL: %s\nSend this notification to every user? Type 'yes' to continue: ", message, url)
	answer, errRead := bufio.NewReader(stdin).ReadString('\n')
	if errRead != nil && !errors.Is(errRead, io.EOF) {
		return errRead
	}
	n, errNotify := app.NotifyAllUsers(ctx, cfg, message, url, answer)
	if errNotify != nil {
		if errors.Is(errNotify, app.ErrNotConfirmed) {
			_, _ = fmt.Fprintln(stdout, "Cancelled.")
		}
		return errNotify
	}
	_, _ = fmt.Fprintf(stdout, "Notified %d users.\n", n)
	return nil
}

func runMakeTestData(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	defaults := seed.DefaultOptions()
	tfs := flag.NewFlagSet("maketestdata", flag.ContinueOnError)
	users := tfs.Int("users", defaults.Users, "number of users")
	trips := tfs.Int("trips", defaults.Trips, "number of trips")
	reports := tfs.Int("reports", defaults.Reports, "number of trip reports")
	friends := tfs.Int("friends", defaults.Friends, "friends per user")
	adminTrips := tfs.Int("admin-trips", defaults.AdminTrips, "trips for the admin account")
	noLikes := tfs.Bool("no-likes", false, "skip likes")
	noComments := tfs.Bool("no-comments", false, "skip comments")
	password := tfs.String("password", "", "password for every generated account")
	seedValue := tfs.Uint64("seed", 1, "random seed")
	if errParse := tfs.Parse(args); errParse != nil {
		return errParse
	}

	sum, errSeed := app.SeedTestData(ctx, cfg, *seedValue, seed.Options{
		Users:      *users,
		Trips:      *trips,
		Reports:    *reports,
		Friends:    *friends,
		AdminTrips: *adminTrips,
		NoLikes:    *noLikes,
		NoComments: *noComments,
		Password:   *password,
	})
	if errSeed != nil {
		return errSeed
	}
	_, _ = fmt.Fprintf(stdout, "created %d users, %d trips, %d reports, %d friendships, %d likes, %d comments\n",
		sum.Users, sum.Trips, sum.Reports, sum.Friendships, sum.Likes, sum.Comments)
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
