package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"budgetview-go/internal/auth"
	"budgetview-go/internal/browser"
	"budgetview-go/internal/budgets"
	"budgetview-go/internal/config"
	"budgetview-go/internal/deeplink"
	"budgetview-go/internal/storage"
)

const defaultAccountID = "default"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("budgetview", flag.ExitOnError)
	configPath := flags.String("config", defaultConfigPath(), "path to the config file")
	flags.Usage = usage(flags)
	_ = flags.Parse(args)

	if flags.NArg() < 1 {
		flags.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "budgetview: %v\n", err)
		return 1
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialise")
		return 1
	}
	defer app.Close()

	ctx := context.Background()
	cmd, cmdArgs := flags.Arg(0), flags.Args()[1:]

	switch cmd {
	case "login":
		err = app.login(ctx, cmdArgs)
	case "auth-url":
		err = app.authURL(ctx, cmdArgs)
	case "refresh":
		err = app.refresh(ctx, cmdArgs)
	case "budgets":
		err = app.listBudgets(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "budgetview: unknown command %q\n", cmd)
		flags.Usage()
		return 2
	}

	if err != nil {
		logger.WithError(err).Error("command failed")
		return 1
	}
	return 0
}

func usage(flags *flag.FlagSet) func() {
	return func() {
		fmt.Fprint(os.Stderr, `Usage: budgetview [-config path] <command> [flags]

Commands:
  login      run the authorization flow and store the resulting token
             (-mobile pastes the deep-link redirect instead of listening)
  auth-url   print the authorization URL and CSRF state without waiting
  refresh    refresh the stored token when it is near expiry (-force)
  budgets    list YNAB4 budgets found on this machine (-path, repeatable)

Flags:
`)
		flags.PrintDefaults()
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".budgetview", "config.json")
}

// app bundles the wired components behind the subcommands.
type app struct {
	cfg       *config.Config
	logger    logrus.FieldLogger
	db        *storage.SQLiteStorage
	tokens    *storage.TokenStore
	client    *auth.ExchangeClient
	store     auth.VerifierStore
	deepLinks *deeplink.Store
	refresher *auth.TokenRefreshService
}

func newApp(cfg *config.Config, logger logrus.FieldLogger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	tokens := storage.NewTokenStore(db, []byte(cfg.Auth.EncryptionKey))
	client := auth.NewExchangeClient(cfg.Auth.TokenURL, cfg.Auth.ClientID, nil, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		tokens:    tokens,
		client:    client,
		store:     auth.NewInMemoryVerifierStore(),
		deepLinks: deeplink.NewStore(),
		refresher: auth.NewTokenRefreshService(client, tokens, logger),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

func (a *app) desktopFlow() *auth.DesktopFlow {
	return auth.NewDesktopFlow(
		a.client, a.store, browser.Opener{},
		a.cfg.Auth.AuthorizeURL, a.cfg.Auth.ClientID,
		a.cfg.Auth.CallbackPort, a.cfg.Auth.FlowTimeout.Duration, a.logger,
	)
}

func (a *app) mobileFlow() *auth.MobileFlow {
	return auth.NewMobileFlow(
		a.client, a.store,
		a.cfg.Auth.AuthorizeURL, a.cfg.Auth.ClientID,
		a.cfg.Auth.MobileRedirectURI, a.logger,
	)
}

// login runs an authorization flow to completion and persists the token.
func (a *app) login(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("login", flag.ExitOnError)
	mobile := flags.Bool("mobile", false, "use the deep-link flow and paste the redirect URL manually")
	_ = flags.Parse(args)

	a.serveMetrics()

	var token *auth.TokenResponse
	var err error
	if *mobile {
		token, err = a.mobileLogin(ctx)
	} else {
		token, err = a.desktopFlow().Run(ctx)
	}
	if err != nil {
		return err
	}

	accountID := token.AccountID
	if accountID == "" {
		accountID = defaultAccountID
	}
	if err := a.tokens.StoreToken(ctx, accountID, token.OAuth2Token()); err != nil {
		return err
	}

	fmt.Printf("Authorized account %s\n", accountID)
	return nil
}

// mobileLogin drives the deep-link variant interactively: the user
// opens the printed URL, authorizes, and pastes the redirect URL that
// the provider hands to the OS back into the terminal.
func (a *app) mobileLogin(ctx context.Context) (*auth.TokenResponse, error) {
	flow := a.mobileFlow()
	prompt, err := flow.Start(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Open this URL in a browser:\n\n  %s\n\nPaste the redirect URL here: ", prompt.URL)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read redirect URL: %w", err)
	}

	a.deepLinks.Set(strings.TrimSpace(line))
	raw, _ := a.deepLinks.Last()
	defer a.deepLinks.Clear()

	callback, err := deeplink.ParseCallback(raw)
	if err != nil {
		return nil, err
	}
	if callback.State != "" && callback.State != prompt.State {
		return nil, fmt.Errorf("redirect state does not match this attempt")
	}

	return flow.Exchange(ctx, callback.Code)
}

// authURL starts an attempt and prints the URL and state as JSON for an
// embedding host to hand to its own browser integration.
func (a *app) authURL(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("auth-url", flag.ExitOnError)
	mobile := flags.Bool("mobile", false, "use the mobile deep-link redirect")
	_ = flags.Parse(args)

	var flow auth.Flow
	if *mobile {
		flow = a.mobileFlow()
	} else {
		flow = a.desktopFlow()
	}

	prompt, err := flow.Start(ctx)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(prompt)
}

// refresh refreshes the stored token for an account.
func (a *app) refresh(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("refresh", flag.ExitOnError)
	accountID := flags.String("account", defaultAccountID, "account to refresh")
	force := flags.Bool("force", false, "refresh even when the token is not near expiry")
	_ = flags.Parse(args)

	var err error
	if *force {
		token, getErr := a.tokens.GetToken(ctx, *accountID)
		if getErr != nil {
			return getErr
		}
		_, err = a.refresher.Refresh(ctx, *accountID, token)
	} else {
		_, err = a.refresher.RefreshIfStale(ctx, *accountID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Token for account %s is fresh\n", *accountID)
	return nil
}

// listBudgets scans for YNAB4 budgets and prints them as JSON.
func (a *app) listBudgets(args []string) error {
	flags := flag.NewFlagSet("budgets", flag.ExitOnError)
	var paths stringList
	flags.Var(&paths, "path", "directory to search (repeatable; default: common YNAB locations)")
	_ = flags.Parse(args)

	searchPaths := []string(paths)
	if len(searchPaths) == 0 {
		searchPaths = a.cfg.Budgets.SearchPaths
	}

	scanner := budgets.NewScanner(searchPaths, a.logger)
	return json.NewEncoder(os.Stdout).Encode(scanner.Scan())
}

// serveMetrics exposes Prometheus metrics while a flow is in progress,
// when a metrics port is configured.
func (a *app) serveMetrics() {
	if a.cfg.MetricsPort <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.MetricsPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.WithError(err).Debug("metrics server stopped")
		}
	}()
}

// stringList collects repeated flag values.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
