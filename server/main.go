package server

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arcane/pkg/auth"
	"arcane/pkg/config"
	"arcane/pkg/logger"
	"arcane/pkg/storage"

	"golang.org/x/term"
)

// Main is the gateway entry point. Subcommands: start (default), stop,
// restart, status, adduser.
func Main() {
	if len(os.Args) > 1 && (os.Args[len(os.Args)-1] == "-h" || os.Args[len(os.Args)-1] == "--help") {
		printHelp(newFlagSet())
		return
	}

	command := "start"
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "start", "stop", "restart", "status", "adduser":
			command = os.Args[1]
			// Remove subcommand from args before flag parsing
			os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		}
	}

	instanceMgr := NewInstanceManager()

	switch command {
	case "status":
		if running, pid := instanceMgr.IsRunning(); running {
			fmt.Printf("Gateway running (PID %d)\n", pid)
		} else {
			fmt.Println("Gateway not running")
		}
		return
	case "stop":
		if err := instanceMgr.Kill(); err != nil {
			fmt.Printf("Stop failed: %v\n", err)
		} else {
			fmt.Println("Gateway stopped")
		}
		return
	case "restart":
		_ = instanceMgr.Kill() // Ignore error; may not be running
		fmt.Println("Restarting gateway...")
	case "adduser":
		runAddUser()
		return
	case "start":
		if running, pid := instanceMgr.IsRunning(); running {
			fmt.Printf("Gateway already running (PID %d)\n", pid)
			return
		}
	}

	addr := flag.String("addr", "", "Listen address (overrides config)")
	configPath := flag.String("config", "", "Config file path (optional)")
	rootDir := flag.String("root", "", "Workspace root directory (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	flag.Parse()

	cfg, err := loadConfigWithFlags(*configPath, *addr, *rootDir, *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	log := logger.Get()

	log.InfoWith("gateway starting", "config", cfg.String())

	srv, err := NewServer(cfg)
	if err != nil {
		log.ErrorWithErr("failed to create gateway", err)
		os.Exit(1)
	}

	if err := instanceMgr.WritePID(); err != nil {
		log.WarnWith("failed to write PID file", "error", err)
	}
	defer instanceMgr.RemovePID()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	errorChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errorChan <- err
		}
	}()

	log.InfoWith("gateway is running", "address", cfg.Address)

	select {
	case sig := <-sigChan:
		log.InfoWith("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.ErrorWithErr("error during shutdown", err)
		}
		log.InfoWith("gateway stopped")

	case err := <-errorChan:
		log.ErrorWithErr("gateway encountered fatal error", err)
	}
}

// loadConfigWithFlags loads configuration and applies command-line overrides.
// Flags beat environment, environment beats file.
func loadConfigWithFlags(configPath, addr, rootDir, logLevel, logFormat string) (*config.ServerConfig, error) {
	if rootDir != "" {
		os.Setenv("ARCANE_ROOT_DIR", rootDir)
	}
	if addr != "" {
		os.Setenv("ARCANE_ADDR", addr)
	}
	if logLevel != "" {
		os.Setenv("ARCANE_LOG_LEVEL", logLevel)
	}
	if logFormat != "" {
		os.Setenv("ARCANE_LOG_FORMAT", logFormat)
	}
	return config.LoadConfig(configPath)
}

// runAddUser enrolls a credential record interactively
func runAddUser() {
	configPath := flag.String("config", "", "Config file path (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewStore(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read username")
		os.Exit(1)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		fmt.Fprintln(os.Stderr, "Username cannot be empty")
		os.Exit(1)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read password")
		os.Exit(1)
	}

	fmt.Print("Repeat password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read password")
		os.Exit(1)
	}

	if string(password) != string(confirm) {
		fmt.Fprintln(os.Stderr, "Passwords do not match")
		os.Exit(1)
	}
	if len(password) == 0 {
		fmt.Fprintln(os.Stderr, "Password cannot be empty")
		os.Exit(1)
	}

	hash, err := auth.NewPasswordHasher().Hash(string(password))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	user := &storage.User{
		Name:         username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if cfg.Auth.TotpEnabled {
		secret, url, err := auth.GenerateOtpSecret("arcane", username)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate one-time code secret: %v\n", err)
			os.Exit(1)
		}
		user.OtpSecret = secret
		fmt.Printf("One-time code secret: %s\n", secret)
		fmt.Printf("Enrollment URL: %s\n", url)
	}

	if err := store.SaveUser(user); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User %q enrolled\n", username)
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("arcaned", flag.ContinueOnError)
	fs.String("addr", "", "Listen address (overrides config)")
	fs.String("config", "", "Config file path (optional)")
	fs.String("root", "", "Workspace root directory (overrides config)")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("log-format", "", "Log format: text or json")
	return fs
}

// printHelp displays help information for the gateway
func printHelp(fs *flag.FlagSet) {
	fmt.Print(`Arcane Gateway - Usage:

Commands:
  start              Start the gateway (default if no command given)
  stop               Stop the running gateway
  restart            Restart the gateway
  status             Show gateway status
  adduser            Enroll a credential record interactively

Flags:
`)
	fs.PrintDefaults()
	fmt.Print(`
Examples:
  ./bin/arcaned -root /srv/workspace                 # Serve /srv/workspace
  ./bin/arcaned -addr 127.0.0.1:8081 -root .         # Custom listen address
  ./bin/arcaned adduser                              # Enroll a user
  ./bin/arcaned stop                                 # Stop the gateway
  ./bin/arcaned status                               # Check if running
`)
}
