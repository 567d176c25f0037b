package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatflow/internal/api"
	"chatflow/internal/auth"
	"chatflow/internal/config"
	"chatflow/internal/handlers"
	"chatflow/internal/models"
	"chatflow/internal/services"
	"chatflow/internal/websocket"
	"chatflow/pkg/logger"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagAPIURL   string
	flagWSURL    string
	flagToken    string
	flagLogLevel string

	flagUsername string
	flagPassword string
	flagEmail    string
	flagFullName string
	flagName     string
)

// app is built once per invocation from config and flags.
type app struct {
	cfg    *config.Config
	client *api.Client
	auth   *auth.Service
}

var current *app

var rootCmd = &cobra.Command{
	Use:               "chatflow",
	Short:             "Terminal client for ChatFlow conversations",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print a token to export as CHATFLOW_TOKEN",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFromFlagOrInput(cmd.InOrStdin())
		if err != nil {
			return err
		}
		h := handlers.NewAuthHandlers(current.auth, cmd.OutOrStdout())
		return h.Login(cmd.Context(), flagUsername, password)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in with it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFromFlagOrInput(cmd.InOrStdin())
		if err != nil {
			return err
		}
		h := handlers.NewAuthHandlers(current.auth, cmd.OutOrStdout())
		return h.Register(cmd.Context(), &models.RegisterRequest{
			Username: flagUsername,
			Email:    flagEmail,
			Password: password,
			FullName: flagFullName,
		})
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users you can start a conversation with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := current.conversationHandlers(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return h.ListUsers(cmd.Context())
	},
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List your conversations, unread ones marked with *",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := current.conversationHandlers(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return h.ListConversations(cmd.Context())
	},
}

var newCmd = &cobra.Command{
	Use:   "new <user-id>...",
	Short: "Start a conversation; --name applies to group chats",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := current.conversationHandlers(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return h.Create(cmd.Context(), args, flagName)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Open a conversation in an interactive shell",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := current.session()
		if err != nil {
			return err
		}

		transport := websocket.NewClient(current.cfg.WebSocket)
		conversations := services.NewConversationService(current.client)
		chat := services.NewChatService(current.client, transport, current.client, conversations)

		h := handlers.NewChatHandlers(chat, conversations, session.Username, cmd.OutOrStdout())
		err = h.Run(cmd.Context(), args[0], cmd.InOrStdin())
		conversations.Wait()
		return err
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAPIURL, "api-url", "", "backend HTTP base URL (env CHATFLOW_API_URL)")
	flags.StringVar(&flagWSURL, "ws-url", "", "backend WebSocket base URL (env CHATFLOW_WS_URL)")
	flags.StringVar(&flagToken, "token", "", "bearer token (env CHATFLOW_TOKEN)")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (env CHATFLOW_LOG_LEVEL)")

	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVarP(&flagUsername, "username", "u", "", "username")
		cmd.Flags().StringVarP(&flagPassword, "password", "p", "", "password, read from stdin when omitted")
		_ = cmd.MarkFlagRequired("username")
	}
	registerCmd.Flags().StringVar(&flagEmail, "email", "", "email address")
	registerCmd.Flags().StringVar(&flagFullName, "full-name", "", "full name")
	_ = registerCmd.MarkFlagRequired("email")

	newCmd.Flags().StringVar(&flagName, "name", "", "group name, used when more than one user is given")

	rootCmd.AddCommand(loginCmd, registerCmd, usersCmd, conversationsCmd, newCmd, chatCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if flagAPIURL != "" {
		cfg.API.BaseURL = strings.TrimRight(flagAPIURL, "/")
	}
	if flagWSURL != "" {
		cfg.WebSocket.URL = strings.TrimRight(flagWSURL, "/")
	}
	if flagToken != "" {
		cfg.Auth.Token = flagToken
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}

	logger.SetLevel(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	current = &app{
		cfg:    cfg,
		client: client,
		auth:   auth.NewService(client),
	}
	logger.Debug("Using API %s and WebSocket %s", cfg.API.BaseURL, cfg.WebSocket.URL)
	return nil
}

// session installs the configured token on the API client.
func (a *app) session() (*auth.Session, error) {
	token, err := a.cfg.RequireToken()
	if err != nil {
		return nil, err
	}
	return a.auth.Restore(token)
}

func (a *app) conversationHandlers(out io.Writer) (*handlers.ConversationHandlers, error) {
	session, err := a.session()
	if err != nil {
		return nil, err
	}
	conversations := services.NewConversationService(a.client)
	return handlers.NewConversationHandlers(conversations, a.client, session.Username, out), nil
}

func passwordFromFlagOrInput(in io.Reader) (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	return readPassword(in, os.Stderr)
}

// readPassword prompts on prompt and reads one line from in. Input from a
// terminal is not echoed; pipes and files are read as plain lines.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
