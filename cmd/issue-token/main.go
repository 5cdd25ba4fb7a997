package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/service"
	"golang.org/x/term"
)

const defaultSecret = "change-this-to-a-secure-random-string"

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.SetupTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprintln(os.Stderr, "=== Issue Development Token ===")

	tenant := prompt(reader, "Tenant ID: ")
	if tenant == "" {
		fmt.Fprintln(os.Stderr, "Error: Tenant ID is required")
		os.Exit(1)
	}

	userID, err := strconv.Atoi(prompt(reader, "User ID: "))
	if err != nil || userID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: User ID must be a positive number")
		os.Exit(1)
	}

	role := service.Role(strings.ToLower(prompt(reader, "Role (student/teacher/admin, default student): ")))
	switch role {
	case "":
		role = service.RoleStudent
	case service.RoleStudent, service.RoleTeacher, service.RoleAdmin:
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", role)
		os.Exit(1)
	}

	ttl := 4 * time.Hour
	if raw := prompt(reader, "Valid for (default 4h): "); raw != "" {
		if ttl, err = time.ParseDuration(raw); err != nil || ttl <= 0 {
			fmt.Fprintln(os.Stderr, "Error: invalid duration")
			os.Exit(1)
		}
	}

	// The signing secret must match the server's JWT_SECRET.
	if cfg.JWTSecret == defaultSecret {
		fmt.Fprint(os.Stderr, "JWT secret (empty keeps the default): ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		if len(secret) > 0 {
			cfg.JWTSecret = string(secret)
		} else {
			log.Warn().Msg("Signing with the default development secret")
		}
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).IssueToken(tenant, userID, role, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	log.Info().Str("tenant_id", tenant).Int("user_id", userID).Str("role", string(role)).Dur("ttl", ttl).Msg("Token issued")
	fmt.Println(token)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
