// This is a small authentication service that issues JWT tokens for the
// registry. Users live in a YAML file with bcrypt password hashes:
//
//	users:
//	  - username: ayse
//	    password_hash: $2a$10$...
//	    staff: true
//
// Run it with "hash <password>" to print a hash for that file.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gartstein/ymm/internal/registry/auth"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      int           `envconfig:"AUTH_PORT" default:"8081"`
	Secret    string        `envconfig:"JWT_SECRET" default:"jwt_secret"`
	UsersFile string        `envconfig:"AUTH_USERS_FILE" default:"internal/registry/config/users.yaml"`
	TokenTTL  time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"24h"`
}

type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Staff        bool   `yaml:"staff"`
	Superuser    bool   `yaml:"superuser"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// TokenRequest is the login body.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse represents the response structure
type TokenResponse struct {
	Token string `json:"token"`
}

type tokenService struct {
	users  map[string]User
	secret string
	ttl    time.Duration
	logger *zap.Logger
}

func loadUsers(path string) (map[string]User, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed usersFile
	if err := yaml.Unmarshal(file, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse users file %s: %w", path, err)
	}
	users := make(map[string]User, len(parsed.Users))
	for _, u := range parsed.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("users file %s: username and password_hash are required", path)
		}
		users[u.Username] = u
	}
	return users, nil
}

// tokenHandler checks the credentials and returns a signed JWT in JSON.
func (s *tokenService) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, ok := s.users[req.Username]
	if !ok || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.logger.Info("login rejected", zap.String("username", req.Username))
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	actor := models.Actor{Username: user.Username, IsStaff: user.Staff, IsSuperuser: user.Superuser}
	token, err := auth.GenerateToken(actor, s.secret, s.ttl)
	if err != nil {
		s.logger.Error("failed to generate token", zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(TokenResponse{Token: token}); err != nil {
		s.logger.Error("failed to encode token", zap.Error(err))
	}
}

func main() {
	logger := zap.Must(zap.NewProduction())
	defer func() { _ = logger.Sync() }()

	if len(os.Args) == 3 && os.Args[1] == "hash" {
		hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[2]), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash password", zap.Error(err))
		}
		fmt.Println(string(hash))
		return
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal("failed to read environment", zap.Error(err))
	}

	users, err := loadUsers(cfg.UsersFile)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("users file not found, every login will be rejected", zap.String("path", cfg.UsersFile))
		users = map[string]User{}
	} else if err != nil {
		logger.Fatal("failed to load users", zap.Error(err))
	}

	svc := &tokenService{users: users, secret: cfg.Secret, ttl: cfg.TokenTTL, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", svc.tokenHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Authentication service running", zap.Int("port", cfg.Port), zap.Int("users", len(users)))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("authentication service failed", zap.Error(err))
	}
}
