// Package authproxy serves the small HTTP routes that exchange OAuth
// authorization codes for provider tokens and relay the resulting
// identity to the CMS.
package authproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/nhle/malharro-cms/internal/account"
	"github.com/nhle/malharro-cms/internal/model"
)

const stateCookie = "oauth_state"

// Server holds the proxy's provider settings.
type Server struct {
	providers map[account.Provider]*oauth2.Config
	publicURL string
	origins   []string
	verifier  *account.Verifier
	accounts  *account.Service
	log       *slog.Logger
}

// New returns a Server for the providers configured in cfg. accounts
// relays identities on the callback route and should not persist
// sessions.
func New(cfg model.OAuthConfig, accounts *account.Service, verifier *account.Verifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if verifier == nil {
		verifier = account.NewVerifier()
	}
	return &Server{
		providers: map[account.Provider]*oauth2.Config{
			account.ProviderGoogle: {
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Scopes:       []string{"openid", "email", "profile"},
				Endpoint:     endpoints.Google,
			},
			account.ProviderDiscord: {
				ClientID:     cfg.Discord.ClientID,
				ClientSecret: cfg.Discord.ClientSecret,
				Scopes:       []string{"identify", "email"},
				Endpoint:     endpoints.Discord,
			},
		},
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		origins:   cfg.AllowedOrigins,
		verifier:  verifier,
		accounts:  accounts,
		log:       log,
	}
}

// WithEndpoint overrides the OAuth endpoint of p.
func (s *Server) WithEndpoint(p account.Provider, ep oauth2.Endpoint) *Server {
	if c, ok := s.providers[p]; ok {
		c.Endpoint = ep
	}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	if len(s.origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/:provider", s.provider)
	api.POST("/auth", s.exchange)
	api.GET("/start", s.start)
	api.GET("/callback", s.callback)
	return r
}

// Run serves on addr until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("auth proxy listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("auth proxy shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// provider resolves :provider and aborts with 404 for unknown names.
func (s *Server) provider(c *gin.Context) {
	p, err := account.ParseProvider(c.Param("provider"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Set("provider", p)
	c.Next()
}

func (s *Server) config(c *gin.Context, redirectURL string) (account.Provider, oauth2.Config) {
	p := c.MustGet("provider").(account.Provider)
	cfg := *s.providers[p]
	cfg.RedirectURL = redirectURL
	return p, cfg
}

type exchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

// POST /api/:provider/auth
func (s *Server) exchange(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" || req.RedirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code or redirectUri"})
		return
	}

	p, cfg := s.config(c, req.RedirectURI)
	tok, err := cfg.Exchange(c.Request.Context(), req.Code)
	if err != nil {
		status, msg := exchangeError(p, err)
		s.log.Warn("code exchange failed", "provider", p, "status", status, "err", err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, tokenBody(tok))
}

// GET /api/:provider/start
func (s *Server) start(c *gin.Context) {
	state := uuid.NewString()
	c.SetCookie(stateCookie, state, 300, "/", "", c.Request.TLS != nil, true)

	_, cfg := s.config(c, s.callbackURL(c))
	c.Redirect(http.StatusFound, cfg.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// GET /api/:provider/callback
func (s *Server) callback(c *gin.Context) {
	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code/state"})
		return
	}
	if cookie, err := c.Cookie(stateCookie); err != nil || cookie != state {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", c.Request.TLS != nil, true)

	ctx := c.Request.Context()
	p, cfg := s.config(c, s.callbackURL(c))
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		status, msg := exchangeError(p, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	id, err := s.verifier.Identity(ctx, p, tok)
	if err != nil {
		s.log.Warn("userinfo failed", "provider", p, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.accounts.SignInWithProvider(ctx, id)
	var needs *account.SetupRequiredError
	switch {
	case errors.As(err, &needs):
		c.JSON(http.StatusOK, gin.H{
			"status":   "needs_password",
			"email":    needs.Email,
			"provider": string(needs.Provider),
		})
	case err != nil:
		s.log.Warn("identity relay failed", "provider", p, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Error al autenticar con " + string(p)})
	default:
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"jwt":    sess.Token,
			"user": gin.H{
				"id":       sess.User.ID,
				"username": sess.User.Username,
				"email":    sess.User.Email,
				"role":     sess.Role,
			},
		})
	}
}

func (s *Server) callbackURL(c *gin.Context) string {
	base := s.publicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/api/" + c.Param("provider") + "/callback"
}

func tokenBody(tok *oauth2.Token) gin.H {
	body := gin.H{
		"access_token": tok.AccessToken,
		"token_type":   tok.TokenType,
	}
	if tok.RefreshToken != "" {
		body["refresh_token"] = tok.RefreshToken
	}
	if tok.ExpiresIn > 0 {
		body["expires_in"] = tok.ExpiresIn
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		body["scope"] = scope
	}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		body["id_token"] = idToken
	}
	return body
}

// exchangeError passes the provider's status and body through.
func exchangeError(p account.Provider, err error) (int, string) {
	name := strings.ToUpper(string(p[:1])) + string(p[1:])
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode,
			fmt.Sprintf("%s API error: %d - %s", name, re.Response.StatusCode, strings.TrimSpace(string(re.Body)))
	}
	return http.StatusInternalServerError, "Internal server error: " + err.Error()
}
