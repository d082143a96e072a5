// Package api exposes the vault engine over HTTP: request and claim
// endpoints for controllers, a JWT-protected settlement surface for the
// keeper, and read-only views.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louisbranch/epochvault/internal/metrics"
	"github.com/louisbranch/epochvault/internal/vault/engine"
)

// accountHeader carries the caller's account id on controller endpoints.
const accountHeader = "X-Vault-Account"

// keeperSubject is the JWT subject required on settlement and admin calls.
const keeperSubject = "keeper"

// Server serves the vault HTTP API.
type Server struct {
	engine       *engine.Engine
	echo         *echo.Echo
	keeperSecret []byte
}

// Config wires the server.
type Config struct {
	Engine       *engine.Engine
	Metrics      *metrics.Set
	KeeperSecret string
}

// New builds the HTTP server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if strings.TrimSpace(cfg.KeeperSecret) == "" {
		return nil, fmt.Errorf("keeper secret is required")
	}

	s := &Server{
		engine:       cfg.Engine,
		echo:         echo.New(),
		keeperSecret: []byte(cfg.KeeperSecret),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.Logger())

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	s.echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/v1")
	v1.POST("/deposits", s.handleRequestDeposit)
	v1.POST("/redeems", s.handleRequestRedeem)
	v1.POST("/claims/deposit", s.handleClaimDeposit)
	v1.POST("/claims/redeem", s.handleClaimRedeem)
	v1.POST("/operators", s.handleSetOperator)
	v1.POST("/allowances", s.handleApprove)
	v1.GET("/vault", s.handleVault)
	v1.GET("/accounts/:id", s.handleAccount)
	v1.GET("/epochs/current", s.handleCurrentEpoch)
	v1.GET("/epochs/:epoch", s.handleEpoch)

	keeper := v1.Group("", s.keeperAuth)
	keeper.POST("/epochs/:epoch/settle", s.handleSettle)
	keeper.POST("/admin/pause", s.handlePause)
	keeper.POST("/admin/resume", s.handleResume)
	keeper.POST("/admin/halt", s.handleHalt)

	return s, nil
}

// Start listens on addr until the server is shut down.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// caller extracts the acting account from the request header.
func caller(c echo.Context) (string, error) {
	account := strings.TrimSpace(c.Request().Header.Get(accountHeader))
	if account == "" {
		return "", fmt.Errorf("%w: missing %s header", engine.ErrUnauthorized, accountHeader)
	}
	return account, nil
}

// keeperAuth validates the bearer token as an HS256 JWT with the keeper
// subject.
func (s *Server) keeperAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return respondError(c, fmt.Errorf("%w: missing bearer token", engine.ErrUnauthorized))
		}
		token, err := jwt.Parse(strings.TrimSpace(raw), func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return s.keeperSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return respondError(c, fmt.Errorf("%w: invalid token", engine.ErrUnauthorized))
		}
		subject, err := token.Claims.GetSubject()
		if err != nil || subject != keeperSubject {
			return respondError(c, fmt.Errorf("%w: wrong token subject", engine.ErrUnauthorized))
		}
		return next(c)
	}
}

// KeeperToken signs a keeper JWT with the shared secret.
func KeeperToken(secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": keeperSubject})
	return token.SignedString([]byte(secret))
}
