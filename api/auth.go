package api

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bidfinity/adapters/ledger"
	"bidfinity/models"
)

const userContextKey = "bidfinity.user"

// JWT 是外部憑證服務簽發的存取憑證，Subject 為使用者 ID
type JWT struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	IsSeller bool   `json:"is_seller"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// LoadPublicKey 讀取 PEM 格式的 Ed25519 公鑰
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	const op = "LoadPublicKey"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	publicKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: not an ed25519 public key", op)
	}
	return publicKey, nil
}

// ParseAndValidateJWT 驗證 token 的簽章與有效期限，issuer 和 audience 為空時不檢查
func ParseAndValidateJWT(tokenString string, publicKey ed25519.PublicKey, issuer, audience string) (*JWT, error) {
	const op = "ParseJWT"
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}

// authenticate 驗證 bearer token 並同步使用者資料，被停權的使用者會被拒絕
func (impl *ServerImpl) authenticate(c *gin.Context) {
	const op = "authenticate"
	//  - 檢查是否有提供access token
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || raw == "" {
		abortWithMessage(c, http.StatusUnauthorized, "missing bearer token")
		return
	}
	//  - 解析並驗證access token
	token, err := ParseAndValidateJWT(raw, impl.publicKey, impl.config.Auth.Issuer, impl.config.Auth.Audience)
	if err != nil {
		slog.Warn("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusUnauthorized, "invalid bearer token")
		return
	}
	userID, err := uuid.Parse(token.Subject)
	if err != nil || token.Username == "" {
		abortWithMessage(c, http.StatusUnauthorized, "invalid token subject")
		return
	}

	user, err := impl.store.EnsureUser(c.Request.Context(), ledger.Identity{
		ID:       userID,
		Username: token.Username,
		Email:    token.Email,
		IsSeller: token.IsSeller,
		IsAdmin:  token.IsAdmin,
	}, impl.service.Now())
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to sync user, err=%w", op, err))
		return
	}
	if !user.IsActive {
		abortWithMessage(c, http.StatusForbidden, "account is banned")
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func (impl *ServerImpl) requireAdmin(c *gin.Context) {
	if !currentUser(c).IsAdmin {
		abortWithMessage(c, http.StatusForbidden, "admin only")
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userContextKey).(*models.User)
}
