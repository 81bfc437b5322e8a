package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/config"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
)

const testSecret = "test-secret"

func setupAuthRouter() *gin.Engine {
	config.Set(&config.Config{JWTSecret: testSecret, JWTExpirationDur: time.Hour})

	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(ContextUserID),
			"role":    c.MustGet(ContextRole),
		})
	})
	return r
}

func authRequest(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	r := setupAuthRouter()

	t.Run("valid_token_sets_caller", func(t *testing.T) {
		user := &models.User{Base: models.Base{ID: "u-1"}, Email: "a@b.com", Role: models.RoleAdmin}
		token, err := GenerateToken(user)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}

		rec := authRequest(r, "Bearer "+token)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		body := parseBody(t, rec)
		if body["user_id"] != "u-1" || body["role"] != "admin" {
			t.Errorf("unexpected caller %v", body)
		}
	})

	t.Run("missing_role_defaults_to_investor", func(t *testing.T) {
		token, err := GenerateToken(&models.User{Base: models.Base{ID: "u-2"}})
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		body := parseBody(t, authRequest(r, "Bearer "+token))
		if body["role"] != "investor" {
			t.Errorf("role = %v, want investor", body["role"])
		}
	})

	t.Run("rejects_bad_tokens", func(t *testing.T) {
		expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
			UserID: "u-3",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    tokenIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		})
		expiredToken, _ := expired.SignedString([]byte(testSecret))

		forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
			UserID:           "u-4",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
		})
		forgedToken, _ := forged.SignedString([]byte("other-secret"))

		for name, header := range map[string]string{
			"missing": "",
			"scheme":  "Token abc",
			"garbage": "Bearer not-a-jwt",
			"expired": "Bearer " + expiredToken,
			"forged":  "Bearer " + forgedToken,
		} {
			t.Run(name, func(t *testing.T) {
				rec := authRequest(r, header)
				if rec.Code != http.StatusUnauthorized {
					t.Fatalf("status = %d, want 401", rec.Code)
				}
				errObj, _ := parseBody(t, rec)["error"].(map[string]interface{})
				if errObj["code"] != "UNAUTHORIZED" {
					t.Errorf("code = %v, want UNAUTHORIZED", errObj["code"])
				}
			})
		}
	})
}
