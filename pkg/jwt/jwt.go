package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles de la plataforma de servicio técnico.
const (
	RoleAdmin      = "admin"
	RoleAnalyst    = "analista"
	RoleDispatcher = "despachador"
	RoleTechnician = "tecnico"
)

// Claims incluye los claims estándar JWT más los campos propios de la aplicación.
// TechnicianID solo viene en tokens de técnicos y limita el acceso a su propio inventario.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string `json:"user_id"`
	TechnicianID string `json:"technician_id,omitempty"`
	Role         string `json:"role"`
}

// Identity datos del usuario autenticado.
type Identity struct {
	UserID       string
	TechnicianID string
	Role         string
}

// Generate genera un token JWT firmado con la identidad indicada.
func Generate(secret string, id Identity, issuer string, expMinutes int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vacío")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expMinutes) * time.Minute)),
		},
		UserID:       id.UserID,
		TechnicianID: id.TechnicianID,
		Role:         id.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse valida el token y devuelve la identidad.
// Retorna error si el token es inválido, expirado o tiene firma incorrecta.
func Parse(secret, tokenString string) (Identity, error) {
	if secret == "" {
		return Identity{}, fmt.Errorf("jwt: secret vacío")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de firma inesperado: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("claims inválidos")
	}
	return Identity{UserID: claims.UserID, TechnicianID: claims.TechnicianID, Role: claims.Role}, nil
}
