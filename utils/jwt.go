package utils

import (
	"errors"

	"mailflow/config"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carry the caller's admin id so created records can be attributed.
// Token issuance lives outside this service; only parsing happens here.
type Claims struct {
	AdminID uint `json:"admin_id"`
	jwt.RegisteredClaims
}

func ParseJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
