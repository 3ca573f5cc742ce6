package models

import "github.com/golang-jwt/jwt/v5"

// TokenTypeSession is the only token type this service issues.
const TokenTypeSession = "session"

// TokenClaims are the JWT claims carried by a dashboard session.
type TokenClaims struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
