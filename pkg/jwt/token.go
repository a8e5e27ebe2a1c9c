package jwtPkg

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims is what a valid device-binding token proves: the caller is
// the device it says it is.
type DeviceClaims struct {
	DeviceID string
}

func Sign(data map[string]interface{}, expiresIn time.Duration) (string, int64, error) {
	expiredAt := time.Now().Add(expiresIn).Unix()

	secret := os.Getenv("JWT_DEVICE_TOKEN_SECRET")
	if secret == "" {
		return "", 0, fmt.Errorf("JWT_DEVICE_TOKEN_SECRET not set")
	}

	claims := jwt.MapClaims{}
	claims["exp"] = expiredAt
	for k, v := range data {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", 0, err
	}

	return signed, expiredAt, nil
}

func VerifyTokenHeader(c *fiber.Ctx) (*jwt.Token, error) {
	header := c.Get("Authorization")
	if header == "" {
		return nil, errors.New("empty Authorization header")
	}

	parts := strings.Split(header, "Bearer ")
	if len(parts) != 2 {
		return nil, errors.New("invalid Authorization format")
	}
	accessToken := strings.TrimSpace(parts[1])

	secret := os.Getenv("JWT_DEVICE_TOKEN_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_DEVICE_TOKEN_SECRET not set")
	}

	token, err := jwt.Parse(accessToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return token, nil
}

// GetDeviceData reads the device claims the token middleware stashed on the
// request.
func GetDeviceData(c *fiber.Ctx) (DeviceClaims, error) {
	deviceID, ok := c.Locals("device_id").(string)
	if !ok || deviceID == "" {
		return DeviceClaims{}, errors.New("no device claims on request")
	}
	return DeviceClaims{DeviceID: deviceID}, nil
}
