package reservation

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	reservationRepo "voltslot/database/repository/reservation"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	qrTokenPrefix = "EVR-"
	otpDigits     = 6
	qrImageSize   = 256
)

var errQRCollision = errors.New("qr token already issued")

// Credentials are the check-in secrets issued once per reservation.
type Credentials struct {
	QRCode string
	OTP    string
}

// Issuer mints unique QR tokens and one-time passcodes.
type Issuer struct {
	repo        reservationRepo.ReservationRepository
	maxAttempts int
	newToken    func() string
	newOTP      func() (string, error)
}

func NewIssuer(repo reservationRepo.ReservationRepository, maxAttempts int) *Issuer {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Issuer{repo: repo, maxAttempts: maxAttempts, newToken: NewQRToken, newOTP: NewOTP}
}

// Issue returns a QR token not yet present in the store and a fresh OTP.
func (i *Issuer) Issue(ctx context.Context) (Credentials, error) {
	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		token := i.newToken()
		exists, err := i.repo.QRCodeExists(ctx, token)
		if err != nil {
			return Credentials{}, &StoreUnavailableError{Op: "check qr token", Err: err}
		}
		if exists {
			continue
		}
		otp, err := i.newOTP()
		if err != nil {
			return Credentials{}, &CredentialGenerationFailedError{Attempts: attempt, Err: err}
		}
		return Credentials{QRCode: token, OTP: otp}, nil
	}
	return Credentials{}, &CredentialGenerationFailedError{Attempts: i.maxAttempts, Err: errQRCollision}
}

// NewQRToken returns "EVR-" followed by a random UUID in hex without dashes.
func NewQRToken() string {
	return qrTokenPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewOTP draws a zero-padded numeric code uniformly from crypto/rand.
func NewOTP() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(otpDigits), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// RenderQR encodes the token as a PNG QR code.
func RenderQR(token string) ([]byte, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

// QRDataURI renders the token as an inline image for API responses.
func QRDataURI(token string) (string, error) {
	png, err := RenderQR(token)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func secretEqual(given, stored string) bool {
	if given == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(stored)) == 1
}
