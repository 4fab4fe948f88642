package auth

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/market-api/internal/httperr"
)

// MaxPasswordBytes は bcrypt が扱えるパスワードの最大バイト数です。
const MaxPasswordBytes = 72

// ErrPasswordTooLong はパスワードが MaxPasswordBytes を超えたときの 400 エラーです。
// バリデーターの max は文字数で数えるため、マルチバイト文字はここで弾きます。
var ErrPasswordTooLong = httperr.New(http.StatusBadRequest, "INVALID_INPUT", "Password must be at most 72 bytes")

// PasswordHasher は bcrypt によるパスワードのハッシュ化と照合を行います。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はコストを範囲内に丸めて PasswordHasher を作成します。
func NewPasswordHasher(cost int) PasswordHasher {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return PasswordHasher{cost: cost}
}

// Hash はパスワードをハッシュ化します。長すぎる場合は ErrPasswordTooLong を返します。
func (h PasswordHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare はハッシュとパスワードが一致するかを返します。比較は bcrypt 内で定数時間で行われます。
func (h PasswordHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
