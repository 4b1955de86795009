package services

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	// VoucherCodePrefix starts every voucher code
	VoucherCodePrefix = "VG-"
	voucherAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	voucherSuffixLen  = 6
)

var voucherCodePattern = regexp.MustCompile(`^VG-[A-Z0-9]{6}$`)

// CodeGenerator returns a candidate voucher code. Uniqueness is enforced
// at insert time, not here.
type CodeGenerator func() (string, error)

// RandomVoucherCode draws VG- plus six uniform symbols from A-Z0-9
func RandomVoucherCode() (string, error) {
	max := big.NewInt(int64(len(voucherAlphabet)))
	var b strings.Builder
	b.Grow(len(VoucherCodePrefix) + voucherSuffixLen)
	b.WriteString(VoucherCodePrefix)
	for i := 0; i < voucherSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(voucherAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ValidVoucherCode reports whether code has the VG-XXXXXX shape
func ValidVoucherCode(code string) bool {
	return voucherCodePattern.MatchString(code)
}

// NormalizeVoucherCode trims and upper-cases what a distributor typed
func NormalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
