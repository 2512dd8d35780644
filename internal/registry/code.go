package registry

import (
	"crypto/rand"
	"io"
	"math/big"
)

// Room ids look like "KQXW-7342". Letters skip I and O, digits skip 0 and 1,
// so an id read aloud or off a screen is unambiguous.
const (
	letters = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digits  = "23456789"
)

func GenerateRoomID() (string, error) {
	return generateRoomID(rand.Reader)
}

func generateRoomID(src io.Reader) (string, error) {
	code := make([]byte, 9)
	for i := range code {
		charset := letters
		switch {
		case i == 4:
			code[i] = '-'
			continue
		case i > 4:
			charset = digits
		}
		num, err := rand.Int(src, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
