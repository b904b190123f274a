package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// SignatureParam: имя параметра с подписью.
const SignatureParam = "signature"

// ErrInvalidSignature возвращается, если подпись обратного вызова не совпала.
var ErrInvalidSignature = errors.New("invalid payment signature")

// Signer подписывает и проверяет параметры по схеме шлюза: HMAC-SHA512 от
// отсортированной по ключам строки запроса без параметра подписи.
type Signer struct {
	secret []byte
}

// NewSigner создаёт Signer с общим секретом шлюза.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign возвращает копию параметров с добавленной подписью.
func (s *Signer) Sign(params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		if k == SignatureParam {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	out.Set(SignatureParam, s.digest(out))
	return out
}

// Verify проверяет подпись параметров обратного вызова.
func (s *Signer) Verify(params url.Values) error {
	got := params.Get(SignatureParam)
	if got == "" {
		return ErrInvalidSignature
	}

	want := s.digest(params)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *Signer) digest(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SignatureParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for j, v := range vals {
			if j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}

	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
