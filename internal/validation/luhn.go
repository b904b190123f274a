// Package validation содержит функции валидации входных данных.
package validation

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"unicode"
)

// OrderNumberLength: длина генерируемых номеров заказов вместе с контрольной цифрой.
const OrderNumberLength = 12

// IsValidOrderNumber проверяет корректность номера заказа по алгоритму Луна.
func IsValidOrderNumber(number string) bool {
	if number == "" {
		return false
	}

	for _, ch := range number {
		if !unicode.IsDigit(ch) || ch > '9' {
			return false
		}
	}

	return luhnSum(number, false)%10 == 0
}

// LuhnCheckDigit вычисляет контрольную цифру для строки цифр.
func LuhnCheckDigit(payload string) (byte, error) {
	for _, ch := range payload {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("non-digit %q in payload", ch)
		}
	}

	sum := luhnSum(payload, true)
	return byte('0' + (10-sum%10)%10), nil
}

// GenerateOrderNumber создаёт случайный номер заказа, проходящий проверку Луна.
// Первая цифра не ноль.
func GenerateOrderNumber() (string, error) {
	buf := make([]byte, OrderNumberLength-1)
	for i := range buf {
		max := int64(10)
		if i == 0 {
			max = 9
		}
		v, err := rand.Int(rand.Reader, big.NewInt(max))
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}
		d := byte(v.Int64())
		if i == 0 {
			d++
		}
		buf[i] = '0' + d
	}

	check, err := LuhnCheckDigit(string(buf))
	if err != nil {
		return "", err
	}

	return string(append(buf, check)), nil
}

// luhnSum считает сумму Луна справа налево. doubleFirst задаёт, удваивается ли
// самая правая цифра (так считают для строки без контрольной цифры).
func luhnSum(number string, doubleFirst bool) int {
	sum := 0
	double := doubleFirst

	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum
}
