package utils

import (
	"errors"
	"fmt"
	"strings"
)

// validator.go - валидация входных данных ордера

// Ошибки валидации
var (
	ErrEmptyUserID   = errors.New("user_id is required")
	ErrEmptyBotID    = errors.New("bot_id is required")
	ErrEmptyExchange = errors.New("exchange is required")
	ErrEmptySymbol   = errors.New("symbol is required")
	ErrInvalidSide   = errors.New("side must be buy or sell")
	ErrInvalidType   = errors.New("order_type must be market or limit")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrMissingPrice  = errors.New("price is required for limit orders")
)

// ValidateSymbol проверяет формат торгового символа (BASE/QUOTE)
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return ErrEmptySymbol
	}
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid symbol format %q, expected BASE/QUOTE", symbol)
	}
	return nil
}

// ValidateSide проверяет сторону ордера
func ValidateSide(side string) error {
	if side != "buy" && side != "sell" {
		return ErrInvalidSide
	}
	return nil
}

// ValidateOrderType проверяет тип ордера
func ValidateOrderType(orderType string) error {
	if orderType != "market" && orderType != "limit" {
		return ErrInvalidType
	}
	return nil
}

// ValidateAmount проверяет объём ордера
func ValidateAmount(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
